// Package ipc carries the hub protocol over a Unix domain socket.
//
// Server owns the socket lifecycle: it removes a stale socket file before
// binding, accepts peers, and runs one session per connection. A session
// buffers inbound bytes until whole envelopes decode, hands each message to
// the Dispatcher in arrival order, and queues the replies on an outbound
// buffer that survives partial and timed-out writes.
//
// Client is the matching peer used by the CLI and the worker processes. It
// writes one envelope, waits for one reply, and fails fast with ErrTimeout
// when the hub does not answer in time.
package ipc
