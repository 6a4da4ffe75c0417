// Package daemon coordinates the long-running mediahub hub process.
//
// It wires configuration, the owning hub loop, the Unix socket server, the
// relay HTTP server and the worker supervisor into a single lifecycle, with
// flock-based locking next to the socket to prevent two hubs from serving the
// same path. Only failing to bind the hub socket stops startup; a relay bind
// failure is logged and the hub keeps serving local peers.
//
// Keep orchestration logic here: protocol handling lives in router, state in
// state, and transport in ipc and relay.
package daemon
