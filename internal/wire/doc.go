// Package wire implements the hub's envelope protocol: a 4-byte little-endian
// length prefix followed by a UTF-8 JSON message. It also defines the message
// vocabulary shared by the hub, its workers, and its clients.
package wire
