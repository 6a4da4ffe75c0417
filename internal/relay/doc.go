// Package relay bridges the hub to cast devices.
//
// DIALClient starts and stops the receiver application over the DIAL REST
// API. Server accepts WebSocket connections from cast-control relays on
// /relay?addr=<device>; each connection becomes a Session that the hub
// registers under the device address and uses for request/reply control
// messages. The same HTTP listener serves Prometheus metrics.
package relay
