// Package transport implements the WebSocket listener described in spec
// section 4.1: it accepts connections, mints endpoint identifiers, decodes
// and encodes the JSON wire protocol, and enforces the slow-consumer
// disconnect policy. Routing decisions themselves live in package
// signaling; transport only ever calls Router.Dispatch and forwards
// whatever Sender.Send pushes back out.
package transport
