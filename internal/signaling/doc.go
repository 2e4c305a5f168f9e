// Package signaling implements the session registry, routing rules, and
// liveness reaper for the rendezvous fabric: endpoints attach to a session
// as host or client, exchange negotiation payloads, and get reclaimed when
// idle. See the wire protocol in package transport for framing.
package signaling
