// Package server implements the real-time broadcast hub.
//
// Clients connect over WebSocket, receive an identity and a default nickname,
// and every chat message or presence change is fanned out to the other
// participants. The Registry tracks who is connected, the Hub serializes and
// delivers events, each connection runs its own session state machine, and
// the Monitor prunes connections that stop answering pings.
package server
