// Package client manages the live WebSocket channel to the NodeNexus panel:
// one logical connection with exponential reconnect, inbound frame
// classification, and keepalive handling. Classified frames are republished
// on an event bus; the package does no rendering and keeps no run state.
package client

import (
	"encoding/json"

	"github.com/moonheart/nodenexus-go/internal/event"
)

// Lifecycle event kinds published by the Manager. Server frames are
// republished under their own wire type string.
const (
	// EventOpen fires after the transport opens; payload is nil.
	EventOpen event.Kind = "ws_open"
	// EventClosed fires on a non-intentional close that will be retried;
	// payload is the error.
	EventClosed event.Kind = "ws_closed"
	// EventPermanentFailure fires when reconnect attempts are exhausted or no
	// credential is available at retry time; payload is the error. The
	// Manager takes no further action until Connect is called again.
	EventPermanentFailure event.Kind = "ws_permanent_failure"
	// EventError reports local misuse (e.g. connecting with no credential);
	// payload is the error.
	EventError event.Kind = "ws_error"
	// EventFullServerList carries the legacy full-list push; payload is the
	// raw `servers` JSON array. Emission is throttled (leading+trailing).
	EventFullServerList event.Kind = "full_server_list"
)

// inboundFrame is the envelope for every message from the server. Typed
// frames carry `type`; the legacy full-list push has no type and only a
// `servers` array.
type inboundFrame struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Servers json.RawMessage `json:"servers"`
}

type pongFrame struct {
	Type string `json:"type"`
}
