// Package realtime implements the per-instance session registry and the
// Redis-backed fan-out that lets clients connected to different instances
// see each other's cursors, joins, leaves and schema edits on the same
// document.
package realtime

import "encoding/json"

// Event kinds understood by the dispatcher and carried over the bus.
const (
	EventCursor       = "cursor"
	EventJoin         = "join"
	EventLeave        = "leave"
	EventSchemaUpdate = "schema-update"
)

// InboundEvent is a frame read from a client connection. The document and
// session the frame belongs to are taken from the connection, never from
// the payload.
type InboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CursorPosition is a pointer location in document coordinates.
type CursorPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OutboundEvent is the client-facing shape of a broadcast event. Only the
// fields relevant to the kind are set; the rest stay empty and are omitted
// from the wire frame.
type OutboundEvent struct {
	Type     string          `json:"type"`
	UserID   string          `json:"userId,omitempty"`
	UserName string          `json:"userName,omitempty"`
	Cursor   *CursorPosition `json:"cursor,omitempty"`
	Patch    json.RawMessage `json:"patch,omitempty"`
}

// busEnvelope wraps an event for transport over the bus. The originating
// session id rides on the envelope only, so clients never see it: the
// relay re-marshals just the inner event for delivery.
type busEnvelope struct {
	Origin string        `json:"origin"`
	Event  OutboundEvent `json:"event"`
}

// echoToSender reports whether a kind should be delivered back to the
// session that produced it. None of the current kinds want their own echo:
// a joiner already has local confirmation, a leaver is gone, and a cursor
// or schema edit was applied locally before it was published. The table
// exists so a future kind can opt in.
var echoToSender = map[string]bool{
	EventCursor:       false,
	EventJoin:         false,
	EventLeave:        false,
	EventSchemaUpdate: false,
}
