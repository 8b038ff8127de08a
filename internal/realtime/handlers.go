package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// CursorHandler broadcasts pointer movement, decorated with the mover's
// identity, after the dedup filter lets it through.
type CursorHandler struct {
	registry *Registry
	cursors  *CursorCache
	pub      *Publisher
	log      zerolog.Logger
}

func NewCursorHandler(registry *Registry, cursors *CursorCache, pub *Publisher, log zerolog.Logger) *CursorHandler {
	return &CursorHandler{registry: registry, cursors: cursors, pub: pub, log: log}
}

func (h *CursorHandler) Kind() string { return EventCursor }

func (h *CursorHandler) Handle(ctx context.Context, ec EventContext, payload json.RawMessage) {
	var pos CursorPosition
	if err := json.Unmarshal(payload, &pos); err != nil {
		h.log.Warn().
			Err(err).
			Str("document_id", ec.DocumentID).
			Str("session_id", ec.SessionID).
			Str("event", EventCursor).
			Msg("discarding malformed cursor payload")
		return
	}
	if !h.cursors.Observe(ec.SessionID, pos.X, pos.Y) {
		return
	}
	identity, _ := h.registry.LookupIdentity(ec.SessionID)
	h.pub.Publish(ctx, ec.DocumentID, ec.SessionID, OutboundEvent{
		Type:     EventCursor,
		UserID:   identity.UserID,
		UserName: identity.Name,
		Cursor:   &pos,
	})
}

// JoinHandler announces a session to its document peers. Registration into
// the registry happened at connection accept; this only publishes.
type JoinHandler struct {
	registry *Registry
	pub      *Publisher
}

func NewJoinHandler(registry *Registry, pub *Publisher) *JoinHandler {
	return &JoinHandler{registry: registry, pub: pub}
}

func (h *JoinHandler) Kind() string { return EventJoin }

func (h *JoinHandler) Handle(ctx context.Context, ec EventContext, _ json.RawMessage) {
	identity, _ := h.registry.LookupIdentity(ec.SessionID)
	h.pub.Publish(ctx, ec.DocumentID, ec.SessionID, OutboundEvent{
		Type:     EventJoin,
		UserID:   identity.UserID,
		UserName: identity.Name,
	})
}

// LeaveHandler removes a session on an explicit leave frame. The
// connection-close path in the websocket endpoint produces the same
// effects, so whichever runs second finds nothing left to do.
type LeaveHandler struct {
	registry *Registry
	cursors  *CursorCache
	pub      *Publisher
}

func NewLeaveHandler(registry *Registry, cursors *CursorCache, pub *Publisher) *LeaveHandler {
	return &LeaveHandler{registry: registry, cursors: cursors, pub: pub}
}

func (h *LeaveHandler) Kind() string { return EventLeave }

func (h *LeaveHandler) Handle(ctx context.Context, ec EventContext, _ json.RawMessage) {
	identity, _ := h.registry.LookupIdentity(ec.SessionID)
	if !h.registry.Unregister(ec.DocumentID, ec.SessionID) {
		return
	}
	h.cursors.Forget(ec.SessionID)
	h.pub.Publish(ctx, ec.DocumentID, ec.SessionID, OutboundEvent{
		Type:     EventLeave,
		UserID:   identity.UserID,
		UserName: identity.Name,
	})
}
