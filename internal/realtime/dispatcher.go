package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// EventContext carries the routing facts the server derived from the
// connection itself. Handlers must use these, never a document or session
// id embedded in a client payload.
type EventContext struct {
	DocumentID string
	SessionID  string
}

// Handler processes one inbound event kind. Handlers do not return errors:
// anything that goes wrong mid-handle is logged by the handler and the
// connection stays open.
type Handler interface {
	Kind() string
	Handle(ctx context.Context, ec EventContext, payload json.RawMessage)
}

// Dispatcher is the single entry point for frames arriving from clients
// and for events relayed off the bus. Inbound frames are resolved to a
// handler by their type tag; bus events are fanned out to the local
// registry with the kind's sender-exclusion policy applied.
type Dispatcher struct {
	registry *Registry
	handlers map[string]Handler
	log      zerolog.Logger
}

// NewDispatcher builds the kind -> handler table from the given handler
// list. A later handler for a kind already claimed wins, with a warning;
// that is a wiring mistake, not a runtime failure.
func NewDispatcher(registry *Registry, log zerolog.Logger, handlers ...Handler) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		handlers: make(map[string]Handler, len(handlers)),
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
	for _, h := range handlers {
		if _, dup := d.handlers[h.Kind()]; dup {
			d.log.Warn().Str("event", h.Kind()).Msg("duplicate handler registration, keeping the later one")
		}
		d.handlers[h.Kind()] = h
	}
	return d
}

// HandleInbound decodes a client frame and invokes the handler registered
// for its kind. Undecodable frames and unknown kinds are logged and
// discarded; nothing on this path ever closes the connection.
func (d *Dispatcher) HandleInbound(ctx context.Context, documentID, sessionID string, raw []byte) {
	var evt InboundEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		d.log.Warn().
			Err(err).
			Str("document_id", documentID).
			Str("session_id", sessionID).
			Msg("discarding undecodable client frame")
		return
	}
	h, ok := d.handlers[evt.Type]
	if !ok {
		d.log.Warn().
			Str("document_id", documentID).
			Str("session_id", sessionID).
			Str("event", evt.Type).
			Msg("no handler registered for event kind")
		return
	}
	h.Handle(ctx, EventContext{DocumentID: documentID, SessionID: sessionID}, evt.Payload)
}

// HandleBusMessage delivers an event received off the bus to this
// instance's connections. The envelope's origin is used only to compute
// the exclusion; clients receive the inner event alone.
func (d *Dispatcher) HandleBusMessage(ctx context.Context, documentID string, raw []byte) {
	var env busEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.log.Warn().
			Err(err).
			Str("document_id", documentID).
			Msg("discarding undecodable bus message")
		return
	}
	payload, err := json.Marshal(env.Event)
	if err != nil {
		d.log.Error().
			Err(err).
			Str("document_id", documentID).
			Str("event", env.Event.Type).
			Msg("dropping unencodable bus event")
		return
	}
	exclude := env.Origin
	if echoToSender[env.Event.Type] {
		exclude = ""
	}
	d.registry.Broadcast(documentID, exclude, payload)
}
