package store

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"schemacanvas/server/internal/realtime"
)

// SchemaWriter is the slice of SchemaStore the handler needs.
type SchemaWriter interface {
	SaveSchema(ctx context.Context, documentID string, content json.RawMessage) error
}

// EventPublisher is the slice of the realtime publisher the handler needs.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, origin string, event realtime.OutboundEvent)
}

// SchemaUpdateHandler persists an edit intent and republishes it so peers
// on every instance apply the same change. A persistence failure is logged
// but does not block the broadcast: the editing client already applied the
// change locally, and holding it back would fork what peers see.
type SchemaUpdateHandler struct {
	store SchemaWriter
	pub   EventPublisher
	log   zerolog.Logger
}

func NewSchemaUpdateHandler(store SchemaWriter, pub EventPublisher, log zerolog.Logger) *SchemaUpdateHandler {
	return &SchemaUpdateHandler{
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "schema_handler").Logger(),
	}
}

func (h *SchemaUpdateHandler) Kind() string { return realtime.EventSchemaUpdate }

func (h *SchemaUpdateHandler) Handle(ctx context.Context, ec realtime.EventContext, payload json.RawMessage) {
	if len(payload) == 0 {
		h.log.Warn().
			Str("document_id", ec.DocumentID).
			Str("session_id", ec.SessionID).
			Str("event", realtime.EventSchemaUpdate).
			Msg("discarding empty schema update")
		return
	}
	if err := h.store.SaveSchema(ctx, ec.DocumentID, payload); err != nil {
		h.log.Error().
			Err(err).
			Str("document_id", ec.DocumentID).
			Str("session_id", ec.SessionID).
			Msg("schema persistence failed, broadcasting anyway")
	}
	h.pub.Publish(ctx, ec.DocumentID, ec.SessionID, realtime.OutboundEvent{
		Type:  realtime.EventSchemaUpdate,
		Patch: payload,
	})
}
