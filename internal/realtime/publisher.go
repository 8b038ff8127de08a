package realtime

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Publisher serializes outbound events onto a document's bus channel.
// Publishing is best effort: presence and cursor traffic is worthless a
// moment later, so every failure on this path is logged and swallowed and
// the method deliberately returns nothing.
type Publisher struct {
	bus    Bus
	prefix string
	log    zerolog.Logger
}

func NewPublisher(bus Bus, prefix string, log zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Publisher{
		bus:    bus,
		prefix: prefix,
		log:    log.With().Str("component", "publisher").Logger(),
	}
}

// Publish wraps the event in a bus envelope attributed to origin and
// publishes it to the document's channel.
func (p *Publisher) Publish(ctx context.Context, documentID, origin string, event OutboundEvent) {
	data, err := json.Marshal(busEnvelope{Origin: origin, Event: event})
	if err != nil {
		p.log.Error().
			Err(err).
			Str("document_id", documentID).
			Str("session_id", origin).
			Str("event", event.Type).
			Msg("dropping unencodable event")
		return
	}
	if err := p.bus.Publish(ctx, documentChannel(p.prefix, documentID), data).Err(); err != nil {
		p.log.Warn().
			Err(err).
			Str("document_id", documentID).
			Str("session_id", origin).
			Str("event", event.Type).
			Msg("bus publish failed, dropping event")
	}
}
