package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	relayInitialBackoff = 1 * time.Second
	relayMaxBackoff     = 30 * time.Second
)

// Relay holds one pattern subscription covering every document channel and
// bridges each bus message into a local broadcast. It is critical,
// long-running infrastructure: the subscription is retried forever with
// exponential backoff, and a bad message never tears it down.
type Relay struct {
	bus        Bus
	prefix     string
	dispatcher *Dispatcher
	log        zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func NewRelay(bus Bus, prefix string, dispatcher *Dispatcher, log zerolog.Logger) *Relay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Relay{
		bus:        bus,
		prefix:     prefix,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "relay").Logger(),
	}
}

// newReconnectBackoff returns the relay's retry policy: 1s doubling to a
// 30s ceiling, no jitter, no give-up deadline.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = relayInitialBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = relayMaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Run blocks, keeping the subscription alive until ctx is canceled or
// Close is called. Each failed attempt is logged with its count; the
// backoff resets once a subscription is established again.
func (r *Relay) Run(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	pattern := r.prefix + "*"
	bo := newReconnectBackoff()
	for attempt := 1; ; attempt++ {
		err := r.consume(runCtx, pattern, bo)
		if runCtx.Err() != nil {
			r.log.Info().Msg("relay stopped")
			return
		}
		wait := bo.NextBackOff()
		r.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Str("pattern", pattern).
			Msg("bus subscription lost, reconnecting")
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-runCtx.Done():
			timer.Stop()
			r.log.Info().Msg("relay stopped")
			return
		}
	}
}

// consume opens the pattern subscription and forwards messages until the
// subscription breaks or ctx is canceled.
func (r *Relay) consume(ctx context.Context, pattern string, bo *backoff.ExponentialBackOff) error {
	pubsub := r.bus.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	// Wait for the subscription confirmation before declaring the relay
	// healthy again.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	bo.Reset()
	r.log.Info().Str("pattern", pattern).Msg("bus subscription established")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			r.deliver(ctx, msg)
		}
	}
}

// deliver maps one bus message back to its document and hands it to the
// dispatcher, isolating any per-message failure from the subscription.
func (r *Relay) deliver(ctx context.Context, msg *redis.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Interface("panic", rec).
				Str("channel", msg.Channel).
				Msg("panic while relaying bus message")
		}
	}()
	documentID := documentIDFromChannel(r.prefix, msg.Channel)
	r.dispatcher.HandleBusMessage(ctx, documentID, []byte(msg.Payload))
}

// Close stops the relay. Closing an already-closed relay is a no-op, and
// closing before Run makes a later Run return immediately.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
}
