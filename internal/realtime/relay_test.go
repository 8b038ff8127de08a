package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectBackoffSchedule(t *testing.T) {
	bo := newReconnectBackoff()
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, expected := range want {
		assert.Equal(t, expected, bo.NextBackOff(), "attempt %d", i+1)
	}
}

func TestReconnectBackoffResets(t *testing.T) {
	bo := newReconnectBackoff()
	for i := 0; i < 4; i++ {
		bo.NextBackOff()
	}
	bo.Reset()
	assert.Equal(t, 1*time.Second, bo.NextBackOff(), "a successful reconnect starts the ladder over")
}

func TestDocumentChannelRoundTrip(t *testing.T) {
	cases := []string{"doc-1", "a/b", "schemacanvas", "7d2f5b7e"}
	for _, id := range cases {
		channel := documentChannel(DefaultChannelPrefix, id)
		assert.Equal(t, id, documentIDFromChannel(DefaultChannelPrefix, channel))
	}
}

func TestDocumentIDFromChannelFallback(t *testing.T) {
	// A channel without the expected prefix is treated as the id itself
	// rather than dropped.
	assert.Equal(t, "mystery:chan", documentIDFromChannel(DefaultChannelPrefix, "mystery:chan"))
}

func TestRelayCloseIdempotent(t *testing.T) {
	r := NewRelay(&fakeBus{}, "", nil, testLogger())
	r.Close()
	r.Close()
}

func TestRelayRunAfterCloseReturns(t *testing.T) {
	r := NewRelay(&fakeBus{}, "", nil, testLogger())
	r.Close()

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
