package realtime

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix namespaces the per-document bus channels.
const DefaultChannelPrefix = "schemacanvas:doc:"

// Bus is the subset of the Redis client the realtime layer touches. It is
// satisfied by *redis.Client and narrows the surface tests have to fake.
type Bus interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

// documentChannel builds the bus channel name for a document: the fixed
// prefix followed by the document id verbatim.
func documentChannel(prefix, documentID string) string {
	return prefix + documentID
}

// documentIDFromChannel recovers the document id from a channel name. A
// name that does not carry the expected prefix is treated as the id
// itself rather than dropped; a message on an oddly named channel is
// still worth delivering somewhere diagnosable.
func documentIDFromChannel(prefix, channel string) string {
	if id, ok := strings.CutPrefix(channel, prefix); ok {
		return id
	}
	return channel
}
