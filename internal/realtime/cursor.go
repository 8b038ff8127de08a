package realtime

import (
	"math"
	"sync"
)

// cursorEpsilon is the minimum movement, in document-coordinate units, on
// at least one axis before a cursor update is worth broadcasting.
const cursorEpsilon = 0.5

// CursorCache remembers the last broadcast pointer position per session so
// near-identical movements can be suppressed. Entries are keyed per
// session; concurrent updates for different sessions never contend.
type CursorCache struct {
	positions sync.Map // session id -> *cursorEntry
}

type cursorEntry struct {
	mu   sync.Mutex
	x, y float64
}

func NewCursorCache() *CursorCache {
	return &CursorCache{}
}

// Observe reports whether (x, y) is a meaningful move for the session. A
// position is a duplicate, and suppressed, only when both axes moved less
// than cursorEpsilon from the last accepted position. The first position
// for a session is always accepted. The stored position advances only on
// accept, so a slow drift below the threshold still fires once it
// accumulates past it.
func (c *CursorCache) Observe(sessionID string, x, y float64) bool {
	v, loaded := c.positions.LoadOrStore(sessionID, &cursorEntry{x: x, y: y})
	if !loaded {
		return true
	}
	e := v.(*cursorEntry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.Abs(x-e.x) < cursorEpsilon && math.Abs(y-e.y) < cursorEpsilon {
		return false
	}
	e.x, e.y = x, y
	return true
}

// Forget drops the cached position for a session. Called when the session
// is removed so the cache never holds entries for unregistered sessions.
func (c *CursorCache) Forget(sessionID string) {
	c.positions.Delete(sessionID)
}
