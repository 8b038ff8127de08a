package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultMaxMessageBytes = 64 << 10

// IdentityFunc resolves who is behind an upgrade request. Supplied by the
// auth boundary; the realtime layer trusts whatever it returns.
type IdentityFunc func(r *http.Request) Identity

// WSHandler upgrades /ws/{documentID} requests, registers the session and
// runs its read loop until the connection goes away.
type WSHandler struct {
	registry        *Registry
	cursors         *CursorCache
	dispatcher      *Dispatcher
	pub             *Publisher
	identify        IdentityFunc
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	log             zerolog.Logger
}

func NewWSHandler(
	registry *Registry,
	cursors *CursorCache,
	dispatcher *Dispatcher,
	pub *Publisher,
	identify IdentityFunc,
	maxMessageBytes int64,
	log zerolog.Logger,
) *WSHandler {
	if maxMessageBytes <= 0 {
		maxMessageBytes = defaultMaxMessageBytes
	}
	return &WSHandler{
		registry:   registry,
		cursors:    cursors,
		dispatcher: dispatcher,
		pub:        pub,
		identify:   identify,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the app origin, which is served
			// separately from this instance.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		maxMessageBytes: maxMessageBytes,
		log:             log.With().Str("component", "ws").Logger(),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentID"]
	if documentID == "" {
		http.Error(w, "missing document id", http.StatusBadRequest)
		return
	}
	identity := h.identify(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("document_id", documentID).Msg("websocket upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	log := h.log.With().
		Str("document_id", documentID).
		Str("session_id", sessionID).
		Str("user_id", identity.UserID).
		Logger()
	log.Info().Msg("session connected")

	wc := newWSConn(conn)
	h.registry.Register(documentID, sessionID, wc, identity)

	defer func() {
		// The session may already be gone via an explicit leave frame or a
		// re-register that replaced it; only the removal that finds it
		// still registered announces the departure. The publish uses a
		// fresh context because the request context dies with this
		// handler.
		if h.registry.Unregister(documentID, sessionID) {
			h.cursors.Forget(sessionID)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			h.pub.Publish(ctx, documentID, sessionID, OutboundEvent{
				Type:     EventLeave,
				UserID:   identity.UserID,
				UserName: identity.Name,
			})
		}
		log.Info().Msg("session disconnected")
	}()

	h.pub.Publish(r.Context(), documentID, sessionID, OutboundEvent{
		Type:     EventJoin,
		UserID:   identity.UserID,
		UserName: identity.Name,
	})

	conn.SetReadLimit(h.maxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read loop ended")
			}
			return
		}
		h.dispatcher.HandleInbound(r.Context(), documentID, sessionID, raw)
	}
}
