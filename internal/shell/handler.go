package shell

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sessionforge/sessionforge/internal/billing"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/manager"
	"github.com/sessionforge/sessionforge/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin allows same-origin and configured cross-origin browser
// clients while still accepting non-browser clients (no Origin header).
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowed == "" {
		return true
	}
	for _, o := range strings.Split(allowed, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// Handler upgrades an HTTP request to a WebSocket and bridges it to the
// requested session's shell stream for the lifetime of the connection.
type Handler struct {
	mgr     *manager.Core
	store   store.Store
	billing *billing.Engine
}

func NewHandler(mgr *manager.Core, s store.Store, b *billing.Engine) *Handler {
	return &Handler{mgr: mgr, store: s, billing: b}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	log := logger.Shell()
	ctx := r.Context()

	stream, sess, err := h.mgr.OpenShell(ctx, sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("websocket upgrade failed")
		_ = stream.Close()
		return
	}

	bridge := New(conn, stream, sessionID, sess.UserID, h.store, h.billing)
	bridge.Run(ctx)
}
