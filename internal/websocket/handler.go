package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/kodix/kodix/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and subscribes it to
// the caller's active team.
func HandleWebSocket(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok || ac.TeamID == 0 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		NewClient(hub, conn, ac.TeamID, ac.UserID).Run(r.Context())
	}
}
