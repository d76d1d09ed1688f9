package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// handleWSWorker upgrades a worker's log-forwarding connection and feeds
// its frames into the hub under its hostname.
func (a *API) handleWSWorker(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("worker websocket upgrade failed", zap.Error(err))
		}
		return
	}
	a.Hub.ServeWorker(r.Context(), hostname, conn)
}

// handleWSViewer upgrades a dashboard viewer's connection and streams a
// hostname's replayed backlog plus live log lines to it.
func (a *API) handleWSViewer(w http.ResponseWriter, r *http.Request) {
	hostname := chi.URLParam(r, "hostname")
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if a.Log != nil {
			a.Log.Warn("viewer websocket upgrade failed", zap.Error(err))
		}
		return
	}
	a.Hub.ServeViewer(r.Context(), hostname, conn)
}
