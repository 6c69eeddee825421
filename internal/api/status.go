package api

import (
	"net/http"
	"time"

	"github.com/figwatch/figwatch/internal/pollstats"
	"github.com/figwatch/figwatch/internal/watch"
)

type StatusHandler struct {
	Watch WatchService
}

type statusResponse struct {
	Status string             `json:"status"`
	Uptime string             `json:"uptime"`
	Poll   pollstats.Snapshot `json:"poll"`
	Watch  watch.Overview     `json:"watch"`
}

// Status reports poll-cycle totals and the current watch surface.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, statusResponse{
		Status: "ok",
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Poll:   pollstats.SnapshotNow(),
		Watch:  h.Watch.Overview(),
	})
}
