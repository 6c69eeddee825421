package api

import (
	"net/http"
)

type PollHandler struct {
	Poller CycleRunner
}

// Run triggers one poll cycle and reports its counts. The runner
// serializes cycles, so a trigger during a scheduled sweep blocks until
// that sweep finishes.
func (h *PollHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.Poller == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "poller not available"})
		return
	}

	result, err := h.Poller.RunOnce(r.Context())
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	sendJSON(w, http.StatusOK, result)
}
