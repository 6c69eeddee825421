package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/watch"
)

const (
	classUpdates  = "updates"
	classComments = "comments"
)

type SubscriptionsHandler struct {
	Watch WatchService
}

type subscriptionListResponse struct {
	Subscriber string               `json:"subscriber"`
	Items      []watch.Subscription `json:"items"`
	Total      int                  `json:"total"`
}

type createSubscriptionRequest struct {
	Subscriber string `json:"subscriber"`
	File       string `json:"file"`
	Class      string `json:"class"`
}

type deleteSubscriptionResponse struct {
	Removed bool `json:"removed"`
}

// List returns one subscriber's watch list across both classes.
func (h *SubscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	subscriber := strings.TrimSpace(r.URL.Query().Get("subscriber"))
	if subscriber == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "subscriber is required"})
		return
	}

	items := h.Watch.List(r.Context(), subscriber)
	sendJSON(w, http.StatusOK, subscriptionListResponse{
		Subscriber: subscriber,
		Items:      items,
		Total:      len(items),
	})
}

// Create subscribes a subscriber to a file. The class selects version
// watching (the default) or comment watching; the file accepts a bare
// key or any Figma URL.
func (h *SubscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	subscriber := strings.TrimSpace(req.Subscriber)
	if subscriber == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "subscriber is required"})
		return
	}
	fileKey := figma.ParseFileKey(strings.TrimSpace(req.File))
	if fileKey == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "a file key or Figma URL is required"})
		return
	}

	switch strings.TrimSpace(req.Class) {
	case "", classUpdates:
		result, err := h.Watch.Subscribe(r.Context(), subscriber, fileKey)
		if err != nil {
			sendJSON(w, subscribeErrorStatus(err), errorResponse{Error: err.Error()})
			return
		}
		status := http.StatusCreated
		if result.AlreadySubscribed {
			status = http.StatusOK
		}
		sendJSON(w, status, result)
	case classComments:
		result, err := h.Watch.SubscribeComments(r.Context(), subscriber, fileKey)
		if err != nil {
			sendJSON(w, subscribeErrorStatus(err), errorResponse{Error: err.Error()})
			return
		}
		status := http.StatusCreated
		if result.AlreadySubscribed {
			status = http.StatusOK
		}
		sendJSON(w, status, result)
	default:
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "class must be updates or comments"})
	}
}

// Delete removes a subscription edge. Removing the updates class also
// cascades the same subscriber's comment edge.
func (h *SubscriptionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subscriber := strings.TrimSpace(r.URL.Query().Get("subscriber"))
	fileKey := figma.ParseFileKey(strings.TrimSpace(r.URL.Query().Get("file")))
	if subscriber == "" || fileKey == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "subscriber and file are required"})
		return
	}

	var removed bool
	switch strings.TrimSpace(r.URL.Query().Get("class")) {
	case "", classUpdates:
		removed = h.Watch.Unsubscribe(r.Context(), subscriber, fileKey)
	case classComments:
		removed = h.Watch.UnsubscribeComments(r.Context(), subscriber, fileKey)
	default:
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "class must be updates or comments"})
		return
	}
	sendJSON(w, http.StatusOK, deleteSubscriptionResponse{Removed: removed})
}

// subscribeErrorStatus maps a failed file lookup onto the response
// status: a missing file is the caller's problem, everything else is an
// upstream failure.
func subscribeErrorStatus(err error) int {
	var apiErr *figma.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
