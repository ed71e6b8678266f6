package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/facepass/internal/access"
	"github.com/kozaktomas/facepass/internal/logging"
	"github.com/kozaktomas/facepass/internal/web/middleware"
)

const sseKeepAlive = 25 * time.Second

// AccessProcessor decides access attempts.
type AccessProcessor interface {
	Process(ctx context.Context, attempt access.Attempt) (*access.Decision, error)
}

// AccessHandler handles access attempts from terminals and the live feed.
type AccessHandler struct {
	processor   AccessProcessor
	broadcaster *access.Broadcaster
}

// NewAccessHandler creates a new access handler. broadcaster may be nil.
func NewAccessHandler(processor AccessProcessor, broadcaster *access.Broadcaster) *AccessHandler {
	return &AccessHandler{processor: processor, broadcaster: broadcaster}
}

// AttemptResponse wraps a decision with a display message.
type AttemptResponse struct {
	Message  string           `json:"message"`
	Decision *access.Decision `json:"decision"`
	TraceID  string           `json:"trace_id,omitempty"`
}

// Attempt processes a multipart "image" upload with an optional "location".
// Face-processing outcomes always answer 200 with the decision; system
// errors are logged and surface only as the "system error" reason.
func (h *AccessHandler) Attempt(w http.ResponseWriter, r *http.Request) {
	image, err := readUpload(w, r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	attempt := access.Attempt{
		Image:    image,
		Location: r.FormValue("location"),
	}
	if session := middleware.GetSessionFromContext(r.Context()); session != nil {
		attempt.RecipientID = session.ManagerID
	}

	decision, err := h.processor.Process(r.Context(), attempt)
	resp := AttemptResponse{Decision: decision}
	if err != nil {
		resp.TraceID = logging.ErrorWithTraceID(r.Context(), err, logging.Fields{"attempt_id": attemptID(decision)}, "access attempt failed")
		if decision == nil {
			decision = &access.Decision{Reason: access.ReasonSystemError, Timestamp: time.Now()}
			resp.Decision = decision
		}
	}
	if decision.Allowed {
		resp.Message = "Access allowed"
	} else {
		resp.Message = "Access denied"
	}
	respondJSON(w, http.StatusOK, resp)
}

func attemptID(d *access.Decision) string {
	if d == nil {
		return ""
	}
	return d.AttemptID
}

// Events streams every decision as a server-sent "decision" event.
func (h *AccessHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.broadcaster == nil {
		respondError(w, http.StatusServiceUnavailable, "live feed disabled")
		return
	}
	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	events, cancel := h.broadcaster.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			if err := r.Context().Err(); err != nil && !errors.Is(err, context.Canceled) {
				logging.FromContext(r.Context()).WithError(err).Debug("event stream ended")
			}
			return
		case <-keepAlive.C:
			sendSSEEvent(w, flusher, "ping", map[string]string{"time": time.Now().Format(time.RFC3339)})
		case d, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "decision", d)
		}
	}
}
