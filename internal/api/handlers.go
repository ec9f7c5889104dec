package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/domain"
	"github.com/kollulohithaalekhya/event-driven-user-activity-tracker/internal/queue"
)

// AcceptedMessage is returned once the broker has confirmed an event.
const AcceptedMessage = "Event accepted for processing"

// TrackResponse is the body of a 202 response.
type TrackResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ValidationDetail locates one invalid request field.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationResponse is the body of a 422 response.
type ValidationResponse struct {
	Detail []ValidationDetail `json:"detail"`
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) trackEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	event, err := h.tracker.TrackEvent(r.Context(), body)
	if err != nil {
		h.writeTrackError(w, r, err)
		return
	}

	h.logger.Debug().
		Str("request_id", requestIDFrom(r.Context())).
		Int64("user_id", event.UserID).
		Str("event_type", event.EventType).
		Msg("event accepted")
	writeJSON(w, http.StatusAccepted, TrackResponse{Message: AcceptedMessage})
}

func (h *Handler) writeTrackError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse(verr))
		return
	}

	cause := err
	var publishErr *queue.PublishError
	if errors.As(err, &publishErr) {
		cause = publishErr.Err
	}
	h.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("track event failed")
	writeDetail(w, http.StatusInternalServerError, "Failed to publish event: "+cause.Error())
}

func validationResponse(verr *domain.ValidationError) ValidationResponse {
	resp := ValidationResponse{Detail: make([]ValidationDetail, 0, len(verr.Fields))}
	for _, f := range verr.Fields {
		loc := []string{"body"}
		if f.Field != "" {
			loc = append(loc, f.Field)
		}
		resp.Detail = append(resp.Detail, ValidationDetail{Loc: loc, Msg: f.Message, Type: f.Type})
	}
	return resp
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
