package api

import (
	"errors"
	"net/http"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/service"
	"courtbook/internal/session"
)

type errorBody struct {
	Error         string                   `json:"error"`
	Reason        policy.Reason            `json:"reason,omitempty"`
	SuggestedDate *models.Date             `json:"suggested_date,omitempty"`
	Details       session.ValidationErrors `json:"details,omitempty"`
	Retryable     *bool                    `json:"retryable,omitempty"`
	Session       *session.Snapshot        `json:"session,omitempty"`
}

// writeServiceError maps domain errors to HTTP statuses. snap, when set, is
// the session state after the failed action.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error, snap *session.Snapshot) {
	status, body := s.errorResponse(err)
	if snap != nil && snap.ID != "" {
		body.Session = snap
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", requestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, body)
}

func (s *HTTPServer) errorResponse(err error) (int, errorBody) {
	var (
		ineligible  *session.IneligibleError
		verrs       session.ValidationErrors
		persistence *session.PersistenceError
	)

	switch {
	case errors.As(err, &ineligible):
		msg := ineligible.Reason().Message()
		if ineligible.Blocked {
			msg = "booking is currently disabled"
		}
		body := errorBody{Error: msg, Reason: ineligible.Reason()}
		if !ineligible.Suggested.IsZero() {
			suggested := ineligible.Suggested
			body.SuggestedDate = &suggested
		}
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &verrs):
		return http.StatusBadRequest, errorBody{Error: "validation failed", Details: verrs}
	case errors.As(err, &persistence):
		retryable := persistence.Retryable()
		if !retryable {
			return http.StatusConflict, errorBody{Error: persistence.Err.Error(), Retryable: &retryable}
		}
		return http.StatusServiceUnavailable, errorBody{Error: "booking could not be saved, please try again", Retryable: &retryable}
	case errors.Is(err, domain.ErrSlotTaken):
		return http.StatusConflict, errorBody{Error: domain.ErrSlotTaken.Error()}
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrConfirmInFlight),
		errors.Is(err, session.ErrOrganizerRequired),
		errors.Is(err, service.ErrSessionBusy):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case errors.Is(err, session.ErrParticipantNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: err.Error()}
	case errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}
