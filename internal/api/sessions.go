package api

import (
	"net/http"

	"courtbook/internal/models"
	"courtbook/internal/session"
)

type createSessionRequest struct {
	Organizer session.ParticipantInput `json:"organizer"`
	Date      models.Date              `json:"date"`
}

type selectDateRequest struct {
	Date models.Date `json:"date"`
}

type selectTimeRequest struct {
	Date      models.Date       `json:"date"`
	StartTime *models.TimeOfDay `json:"start_time"`
}

type selectCourtRequest struct {
	CourtID  string `json:"court_id"`
	Duration int    `json:"duration"`
}

type selectPaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type backRequest struct {
	To models.State `json:"to"`
}

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snap, err := s.sessions.Create(r.Context(), clientKeyFrom(r.Context()), req.Organizer, req.Date)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apply runs one wizard action and writes the resulting snapshot.
func (s *HTTPServer) apply(w http.ResponseWriter, r *http.Request, name string, action func(*session.Session) error) {
	snap, err := s.sessions.Apply(r.Context(), r.PathValue("id"), name, action)
	if err != nil {
		s.writeServiceError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	var req selectDateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.apply(w, r, "date", func(sess *session.Session) error {
		return sess.SelectDate(req.Date)
	})
}

func (s *HTTPServer) handleSelectTime(w http.ResponseWriter, r *http.Request) {
	var req selectTimeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StartTime == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "validation failed",
			Details: session.ValidationErrors{{Field: "start_time", Tag: "required", Message: "start_time is required"}},
		})
		return
	}
	s.apply(w, r, "time", func(sess *session.Session) error {
		return sess.SelectTime(req.Date, *req.StartTime)
	})
}

func (s *HTTPServer) handleSelectCourt(w http.ResponseWriter, r *http.Request) {
	var req selectCourtRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.apply(w, r, "court", func(sess *session.Session) error {
		return sess.SelectCourt(req.CourtID, req.Duration)
	})
}

func (s *HTTPServer) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req session.ParticipantInput
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.apply(w, r, "add participant", func(sess *session.Session) error {
		_, err := sess.AddParticipant(req)
		return err
	})
}

func (s *HTTPServer) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	s.apply(w, r, "remove participant", func(sess *session.Session) error {
		return sess.RemoveParticipant(pid)
	})
}

func (s *HTTPServer) handleConfirmPlayers(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "confirm players", (*session.Session).ConfirmPlayers)
}

func (s *HTTPServer) handleSelectPayment(w http.ResponseWriter, r *http.Request) {
	var req selectPaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.apply(w, r, "payment", func(sess *session.Session) error {
		return sess.SelectPayment(req.PaymentMethod)
	})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	snap, booking, err := s.sessions.Confirm(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, &snap)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"booking": booking, "session": snap})
}

// handleBack steps back once, or to the state named in the body.
func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	var req backRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.apply(w, r, "back", func(sess *session.Session) error {
		if req.To == "" {
			return sess.Back()
		}
		return sess.BackTo(req.To)
	})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "cancel", (*session.Session).Cancel)
}
