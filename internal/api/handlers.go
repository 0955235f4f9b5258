package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"courtbook/internal/models"
	"courtbook/internal/service"
)

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.bookings.Book(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"booking_id": booking.ID, "booking": booking})
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var (
		bookings []models.Booking
		err      error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, perr := models.ParseDate(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		bookings, err = s.bookings.ListByDate(r.Context(), date)
	} else {
		bookings, err = s.bookings.ListBookings(r.Context())
	}
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	booking, err := s.bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	participants, err := s.bookings.ListParticipants(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := models.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := models.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	var buf bytes.Buffer
	if err := s.bookings.Export(r.Context(), &buf, from, to); err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}

	filename := fmt.Sprintf("bookings_%s_%s.xlsx", from, to)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleCourts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"courts": s.bookings.Courts()})
}

func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"members": s.bookings.SearchMembers(r.URL.Query().Get("q"))})
}

func (s *HTTPServer) handlePaymentMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"payment_methods": s.bookings.PaymentMethods()})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	grid, err := s.bookings.Availability(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}
