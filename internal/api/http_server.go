// Package api exposes bookings, the court catalogue and booking sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

type HTTPServer struct {
	cfg      config.APIConfig
	bookings *service.BookingService
	sessions *service.SessionService
	ready    Pinger
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, bookings *service.BookingService, sessions *service.SessionService, ready Pinger, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{
		cfg:      cfg,
		bookings: bookings,
		sessions: sessions,
		ready:    ready,
		logger:   logger,
	}
	srv.auth = NewHTTPAuth(&srv.cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := Chain(
		requestID,
		accessLog(logger),
		recoverer(logger),
		srv.auth.Middleware,
		capturePattern,
	)(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/bookings", s.handleListBookings)
	mux.HandleFunc("GET /api/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("GET /api/bookings/{id}/participants", s.handleListParticipants)

	mux.HandleFunc("GET /api/v1/bookings/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/courts", s.handleCourts)
	mux.HandleFunc("GET /api/v1/members", s.handleMembers)
	mux.HandleFunc("GET /api/v1/payment-methods", s.handlePaymentMethods)
	mux.HandleFunc("GET /api/v1/availability", s.handleAvailability)

	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/date", s.handleSelectDate)
	mux.HandleFunc("POST /api/v1/sessions/{id}/time", s.handleSelectTime)
	mux.HandleFunc("POST /api/v1/sessions/{id}/court", s.handleSelectCourt)
	mux.HandleFunc("POST /api/v1/sessions/{id}/participants", s.handleAddParticipant)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/participants/{pid}", s.handleRemoveParticipant)
	mux.HandleFunc("POST /api/v1/sessions/{id}/players/confirm", s.handleConfirmPlayers)
	mux.HandleFunc("POST /api/v1/sessions/{id}/payment", s.handleSelectPayment)
	mux.HandleFunc("POST /api/v1/sessions/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/v1/sessions/{id}/back", s.handleBack)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.handleCancel)
}

// Handler is the full middleware-wrapped handler, used by tests.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeJSON reads a JSON body. An empty body leaves dst untouched when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Error: message})
}
