package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

type requestIDCtx struct{}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(handler http.Handler) http.Handler {
		chained := handler
		for i := len(middlewares) - 1; i >= 0; i-- {
			chained = middlewares[i](chained)
		}
		return chained
	}
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDCtx{}).(string); ok {
		return v
	}
	return ""
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDCtx{}, id)))
	})
}

// accessLog logs every request and records it in the HTTP metrics.
func accessLog(logger *zerolog.Logger) Middleware {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			dur := time.Since(start)

			endpoint := recorder.pattern
			if endpoint == "" {
				endpoint = "unmatched"
			}
			metrics.ObserveHTTP(endpoint, strconv.Itoa(recorder.status), dur.Seconds())

			event := base.Info()
			if recorder.status >= http.StatusInternalServerError {
				event = base.Error()
			}
			event.
				Str("request_id", requestIDFrom(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", recorder.status).
				Dur("duration", dur).
				Msg("http request")
		})
	}
}

// recoverer turns a handler panic into a 500.
func recoverer(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
					}
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// capturePattern copies the matched route pattern into the status recorder.
// It must wrap the mux directly: outer handlers hold a different *http.Request.
func capturePattern(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if rec, ok := w.(*statusRecorder); ok {
			rec.pattern = r.Pattern
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	pattern string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
