package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"courtbook/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"

	permReadBookings   = "read:bookings"
	permWriteBookings  = "write:bookings"
	permExportBookings = "export:bookings"
	permReadCatalog    = "read:catalog"
	permSessions       = "write:sessions"
)

var (
	errMissingAPIKey    = errors.New("missing api key header")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

type clientKeyCtx struct{}

// clientKeyFrom returns the caller identity stored by HTTPAuth: the api
// client name joined with the remote host, or the key or host alone when
// auth is off.
func clientKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(clientKeyCtx{}).(string); ok {
		return v
	}
	return ""
}

// HTTPAuth provides API-key auth and per-client rate limiting.
type HTTPAuth struct {
	cfg             *config.APIConfig
	clientsByAPIKey map[string]config.APIClientKey
	limiter         *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{
		cfg:             cfg,
		clientsByAPIKey: m,
		limiter:         newRateLimiter(cfg),
	}
}

func (a *HTTPAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := a.clientKey(r)
		if a.cfg.Auth.Enabled {
			client, err := a.checkAuth(r)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					status = http.StatusForbidden
				}
				writeError(w, status, err.Error())
				return
			}
			// one api key is shared by every browser running the widget
			if client.Name != "" {
				key = client.Name + "@" + remoteHost(r)
			}
		}

		if !a.limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKeyCtx{}, key)))
	})
}

func (a *HTTPAuth) headerName() string {
	h := strings.ToLower(strings.TrimSpace(a.cfg.Auth.HeaderAPIKey))
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

func (a *HTTPAuth) checkAuth(r *http.Request) (config.APIClientKey, error) {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerName()))
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}

	var (
		client config.APIClientKey
		found  bool
	)
	for k, c := range a.clientsByAPIKey {
		if subtle.ConstantTimeCompare([]byte(k), []byte(apiKey)) == 1 {
			client, found = c, true
		}
	}
	if !found {
		return config.APIClientKey{}, errInvalidAPIKey
	}

	if err := checkPermissions(client, requiredPermission(r.Method, r.URL.Path)); err != nil {
		return config.APIClientKey{}, err
	}
	return client, nil
}

func checkPermissions(client config.APIClientKey, required string) error {
	if required == "" {
		return nil
	}
	// If permissions list is empty, treat as allow-all.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/sessions"):
		return permSessions
	case path == "/api/v1/bookings/export":
		return permExportBookings
	case strings.HasPrefix(path, "/api/bookings"):
		if method == http.MethodPost {
			return permWriteBookings
		}
		return permReadBookings
	case strings.HasPrefix(path, "/api/v1/availability"):
		return permReadBookings
	case path == "/api/v1/courts", path == "/api/v1/members", path == "/api/v1/payment-methods":
		return permReadCatalog
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerName())); apiKey != "" {
		return apiKey
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}
