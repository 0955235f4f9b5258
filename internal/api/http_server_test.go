package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/models"
	"courtbook/internal/policy"
	"courtbook/internal/pricing"
	"courtbook/internal/repository"
	"courtbook/internal/service"

	"github.com/rs/zerolog"
)

type testEnv struct {
	ts       *httptest.Server
	db       *database.DB
	tomorrow models.Date
}

func newTestEnv(t *testing.T, cfg config.APIConfig, ready Pinger) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	calc := pricing.New("CHF",
		map[int]models.Amount{60: models.AmountFromUnits(25), 90: models.AmountFromUnits(35)},
		models.AmountFromUnits(25), models.AmountFromUnits(5),
		[]models.Role{models.RoleGuest}, 1000)
	catalog := service.Catalog{
		Courts: []models.Court{
			{ID: "court1", Name: "Court 1", SortOrder: 1, IsActive: true},
			{ID: "court2", Name: "Court 2", SortOrder: 2, IsActive: true},
		},
		Members: []models.Member{
			{ID: "m1", Name: "Edwin", Surname: "Jacob", Role: models.RoleMember},
			{ID: "m2", Name: "Thomas", Surname: "Cook", Role: models.RoleGuest},
		},
		PaymentMethods: []models.PaymentMethod{{ID: "cash", Label: "Cash"}},
		Schedule:       models.Schedule{Open: 8 * 60, Close: 22 * 60, SlotMinutes: 30},
		ExportSheet:    "Bookings",
	}
	bookings := service.NewBookingService(db, nil, policy.New(4, []string{"court2"}, 3), calc, catalog, &logger)
	sessions := service.NewSessionService(repository.NewMemorySessionRepository(time.Hour), bookings, service.SessionConfig{}, &logger)

	if ready == nil {
		ready = db.PingContext
	}
	srv := NewHTTPServer(cfg, bookings, sessions, ready, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:       ts,
		db:       db,
		tomorrow: models.DateOf(time.Now().UTC()).AddDays(1),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func expectStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode body %s: %v", data, err)
	}
	return v
}

func bookingBody(date models.Date, court, start string) map[string]any {
	return map[string]any{
		"date":       date.String(),
		"start_time": start,
		"duration":   60,
		"court_id":   court,
		"participants": []map[string]any{
			{"name": "Edwin", "surname": "Jacob", "is_organizer": true},
			{"name": "Thomas", "surname": "Cook", "email": "thomas@example.com", "role": "guest"},
		},
	}
}

func TestBookingsEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.tomorrow, "court1", "18:00"))
	expectStatus(t, resp, body, http.StatusCreated)
	created := decode[struct {
		BookingID int64          `json:"booking_id"`
		Booking   models.Booking `json:"booking"`
	}](t, body)
	if created.BookingID == 0 {
		t.Fatalf("expected booking id")
	}
	if got := created.Booking.TotalPrice.String(); got != "33.00" {
		t.Fatalf("expected total 33.00, got %s", got)
	}

	resp, body = env.do(t, http.MethodGet, "/api/bookings", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if list := decode[[]models.Booking](t, body); len(list) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(list))
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/bookings?date=%s", env.tomorrow), nil)
	expectStatus(t, resp, body, http.StatusOK)
	if list := decode[[]models.Booking](t, body); len(list) != 1 {
		t.Fatalf("expected 1 booking for date, got %d", len(list))
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/bookings/%d/participants", created.BookingID), nil)
	expectStatus(t, resp, body, http.StatusOK)
	participants := decode[[]models.Participant](t, body)
	if len(participants) != 2 || !participants[0].IsOrganizer() {
		t.Fatalf("unexpected participants: %+v", participants)
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/bookings/%d", created.BookingID), nil)
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = env.do(t, http.MethodGet, "/api/bookings/999/participants", nil)
	expectStatus(t, resp, body, http.StatusNotFound)
	resp, body = env.do(t, http.MethodGet, "/api/bookings/abc", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)

	// same court, overlapping slot
	resp, body = env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.tomorrow, "court1", "18:30"))
	expectStatus(t, resp, body, http.StatusConflict)
	if eb := decode[errorBody](t, body); eb.Retryable == nil || *eb.Retryable {
		t.Fatalf("expected retryable=false, got %s", body)
	}
}

func TestCreateBookingErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.tomorrow, "court2", "18:00"))
	expectStatus(t, resp, body, http.StatusUnprocessableEntity)
	if eb := decode[errorBody](t, body); eb.Reason != policy.ReasonResourceRestricted {
		t.Fatalf("expected resource_restricted, got %q", eb.Reason)
	}

	far := bookingBody(env.tomorrow.AddDays(10), "court1", "18:00")
	resp, body = env.do(t, http.MethodPost, "/api/bookings", far)
	expectStatus(t, resp, body, http.StatusUnprocessableEntity)
	eb := decode[errorBody](t, body)
	if eb.Reason != policy.ReasonAdvanceWindowExceeded || eb.SuggestedDate == nil {
		t.Fatalf("unexpected error body: %s", body)
	}

	noEmail := bookingBody(env.tomorrow, "court1", "18:00")
	noEmail["participants"] = []map[string]any{
		{"name": "Edwin", "is_organizer": true},
		{"name": "Thomas", "surname": "Cook", "role": "guest"},
	}
	resp, body = env.do(t, http.MethodPost, "/api/bookings", noEmail)
	expectStatus(t, resp, body, http.StatusBadRequest)
	if eb := decode[errorBody](t, body); len(eb.Details) != 1 || eb.Details[0].Field != "email" {
		t.Fatalf("expected email detail, got %s", body)
	}

	resp, body = env.do(t, http.MethodPost, "/api/bookings", map[string]any{"unknown": true})
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
		"organizer": map[string]any{"name": "Edwin", "surname": "Jacob"},
		"date":      env.tomorrow.String(),
	})
	expectStatus(t, resp, body, http.StatusCreated)
	snap := decode[struct {
		ID    string       `json:"id"`
		State models.State `json:"state"`
	}](t, body)
	base := "/api/v1/sessions/" + snap.ID

	steps := []struct {
		path string
		body any
		want models.State
	}{
		{"/time", map[string]any{"start_time": "19:00"}, models.StateTimeSelected},
		{"/court", map[string]any{"court_id": "court1", "duration": 90}, models.StateCourtSelected},
		{"/participants", map[string]any{"name": "Maria", "surname": "Garcia"}, models.StateCourtSelected},
		{"/players/confirm", nil, models.StatePlayersConfirmed},
		{"/payment", map[string]any{"payment_method": "cash"}, models.StatePaymentSelected},
	}
	for _, step := range steps {
		resp, body = env.do(t, http.MethodPost, base+step.path, step.body)
		expectStatus(t, resp, body, http.StatusOK)
		got := decode[struct {
			State models.State `json:"state"`
		}](t, body)
		if got.State != step.want {
			t.Fatalf("%s: expected state %s, got %s", step.path, step.want, got.State)
		}
	}

	resp, body = env.do(t, http.MethodPost, base+"/confirm", nil)
	expectStatus(t, resp, body, http.StatusCreated)
	confirmed := decode[struct {
		Booking models.Booking `json:"booking"`
		Session struct {
			State         models.State `json:"state"`
			LastBookingID int64        `json:"last_booking_id"`
		} `json:"session"`
	}](t, body)
	if confirmed.Booking.TotalPrice.String() != "38.50" {
		t.Fatalf("expected total 38.50, got %s", confirmed.Booking.TotalPrice)
	}
	if confirmed.Session.State != models.StateIdle || confirmed.Session.LastBookingID != confirmed.Booking.ID {
		t.Fatalf("unexpected session after confirm: %+v", confirmed.Session)
	}

	// confirming again is not a valid transition
	resp, body = env.do(t, http.MethodPost, base+"/confirm", nil)
	expectStatus(t, resp, body, http.StatusConflict)

	resp, body = env.do(t, http.MethodDelete, base, nil)
	expectStatus(t, resp, body, http.StatusNoContent)
	resp, body = env.do(t, http.MethodGet, base, nil)
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestSessionErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
		"organizer": map[string]any{"name": ""},
	})
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = env.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{
		"organizer": map[string]any{"name": "Edwin"},
	})
	expectStatus(t, resp, body, http.StatusCreated)
	base := "/api/v1/sessions/" + decode[struct {
		ID string `json:"id"`
	}](t, body).ID

	// no skipping ahead
	resp, body = env.do(t, http.MethodPost, base+"/court", map[string]any{"court_id": "court1", "duration": 60})
	expectStatus(t, resp, body, http.StatusConflict)

	resp, body = env.do(t, http.MethodPost, base+"/time", map[string]any{})
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = env.do(t, http.MethodPost, base+"/time", map[string]any{"date": env.tomorrow.AddDays(10).String(), "start_time": "10:00"})
	expectStatus(t, resp, body, http.StatusUnprocessableEntity)
	eb := decode[errorBody](t, body)
	if eb.Session == nil || eb.Session.State != models.StateIdle {
		t.Fatalf("expected idle session in error body, got %s", body)
	}

	resp, body = env.do(t, http.MethodPost, base+"/time", map[string]any{"date": env.tomorrow.String(), "start_time": "10:00"})
	expectStatus(t, resp, body, http.StatusOK)
	resp, body = env.do(t, http.MethodPost, base+"/court", map[string]any{"court_id": "court1", "duration": 60})
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = env.do(t, http.MethodPost, base+"/participants", map[string]any{"name": "Thomas", "role": "guest"})
	expectStatus(t, resp, body, http.StatusBadRequest)

	resp, body = env.do(t, http.MethodDelete, base+"/participants/nope", nil)
	expectStatus(t, resp, body, http.StatusNotFound)

	resp, body = env.do(t, http.MethodPost, base+"/back", map[string]any{"to": "idle"})
	expectStatus(t, resp, body, http.StatusOK)
	if got := decode[struct {
		State models.State `json:"state"`
	}](t, body); got.State != models.StateIdle {
		t.Fatalf("expected idle after back, got %s", got.State)
	}

	resp, body = env.do(t, http.MethodPost, base+"/cancel", nil)
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = env.do(t, http.MethodPost, "/api/v1/sessions/missing/time", map[string]any{"start_time": "10:00"})
	expectStatus(t, resp, body, http.StatusNotFound)
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodGet, "/api/v1/courts", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if courts := decode[map[string][]models.Court](t, body)["courts"]; len(courts) != 2 {
		t.Fatalf("expected 2 courts, got %d", len(courts))
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/members?q=cook", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if members := decode[map[string][]models.Member](t, body)["members"]; len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/payment-methods", nil)
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = env.do(t, http.MethodGet, "/api/v1/availability?date="+env.tomorrow.String(), nil)
	expectStatus(t, resp, body, http.StatusOK)
	grid := decode[models.AvailabilityGrid](t, body)
	if len(grid.Courts) != 2 || grid.Courts[1].Slots[0].Status != models.SlotRestricted {
		t.Fatalf("unexpected grid: %s", body)
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/availability", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
	resp, body = env.do(t, http.MethodGet, "/api/v1/availability?date=tomorrow", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)

	resp, body := env.do(t, http.MethodPost, "/api/bookings", bookingBody(env.tomorrow, "court1", "18:00"))
	expectStatus(t, resp, body, http.StatusCreated)

	path := fmt.Sprintf("/api/v1/bookings/export?from=%s&to=%s", env.tomorrow, env.tomorrow.AddDays(7))
	resp, body = env.do(t, http.MethodGet, path, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if len(body) == 0 {
		t.Fatalf("expected workbook bytes")
	}

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/export?from=%s&to=%s", env.tomorrow, env.tomorrow.AddDays(-1)), nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
	resp, body = env.do(t, http.MethodGet, "/api/v1/bookings/export?from=x", nil)
	expectStatus(t, resp, body, http.StatusBadRequest)
}

func TestProbes(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	expectStatus(t, resp, body, http.StatusOK)
	resp, body = env.do(t, http.MethodGet, "/readyz", nil)
	expectStatus(t, resp, body, http.StatusOK)
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	down := newTestEnv(t, config.APIConfig{}, func(context.Context) error { return errors.New("down") })
	resp, body = down.do(t, http.MethodGet, "/readyz", nil)
	expectStatus(t, resp, body, http.StatusServiceUnavailable)
}

func TestAuthAndRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "reader", Name: "reader", Permissions: []string{permReadCatalog}},
				{Key: "admin", Name: "admin"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	env := newTestEnv(t, cfg, nil)

	resp, body := env.do(t, http.MethodGet, "/api/v1/courts", nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)

	resp, body = env.do(t, http.MethodGet, "/api/v1/courts", nil, "x-api-key", "bogus")
	expectStatus(t, resp, body, http.StatusUnauthorized)

	resp, body = env.do(t, http.MethodGet, "/api/bookings", nil, "x-api-key", "reader")
	expectStatus(t, resp, body, http.StatusForbidden)

	resp, body = env.do(t, http.MethodGet, "/api/v1/courts", nil, "x-api-key", "reader")
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = env.do(t, http.MethodGet, "/api/bookings", nil, "x-api-key", "admin")
	expectStatus(t, resp, body, http.StatusOK)
	resp, body = env.do(t, http.MethodGet, "/api/bookings", nil, "x-api-key", "admin")
	expectStatus(t, resp, body, http.StatusOK)
	resp, body = env.do(t, http.MethodGet, "/api/bookings", nil, "x-api-key", "admin")
	expectStatus(t, resp, body, http.StatusTooManyRequests)

	// probes skip auth and limits
	for i := 0; i < 3; i++ {
		resp, body = env.do(t, http.MethodGet, "/healthz", nil)
		expectStatus(t, resp, body, http.StatusOK)
	}
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method, path string
		want         string
	}{
		{http.MethodGet, "/api/bookings", permReadBookings},
		{http.MethodPost, "/api/bookings", permWriteBookings},
		{http.MethodGet, "/api/bookings/1/participants", permReadBookings},
		{http.MethodGet, "/api/v1/bookings/export", permExportBookings},
		{http.MethodGet, "/api/v1/availability", permReadBookings},
		{http.MethodGet, "/api/v1/members", permReadCatalog},
		{http.MethodPost, "/api/v1/sessions/abc/time", permSessions},
		{http.MethodGet, "/other", ""},
	}
	for _, tt := range tests {
		if got := requiredPermission(tt.method, tt.path); got != tt.want {
			t.Fatalf("%s %s: expected %q, got %q", tt.method, tt.path, tt.want, got)
		}
	}
}

func TestChain(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := Chain(mw("first"), mw("second"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls = append(calls, "handler")
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	expected := []string{"first", "second", "handler"}
	if !reflect.DeepEqual(calls, expected) {
		t.Fatalf("expected calls %v, got %v", expected, calls)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestRecoverer(t *testing.T) {
	handler := recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAuthMiddleware_SharedKeyLimitedPerHost(t *testing.T) {
	cfg := &config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "widget", Name: "frontend"}},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	}
	var seen []string
	h := NewHTTPAuth(cfg).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, clientKeyFrom(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/courts", nil)
		req.RemoteAddr = remote
		req.Header.Set("x-api-key", "widget")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call("10.0.0.1:5000"); code != http.StatusNoContent {
		t.Fatalf("first host: expected 204, got %d", code)
	}
	if code := call("10.0.0.2:5000"); code != http.StatusNoContent {
		t.Fatalf("second host must have its own bucket, got %d", code)
	}
	if code := call("10.0.0.1:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("first host again: expected 429, got %d", code)
	}
	if len(seen) != 2 || seen[0] != "frontend@10.0.0.1" || seen[1] != "frontend@10.0.0.2" {
		t.Fatalf("unexpected client keys: %v", seen)
	}
}
