package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/httpx"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, limiter httpx.Middleware) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(memory.New(), logger)
	return NewRouter(NewSchedulerHandler(svc, logger), RouterConfig{
		Service:      "scheduler-service-test",
		Logger:       logger,
		Metrics:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		WriteLimiter: limiter,
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func decodeBody[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &out), rw.Body.String())
	return out
}

// seed creates owner-1's 30 minute event type with availability 10:00-11:00.
func seed(t *testing.T, h http.Handler) string {
	t.Helper()
	rw := do(t, h, http.MethodPost, "/api/v1/event-types", map[string]any{
		"name": "Consultation", "duration_minutes": 30, "owner_id": "owner-1",
	})
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	et := decodeBody[eventTypeItem](t, rw)

	rw = do(t, h, http.MethodPost, "/api/v1/availability", map[string]any{
		"event_type_id": et.ID, "start_time": "2025-10-10T10:00:00Z", "end_time": "2025-10-10T11:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	return et.ID
}

func TestSlotsThenBookThenSlots(t *testing.T) {
	h := newTestRouter(t, nil)
	etID := seed(t, h)

	rw := do(t, h, http.MethodGet, "/api/v1/event-types/"+etID+"/slots", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	slots := decodeBody[[]slotItem](t, rw)
	assert.Equal(t, []slotItem{
		{StartTime: "2025-10-10T10:00:00Z", EndTime: "2025-10-10T10:30:00Z"},
		{StartTime: "2025-10-10T10:30:00Z", EndTime: "2025-10-10T11:00:00Z"},
	}, slots)

	rw = do(t, h, http.MethodPost, "/api/v1/bookings", map[string]any{
		"booker_id": "booker-1", "event_type_id": etID,
		"start_time": "2025-10-10T10:00:00Z", "end_time": "2025-10-10T10:30:00Z",
	})
	require.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())
	bk := decodeBody[bookingItem](t, rw)
	assert.Equal(t, "booker-1", bk.BookerID)

	rw = do(t, h, http.MethodGet, "/api/v1/event-types/"+etID+"/slots", nil)
	slots = decodeBody[[]slotItem](t, rw)
	assert.Equal(t, []slotItem{{StartTime: "2025-10-10T10:30:00Z", EndTime: "2025-10-10T11:00:00Z"}}, slots)

	for _, user := range []string{"booker-1", "owner-1"} {
		rw = do(t, h, http.MethodGet, "/api/v1/users/"+user+"/bookings", nil)
		require.Equal(t, http.StatusOK, rw.Code)
		list := decodeBody[[]bookingItem](t, rw)
		require.Len(t, list, 1, user)
		assert.Equal(t, bk.ID, list[0].ID)
	}
}

func TestErrorMapping(t *testing.T) {
	h := newTestRouter(t, nil)
	etID := seed(t, h)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		reason string
	}{
		{"malformed json", http.MethodPost, "/api/v1/bookings", "{", http.StatusBadRequest, "validation"},
		{"bad timestamp", http.MethodPost, "/api/v1/bookings", map[string]any{
			"booker_id": "b", "event_type_id": etID, "start_time": "tomorrow", "end_time": "2025-10-10T10:30:00Z",
		}, http.StatusBadRequest, "validation"},
		{"inverted interval", http.MethodPost, "/api/v1/availability", map[string]any{
			"event_type_id": etID, "start_time": "2025-10-10T12:00:00Z", "end_time": "2025-10-10T12:00:00Z",
		}, http.StatusBadRequest, "validation"},
		{"zero duration", http.MethodPost, "/api/v1/event-types", map[string]any{
			"name": "x", "duration_minutes": 0, "owner_id": "o",
		}, http.StatusBadRequest, "validation"},
		{"unknown event type slots", http.MethodGet, "/api/v1/event-types/nope/slots", nil, http.StatusNotFound, "not_found"},
		{"unknown event type", http.MethodGet, "/api/v1/event-types/nope", nil, http.StatusNotFound, "not_found"},
		{"self booking", http.MethodPost, "/api/v1/bookings", map[string]any{
			"booker_id": "owner-1", "event_type_id": etID, "start_time": "2025-10-10T10:00:00Z", "end_time": "2025-10-10T10:30:00Z",
		}, http.StatusForbidden, "self_booking_denied"},
		{"outside availability", http.MethodPost, "/api/v1/bookings", map[string]any{
			"booker_id": "b", "event_type_id": etID, "start_time": "2025-10-10T09:00:00Z", "end_time": "2025-10-10T09:30:00Z",
		}, http.StatusUnprocessableEntity, "outside_availability"},
		{"overlapping availability", http.MethodPost, "/api/v1/availability", map[string]any{
			"event_type_id": etID, "start_time": "2025-10-10T10:30:00Z", "end_time": "2025-10-10T12:00:00Z",
		}, http.StatusConflict, "availability_overlap"},
		{"duplicate event type", http.MethodPost, "/api/v1/event-types", map[string]any{
			"name": "Consultation", "duration_minutes": 15, "owner_id": "owner-1",
		}, http.StatusConflict, "duplicate_event_type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rw.Code, rw.Body.String())
			resp := decodeBody[httpx.ErrorBody](t, rw)
			assert.Equal(t, tc.reason, resp.Reason)
			assert.NotEmpty(t, resp.Error)
			assert.NotContains(t, resp.Error, "booking.")
		})
	}
}

func TestSecondBookingOfSameSlotConflicts(t *testing.T) {
	h := newTestRouter(t, nil)
	etID := seed(t, h)
	body := func(booker string) map[string]any {
		return map[string]any{
			"booker_id": booker, "event_type_id": etID,
			"start_time": "2025-10-10T10:30:00Z", "end_time": "2025-10-10T11:00:00Z",
		}
	}
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/bookings", body("a")).Code)

	rw := do(t, h, http.MethodPost, "/api/v1/bookings", body("b"))
	require.Equal(t, http.StatusConflict, rw.Code)
	assert.Equal(t, "owner_conflict", decodeBody[httpx.ErrorBody](t, rw).Reason)
}

func TestListEventTypesFiltersByOwner(t *testing.T) {
	h := newTestRouter(t, nil)
	seed(t, h)
	rw := do(t, h, http.MethodPost, "/api/v1/event-types", map[string]any{
		"name": "Audit", "duration_minutes": 60, "owner_id": "owner-2",
	})
	require.Equal(t, http.StatusCreated, rw.Code)

	all := decodeBody[[]eventTypeItem](t, do(t, h, http.MethodGet, "/api/v1/event-types", nil))
	require.Len(t, all, 2)
	assert.Equal(t, "Audit", all[0].Name)

	mine := decodeBody[[]eventTypeItem](t, do(t, h, http.MethodGet, "/api/v1/event-types?owner_id=owner-1", nil))
	require.Len(t, mine, 1)
	assert.Equal(t, "Consultation", mine[0].Name)
}

func TestListAvailabilities(t *testing.T) {
	h := newTestRouter(t, nil)
	etID := seed(t, h)
	rw := do(t, h, http.MethodGet, "/api/v1/event-types/"+etID+"/availability", nil)
	require.Equal(t, http.StatusOK, rw.Code)
	items := decodeBody[[]availabilityItem](t, rw)
	require.Len(t, items, 1)
	assert.Equal(t, "2025-10-10T10:00:00Z", items[0].StartTime)
}

func TestWriteLimiterSkipsReads(t *testing.T) {
	limiter := httpx.NewRateLimiter(1, time.Hour, func(*http.Request) string { return "all" })
	h := newTestRouter(t, limiter.Middleware())

	first := do(t, h, http.MethodPost, "/api/v1/event-types", map[string]any{"name": "A", "duration_minutes": 30, "owner_id": "o"})
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, h, http.MethodPost, "/api/v1/event-types", map[string]any{"name": "B", "duration_minutes": 30, "owner_id": "o"})
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "rate_limited", decodeBody[httpx.ErrorBody](t, second).Reason)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/event-types", nil).Code)
	}
}

func TestProbesAndMetricsMounted(t *testing.T) {
	h := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", nil).Code)
	rw := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rw.Code)
	assert.Equal(t, "# metrics", rw.Body.String())
	assert.NotEmpty(t, rw.Header().Get("X-Request-Id"))
}
