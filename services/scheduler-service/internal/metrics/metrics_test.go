package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionCounter(t *testing.T) {
	m := New()
	m.Decision("booking", "committed")
	m.Decision("booking", "committed")
	m.Decision("booking", "slot_taken")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("booking", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("booking", "slot_taken")))
}

func TestHandlerExposesSlotHistogram(t *testing.T) {
	m := New()
	m.SlotsGenerated(3*time.Millisecond, 4)

	rw := httptest.NewRecorder()
	m.Handler().ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rw.Code)

	body := rw.Body.String()
	assert.True(t, strings.Contains(body, "bookslot_slot_generation_seconds_count 1"), body)
	assert.True(t, strings.Contains(body, "bookslot_slots_returned_sum 4"), body)
}
