package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/models"
	"hoyn/internal/testutil"
)

func TestHealth_ReturnsOK(t *testing.T) {
	f := newFixture(t, nil)
	stats := &testutil.MockScanStatisticService{Data: map[string]*models.ScanRecord{"p1": {}, "p2": {}}}
	hc := NewHealthController(stats, newConversationController(f))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	hc.Health(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	resp := decodeResponse(t, rr)
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "uptime")
	assert.Contains(t, resp, "uptime_seconds")
	assert.Equal(t, float64(2), resp["scan_profiles"])
	assert.Equal(t, float64(0), resp["active_streams"])
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	hc := NewHealthController(&testutil.MockScanStatisticService{}, newConversationController(f))

	rr := httptest.NewRecorder()
	hc.Health(rr, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealth_BufferSizeReflected(t *testing.T) {
	f := newFixture(t, nil)
	stats := &testutil.MockScanStatisticService{}
	stats.AddScan(&models.ScanEvent{ProfileID: "p1"})
	stats.AddScan(&models.ScanEvent{ProfileID: "p2"})
	hc := NewHealthController(stats, newConversationController(f))

	rr := httptest.NewRecorder()
	hc.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeResponse(t, rr)["scan_buffer_size"])
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0h0m0s"},
		{90 * time.Second, "0h1m30s"},
		{25*time.Hour + 5*time.Minute + 7*time.Second, "25h5m7s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
