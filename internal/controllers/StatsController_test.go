package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/models"
	"hoyn/internal/testutil"
)

func newStatsController() (*StatsController, *testutil.MockScanStatisticService, *testutil.MockCache) {
	stats := &testutil.MockScanStatisticService{
		Data:     map[string]*models.ScanRecord{"p-bob": {Scans: 4, UniqueScanners: 3}},
		NotFound: 7,
	}
	cache := testutil.NewMockCache()
	return NewStatsController(&testutil.MockLogger{}, stats, cache), stats, cache
}

func TestStats_Profile(t *testing.T) {
	sc, _, cache := newStatsController()

	rr := httptest.NewRecorder()
	sc.Scans(rr, httptest.NewRequest(http.MethodGet, "/stats/scans?profileId=p-bob", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeResponse(t, rr)
	assert.Equal(t, float64(4), resp["scans"])
	assert.Equal(t, float64(3), resp["uniqueScanners"])
	assert.NotContains(t, resp, "notFound")
	assert.Contains(t, cache.Data, "scans:p-bob")
}

func TestStats_ServedFromCache(t *testing.T) {
	sc, _, cache := newStatsController()
	cache.Set("scans:p-bob", []byte(`{"scans":99}`))

	rr := httptest.NewRecorder()
	sc.Scans(rr, httptest.NewRequest(http.MethodGet, "/stats/scans?profileId=p-bob", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"scans":99}`, rr.Body.String())
}

func TestStats_All(t *testing.T) {
	sc, _, _ := newStatsController()

	rr := httptest.NewRecorder()
	sc.Scans(rr, httptest.NewRequest(http.MethodGet, "/stats/scans", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeResponse(t, rr)
	assert.Equal(t, float64(7), resp["notFound"])
	require.IsType(t, map[string]any{}, resp["profiles"])
	assert.Contains(t, resp["profiles"], "p-bob")
}

func TestStats_UnknownProfile(t *testing.T) {
	sc, _, cache := newStatsController()

	rr := httptest.NewRecorder()
	sc.Scans(rr, httptest.NewRequest(http.MethodGet, "/stats/scans?profileId=nobody", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, cache.Data, "scans:nobody")
}
