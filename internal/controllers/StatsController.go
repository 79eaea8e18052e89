package controllers

import (
	"net/http"

	json "github.com/goccy/go-json"

	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/services"
)

type StatsController struct {
	logger  providers.Logger
	service services.ScanStatisticServiceInterface
	cache   providers.CacheProviderInterface
}

func NewStatsController(logger providers.Logger, service services.ScanStatisticServiceInterface, cache providers.CacheProviderInterface) *StatsController {
	return &StatsController{
		logger:  logger,
		service: service,
		cache:   cache,
	}
}

func (sc *StatsController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := sc.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		writeServiceError(w, sc.logger, providers.TypeGet, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sc.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

// Scans returns the aggregated counters of one profile, or of every profile
// plus the not-found total when profileId is omitted.
func (sc *StatsController) Scans(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profileId")
	if profileID == "" {
		sc.serveFromCacheOrCompute(w, "scans:all", func() (any, error) {
			return models.ScanSummary{
				Profiles: sc.service.GetSnapshot(),
				NotFound: sc.service.NotFoundScans(),
			}, nil
		})
		return
	}
	sc.serveFromCacheOrCompute(w, "scans:"+profileID, func() (any, error) {
		rec, ok := sc.service.GetProfileStats(profileID)
		if !ok {
			return nil, services.ErrProfileNotFound
		}
		return rec, nil
	})
}
