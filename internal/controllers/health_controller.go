package controllers

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"hoyn/internal/services"
)

type StreamCounter interface {
	ActiveStreams() int64
}

type HealthController struct {
	service   services.ScanStatisticServiceInterface
	streams   StreamCounter
	startTime time.Time
}

type healthResponse struct {
	Status         string  `json:"status"`
	Uptime         string  `json:"uptime"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	ScanBufferSize int     `json:"scan_buffer_size"`
	ScanProfiles   int     `json:"scan_profiles"`
	ActiveStreams  int64   `json:"active_streams"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:         "ok",
		Uptime:         formatDuration(uptime),
		UptimeSeconds:  uptime.Seconds(),
		ScanBufferSize: hc.service.GetBufferSize(),
		ScanProfiles:   hc.service.Profiles(),
		ActiveStreams:  hc.streams.ActiveStreams(),
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

func NewHealthController(service services.ScanStatisticServiceInterface, streams *ConversationController) *HealthController {
	return &HealthController{
		service:   service,
		streams:   streams,
		startTime: time.Now(),
	}
}
