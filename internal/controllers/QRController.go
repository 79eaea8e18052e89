package controllers

import (
	"net/http"
	"strings"

	"hoyn/internal/dispatch"
	"hoyn/internal/providers"
	"hoyn/internal/qrcode"
	"hoyn/internal/ratelimit"
	"hoyn/internal/services"
	"hoyn/internal/structures"
)

type QRController struct {
	logger     providers.Logger
	service    services.QRServiceInterface
	throttle   *ratelimit.KeyedThrottle
	metrics    providers.MetricsProviderInterface
	trustProxy bool
}

type scanRequest struct {
	RawData string `json:"rawData"`
	// QRData is the field name older clients send.
	QRData string `json:"qrData"`
}

type scanResponse struct {
	Success   bool   `json:"success"`
	IsHOYN    bool   `json:"isHOYN"`
	Type      string `json:"type"`
	Intent    string `json:"intent"`
	ProfileID string `json:"profileId,omitempty"`
	Slug      string `json:"slug,omitempty"`
	Username  string `json:"username,omitempty"`
	URL       string `json:"url,omitempty"`
	Legacy    bool   `json:"legacy,omitempty"`
	Message   string `json:"message"`
}

func NewQRController(logger providers.Logger, service services.QRServiceInterface, throttle *ratelimit.KeyedThrottle, metrics providers.MetricsProviderInterface, conf *structures.Config) *QRController {
	return &QRController{
		logger:     logger,
		service:    service,
		throttle:   throttle,
		metrics:    metrics,
		trustProxy: conf.WebServer.TrustProxy,
	}
}

func (qc *QRController) allow(w http.ResponseWriter, r *http.Request) bool {
	if qc.throttle == nil || qc.throttle.Allow(providers.ClientIP(r, qc.trustProxy)) {
		return true
	}
	qc.metrics.IncRateLimited("scan")
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too Many Requests", Status: http.StatusTooManyRequests, RetryAfter: 1})
	return false
}

func (qc *QRController) Scan(w http.ResponseWriter, r *http.Request) {
	if !qc.allow(w, r) {
		return
	}
	var payload scanRequest
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	raw := payload.RawData
	if raw == "" {
		raw = payload.QRData
	}
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "rawData is required")
		return
	}
	qc.resolve(w, r, raw)
}

// Landing resolves a compact link opened in a browser: /qr/v1?d={base64url(json)}.
func (qc *QRController) Landing(w http.ResponseWriter, r *http.Request) {
	if !qc.allow(w, r) {
		return
	}
	if r.URL.Query().Get(qrcode.DataParam) == "" {
		writeError(w, http.StatusBadRequest, "missing "+qrcode.DataParam+" parameter")
		return
	}
	qc.resolve(w, r, qrcode.LandingPath+"?"+r.URL.RawQuery)
}

func (qc *QRController) resolve(w http.ResponseWriter, r *http.Request, raw string) {
	res, err := qc.service.Scan(r.Context(), raw, providers.ClientIP(r, qc.trustProxy))
	if err != nil {
		writeServiceError(w, qc.logger, providers.TypeScan, err)
		return
	}

	resp := scanResponse{
		IsHOYN: res.Decoded.Outcome != qrcode.Unrecognized,
		Type:   string(res.Decoded.Type),
		Intent: res.Intent.Kind.String(),
		Legacy: res.Decoded.Outcome == qrcode.LegacyRecognized,
	}
	status := http.StatusOK

	switch res.Intent.Kind {
	case dispatch.None:
		resp.Type = "non_hoyn"
		resp.Message = "Not a HOYN code"
	case dispatch.NotFound:
		resp.Slug = res.Decoded.Slug
		resp.Username = res.Decoded.Username
		resp.ProfileID = res.Decoded.ProfileID
		resp.Message = "Profile not found"
		status = http.StatusNotFound
	case dispatch.OpenExternal:
		resp.Success = true
		resp.URL = res.Intent.URL
		resp.Username = res.Decoded.Username
		resp.Message = "External link"
	default:
		resp.Success = true
		resp.ProfileID = res.Intent.Profile.ID
		resp.Slug = res.Intent.Profile.Slug
		resp.Username = res.Intent.Profile.Username
		resp.Message = "HOYN profile"
	}

	qc.logger.Infof(providers.TypeScan, "Scan resolved to %s", resp.Intent)
	writeJSON(w, status, resp)
}

func (qc *QRController) Generate(w http.ResponseWriter, r *http.Request) {
	var payload services.GenerateRequest
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	res, err := qc.service.Generate(payload)
	if err != nil {
		writeServiceError(w, qc.logger, providers.TypeScan, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
