package controllers

import (
	"errors"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"hoyn/internal/providers"
	"hoyn/internal/services"
	"hoyn/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type errorResponse struct {
	Error      string `json:"error"`
	Status     int    `json:"status"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	gson, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, Status: status})
}

// decodeBody reads a size-limited JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

// statusOf maps service errors onto HTTP statuses.
func statusOf(err error) int {
	var (
		verr *services.ValidationError
		rerr *services.RateLimitedError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMalformedActor), errors.Is(err, providers.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrRecipientOptedOut), errors.Is(err, services.ErrNotParticipant):
		return http.StatusForbidden
	case errors.As(err, &rerr):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrProfileNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as {error, status}. Store failures never leak their cause.
func writeServiceError(w http.ResponseWriter, logger providers.Logger, logType providers.TypeEnum, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error(), Status: status}

	var rerr *services.RateLimitedError
	if errors.As(err, &rerr) {
		resp.RetryAfter = rerr.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	if status == http.StatusInternalServerError {
		logger.Errorf(logType, "Request failed: %s", err)
		resp.Error = "Internal Server Error"
	}
	writeJSON(w, status, resp)
}
