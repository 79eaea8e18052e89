package qrcode

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// wireTimeLayout is ISO-8601 with milliseconds, the form JavaScript's toISOString produces.
const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type wirePayload struct {
	Hoyn      bool   `json:"hoyn"`
	Type      string `json:"type"`
	Username  string `json:"username"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"createdAt"`
	Version   string `json:"version"`
	Slug      string `json:"slug,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
}

// Encode serializes p into the HOYN JSON wire format.
func Encode(p Payload) (string, error) {
	w, err := toWire(p)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	return string(data), nil
}

// EncodeURL builds the compact scannable link {baseURL}/qr/v1?d={base64url(json)}.
func EncodeURL(baseURL string, p Payload) (string, error) {
	raw, err := Encode(p)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set(DataParam, base64.RawURLEncoding.EncodeToString([]byte(raw)))
	return strings.TrimRight(baseURL, "/") + LandingPath + "?" + q.Encode(), nil
}

const (
	LandingPath = "/qr/v1"
	DataParam   = "d"
)

func toWire(p Payload) (*wirePayload, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if !p.Type().Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, p.Type())
	}
	if strings.TrimSpace(p.Handle()) == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidPayload)
	}

	meta := p.Metadata()
	w := &wirePayload{
		Hoyn:      true,
		Type:      string(p.Type()),
		Username:  p.Handle(),
		Version:   meta.Version,
		Slug:      meta.Slug,
		ProfileID: meta.ProfileID,
	}
	if w.Version == "" {
		w.Version = DefaultVersion
	}
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	w.CreatedAt = createdAt.UTC().Format(wireTimeLayout)

	if p.Type() == TypeCustom {
		var target string
		switch c := p.(type) {
		case CustomPayload:
			target = c.URL
		case *CustomPayload:
			target = c.URL
		}
		if !isWebURL(target) {
			return nil, fmt.Errorf("%w: custom payload needs an http(s) url", ErrInvalidPayload)
		}
		w.URL = target
	}
	return w, nil
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
