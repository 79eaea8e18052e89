package qrcode

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

type Outcome int

const (
	Unrecognized Outcome = iota
	Recognized
	LegacyRecognized
)

func (o Outcome) String() string {
	switch o {
	case Recognized:
		return "recognized"
	case LegacyRecognized:
		return "legacy"
	default:
		return "unrecognized"
	}
}

// MaxRawLength bounds what Decode will look at.
const MaxRawLength = 2048

var (
	maliciousMarkers = []string{"<script", "javascript:", "data:text/html", "vbscript:", "onload=", "onerror="}
	segmentPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// DecodeResult is the outcome of Decode. Payload is set only for Recognized results.
type DecodeResult struct {
	Outcome   Outcome
	Type      PayloadType
	Username  string
	URL       string
	Slug      string
	ProfileID string
	Payload   Payload
}

// inboundPayload accepts both the full wire keys and the compact landing-page aliases.
type inboundPayload struct {
	Hoyn      bool   `json:"hoyn"`
	Type      string `json:"type"`
	Username  string `json:"username"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
	Version   string `json:"version"`
	Slug      string `json:"slug"`
	ProfileID string `json:"profileId"`

	T string `json:"t"`
	U string `json:"u"`
	S string `json:"s"`
}

// Decode never fails: anything it cannot interpret is Unrecognized.
func Decode(raw string) DecodeResult {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > MaxRawLength || looksMalicious(raw) {
		return DecodeResult{}
	}

	if strings.HasPrefix(raw, "{") {
		if res, ok := decodeJSON([]byte(raw), false); ok {
			return res
		}
		return DecodeResult{}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return DecodeResult{}
	}
	if res, ok := decodeQuery(u); ok {
		return res
	}
	if res, ok := decodeLegacyPath(u); ok {
		return res
	}
	return DecodeResult{}
}

func looksMalicious(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range maliciousMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func decodeQuery(u *url.URL) (DecodeResult, bool) {
	q := u.Query()
	if d := q.Get(DataParam); d != "" {
		for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
			data, err := enc.DecodeString(d)
			if err != nil {
				continue
			}
			if res, ok := decodeJSON(data, true); ok {
				return res, true
			}
		}
	}
	// app deep link: hoyn://qr/scan?data={json}
	if data := q.Get("data"); strings.HasPrefix(data, "{") {
		return decodeJSON([]byte(data), true)
	}
	return DecodeResult{}, false
}

func decodeJSON(data []byte, compactOK bool) (DecodeResult, bool) {
	var in inboundPayload
	if err := json.Unmarshal(data, &in); err != nil {
		return DecodeResult{}, false
	}
	p, ok := in.toPayload(compactOK)
	if !ok {
		return DecodeResult{}, false
	}
	return recognized(p), true
}

func (in *inboundPayload) toPayload(compactOK bool) (Payload, bool) {
	compact := compactOK && (in.T != "" || in.U != "")
	if !in.Hoyn && !compact {
		return nil, false
	}

	typ := PayloadType(firstNonEmpty(in.Type, in.T))
	if typ == "" && compact {
		typ = TypeProfile
	}
	username := strings.TrimSpace(firstNonEmpty(in.Username, in.U))
	if !typ.Valid() || username == "" {
		return nil, false
	}

	meta := Meta{
		Version:   in.Version,
		Slug:      firstNonEmpty(in.Slug, in.S),
		ProfileID: in.ProfileID,
	}
	if in.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, in.CreatedAt); err == nil {
			meta.CreatedAt = ts.UTC()
		}
	}

	switch typ {
	case TypeProfile:
		return ProfilePayload{Meta: meta, Username: username}, true
	case TypeAnonymous:
		return AnonymousPayload{Meta: meta, Username: username}, true
	default:
		if !isWebURL(in.URL) {
			return nil, false
		}
		return CustomPayload{Meta: meta, Username: username, URL: in.URL}, true
	}
}

func recognized(p Payload) DecodeResult {
	meta := p.Metadata()
	res := DecodeResult{
		Outcome:   Recognized,
		Type:      p.Type(),
		Username:  p.Handle(),
		Slug:      meta.Slug,
		ProfileID: meta.ProfileID,
		Payload:   p,
	}
	if c, ok := p.(CustomPayload); ok {
		res.URL = c.URL
	}
	return res
}

// decodeLegacyPath matches /p/{slug}, /u/{profileId} and /ask/{username}, in that priority.
func decodeLegacyPath(u *url.URL) (DecodeResult, bool) {
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return DecodeResult{}, false
	}
	if u.Scheme != "" && u.Host == "" {
		return DecodeResult{}, false
	}
	if u.Scheme == "" && !strings.HasPrefix(u.Path, "/") {
		return DecodeResult{}, false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if slug, ok := segmentAfter(segments, "p"); ok {
		return DecodeResult{Outcome: LegacyRecognized, Type: TypeProfile, Slug: slug}, true
	}
	if id, ok := segmentAfter(segments, "u"); ok {
		return DecodeResult{Outcome: LegacyRecognized, Type: TypeProfile, ProfileID: id}, true
	}
	if username, ok := segmentAfter(segments, "ask"); ok {
		return DecodeResult{Outcome: LegacyRecognized, Type: TypeAnonymous, Username: username}, true
	}
	return DecodeResult{}, false
}

func segmentAfter(segments []string, marker string) (string, bool) {
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == marker && segmentPattern.MatchString(segments[i+1]) {
			return segments[i+1], true
		}
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
