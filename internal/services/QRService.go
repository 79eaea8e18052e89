package services

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"

	"hoyn/internal/dispatch"
	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/qrcode"
	"hoyn/internal/structures"
)

type GenerateRequest struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	URL       string `json:"url,omitempty"`
	Slug      string `json:"slug,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
}

type GenerateResult struct {
	Raw  string `json:"raw"`
	Link string `json:"link"`
}

type ScanResult struct {
	Decoded qrcode.DecodeResult
	Intent  dispatch.Intent
}

type QRServiceInterface interface {
	Generate(req GenerateRequest) (*GenerateResult, error)
	// Scan resolves raw. scanner identifies the client for distinct counting and may be empty.
	Scan(ctx context.Context, raw, scanner string) (*ScanResult, error)
}

type QRService struct {
	baseURL string
	lookup  dispatch.ProfileLookup
	stats   ScanStatisticServiceInterface
	logger  providers.Logger
	metrics providers.MetricsProviderInterface
	now     func() time.Time
}

func NewQRService(conf *structures.Config, lookup dispatch.ProfileLookup, stats ScanStatisticServiceInterface, logger providers.Logger, metrics providers.MetricsProviderInterface) QRServiceInterface {
	return &QRService{
		baseURL: conf.QR.BaseURL,
		lookup:  lookup,
		stats:   stats,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (qs *QRService) payload(req GenerateRequest) (qrcode.Payload, error) {
	meta := qrcode.NewMeta(qs.now())
	meta.Slug = req.Slug
	meta.ProfileID = req.ProfileID

	switch qrcode.PayloadType(req.Type) {
	case qrcode.TypeProfile:
		return qrcode.ProfilePayload{Meta: meta, Username: req.Username}, nil
	case qrcode.TypeAnonymous:
		return qrcode.AnonymousPayload{Meta: meta, Username: req.Username}, nil
	case qrcode.TypeCustom:
		return qrcode.CustomPayload{Meta: meta, Username: req.Username, URL: req.URL}, nil
	default:
		return nil, &ValidationError{Field: "type", Constraint: "must be one of profile, anonymous, custom"}
	}
}

func (qs *QRService) Generate(req GenerateRequest) (*GenerateResult, error) {
	p, err := qs.payload(req)
	if err != nil {
		return nil, err
	}
	raw, err := qrcode.Encode(p)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Constraint: err.Error()}
	}
	link, err := qrcode.EncodeURL(qs.baseURL, p)
	if err != nil {
		return nil, &ValidationError{Field: "payload", Constraint: err.Error()}
	}
	return &GenerateResult{Raw: raw, Link: link}, nil
}

// Scan decodes raw and resolves its intent. Counting is queued for the aggregator
// and never delays the answer.
func (qs *QRService) Scan(ctx context.Context, raw, scanner string) (*ScanResult, error) {
	decoded := qrcode.Decode(raw)
	intent, err := dispatch.ResolveIntent(ctx, decoded, qs.lookup)
	if err != nil {
		return nil, transient("resolve scan", err)
	}
	qs.metrics.IncScans(intent.Kind.String())

	switch intent.Kind {
	case dispatch.ViewProfile, dispatch.AskAnonymous:
		qs.stats.AddScan(&models.ScanEvent{
			ProfileID: intent.Profile.ID,
			Outcome:   models.ScanOutcomeResolved,
			At:        qs.now().UTC(),
			Scanner:   scannerHash(scanner),
		})
	case dispatch.NotFound:
		key := decoded.ProfileID
		if key == "" {
			key = firstNonEmpty(decoded.Slug, decoded.Username)
		}
		qs.stats.AddScan(&models.ScanEvent{Outcome: models.ScanOutcomeNotFound, At: qs.now().UTC()})
		qs.logger.Debugf(providers.TypeScan, "Recognized code without profile: %q", key)
	}
	return &ScanResult{Decoded: decoded, Intent: intent}, nil
}

// scannerHash folds a client key into the 32-bit space of the scanner bitmaps. Zero means unknown.
func scannerHash(scanner string) uint32 {
	if scanner == "" {
		return 0
	}
	h := uint32(xxhash.Sum64String(scanner))
	if h == 0 {
		h = 1
	}
	return h
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
