package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/dispatch"
	"hoyn/internal/models"
	"hoyn/internal/qrcode"
	"hoyn/internal/storage/memory"
	"hoyn/internal/structures"
	"hoyn/internal/testutil"
)

type qrFixture struct {
	svc     *QRService
	stats   *testutil.MockScanStatisticService
	metrics *testutil.MockMetrics
}

func newQRFixture(t *testing.T, lookup dispatch.ProfileLookup) *qrFixture {
	t.Helper()
	if lookup == nil {
		mem := memory.New(nil)
		t.Cleanup(func() { _ = mem.Close() })
		seedProfiles(t, mem)
		lookup = mem
	}
	f := &qrFixture{stats: &testutil.MockScanStatisticService{}, metrics: &testutil.MockMetrics{}}
	conf := &structures.Config{QR: structures.QRConfig{BaseURL: "https://hoyn.app/"}}
	f.svc = NewQRService(conf, lookup, f.stats, &testutil.MockLogger{}, f.metrics).(*QRService)
	f.svc.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return f
}

func TestQRService_GenerateProfile(t *testing.T) {
	f := newQRFixture(t, nil)
	res, err := f.svc.Generate(GenerateRequest{Type: "profile", Username: "bob"})
	require.NoError(t, err)

	assert.Contains(t, res.Raw, `"hoyn":true`)
	assert.Contains(t, res.Raw, `"type":"profile"`)
	assert.Contains(t, res.Raw, `"createdAt":"2024-01-02T03:04:05.000Z"`)
	assert.NotContains(t, res.Raw, `"url"`)
	assert.True(t, strings.HasPrefix(res.Link, "https://hoyn.app/qr/v1?d="), res.Link)

	decoded := qrcode.Decode(res.Link)
	assert.Equal(t, qrcode.Recognized, decoded.Outcome)
	assert.Equal(t, "bob", decoded.Username)
}

func TestQRService_GenerateCustom(t *testing.T) {
	f := newQRFixture(t, nil)
	res, err := f.svc.Generate(GenerateRequest{Type: "custom", Username: "bob", URL: "https://example.com/x"})
	require.NoError(t, err)
	assert.Contains(t, res.Raw, `"url":"https://example.com/x"`)

	_, err = f.svc.Generate(GenerateRequest{Type: "custom", Username: "bob"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestQRService_GenerateRejectsBadInput(t *testing.T) {
	f := newQRFixture(t, nil)
	var verr *ValidationError

	_, err := f.svc.Generate(GenerateRequest{Type: "vcard", Username: "bob"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = f.svc.Generate(GenerateRequest{Type: "profile"})
	assert.ErrorAs(t, err, &verr)
}

func TestQRService_ScanResolvesProfile(t *testing.T) {
	f := newQRFixture(t, nil)
	gen, err := f.svc.Generate(GenerateRequest{Type: "profile", Username: "bob"})
	require.NoError(t, err)

	res, err := f.svc.Scan(context.Background(), gen.Raw, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, dispatch.ViewProfile, res.Intent.Kind)
	require.NotNil(t, res.Intent.Profile)
	assert.Equal(t, "p-bob", res.Intent.Profile.ID)

	require.Len(t, f.stats.Scans, 1)
	assert.Equal(t, "p-bob", f.stats.Scans[0].ProfileID)
	assert.Equal(t, models.ScanOutcomeResolved, f.stats.Scans[0].Outcome)
	assert.NotZero(t, f.stats.Scans[0].Scanner)
	assert.Equal(t, 1, f.metrics.Scans["view_profile"])
}

func TestQRService_ScanAnonymous(t *testing.T) {
	f := newQRFixture(t, nil)
	gen, err := f.svc.Generate(GenerateRequest{Type: "anonymous", Username: "alice"})
	require.NoError(t, err)

	res, err := f.svc.Scan(context.Background(), gen.Link, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, dispatch.AskAnonymous, res.Intent.Kind)
	assert.Equal(t, "p-alice", res.Intent.Profile.ID)
}

func TestQRService_ScanUnknownProfile(t *testing.T) {
	f := newQRFixture(t, nil)
	gen, err := f.svc.Generate(GenerateRequest{Type: "profile", Username: "ghost"})
	require.NoError(t, err)

	res, err := f.svc.Scan(context.Background(), gen.Raw, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, dispatch.NotFound, res.Intent.Kind)

	require.Len(t, f.stats.Scans, 1)
	assert.Empty(t, f.stats.Scans[0].ProfileID)
	assert.Equal(t, models.ScanOutcomeNotFound, f.stats.Scans[0].Outcome)
	assert.Equal(t, 1, f.metrics.Scans["not_found"])
}

func TestQRService_ScanUnrecognized(t *testing.T) {
	f := newQRFixture(t, nil)
	for _, raw := range []string{"", "hello world", `{"hoyn":false}`, "<script>alert(1)</script>"} {
		res, err := f.svc.Scan(context.Background(), raw, "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, dispatch.None, res.Intent.Kind, raw)
		assert.Equal(t, qrcode.Unrecognized, res.Decoded.Outcome, raw)
	}
	assert.Empty(t, f.stats.Scans)
	assert.Equal(t, 4, f.metrics.Scans["none"])
}

type brokenLookup struct{}

var errLookupDown = errors.New("lookup down")

func (brokenLookup) ProfileBySlug(context.Context, string) (*models.Profile, error) {
	return nil, errLookupDown
}
func (brokenLookup) ProfileByID(context.Context, string) (*models.Profile, error) {
	return nil, errLookupDown
}
func (brokenLookup) ProfileByUsername(context.Context, string) (*models.Profile, error) {
	return nil, errLookupDown
}

func TestQRService_ScanLookupFailure(t *testing.T) {
	f := newQRFixture(t, brokenLookup{})
	gen, err := f.svc.Generate(GenerateRequest{Type: "profile", Username: "bob"})
	require.NoError(t, err)

	_, err = f.svc.Scan(context.Background(), gen.Raw, "203.0.113.7")
	var terr *TransientStoreError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, errLookupDown)
	assert.Empty(t, f.stats.Scans)
}

func TestScannerHash(t *testing.T) {
	assert.Zero(t, scannerHash(""))
	assert.NotZero(t, scannerHash("203.0.113.7"))
	assert.Equal(t, scannerHash("203.0.113.7"), scannerHash("203.0.113.7"))
	assert.NotEqual(t, scannerHash("203.0.113.7"), scannerHash("203.0.113.8"))
}
