package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"hoyn/internal/conversation"
	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/ratelimit"
	"hoyn/internal/services"
	"hoyn/internal/storage"
	"hoyn/internal/storage/memory"
	"hoyn/internal/structures"
	"hoyn/internal/testutil"
)

var (
	alice = strings.Repeat("a", 28)
	bob   = strings.Repeat("b", 28)
	carol = strings.Repeat("c", 28)
)

type fixture struct {
	conf     *structures.Config
	store    *memory.Store
	logger   *testutil.MockLogger
	metrics  *testutil.MockMetrics
	messages services.MessageServiceInterface
	identity providers.IdentityProviderInterface
}

func testConfig() *structures.Config {
	return &structures.Config{
		QR: structures.QRConfig{BaseURL: "https://hoyn.app", ScanRPS: 100, ScanBurst: 100},
	}
}

func newFixture(t *testing.T, conf *structures.Config) *fixture {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}
	store := memory.New(nil)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	open := models.UserMessagingSettings{CanReceiveMessages: true, CanReceiveAnonymous: true}
	require.NoError(t, store.UpsertProfile(ctx, &models.Profile{ID: "p-alice", OwnerUID: alice, Username: "alice", Settings: open}))
	require.NoError(t, store.UpsertProfile(ctx, &models.Profile{ID: "p-bob", OwnerUID: bob, Username: "bob", Slug: "bob-slug", Settings: open}))
	require.NoError(t, store.UpsertProfile(ctx, &models.Profile{ID: "p-carol", OwnerUID: carol, Username: "carol"}))

	f := &fixture{
		conf:     conf,
		store:    store,
		logger:   &testutil.MockLogger{},
		metrics:  &testutil.MockMetrics{},
		identity: providers.NewIdentityProvider(conf),
	}
	f.messages = f.messageService(store)
	return f
}

func (f *fixture) messageService(store storage.Store) services.MessageServiceInterface {
	return services.NewMessageService(f.conf, store,
		conversation.NewDirectory(store), conversation.NewUnreadTracker(store),
		services.NewMessageLimiter(f.conf), f.logger, f.metrics)
}

func (f *fixture) send(t *testing.T, sender, recipient, text string) *services.SendResult {
	t.Helper()
	res, err := f.messages.Send(context.Background(), services.SendRequest{SenderID: sender, RecipientID: recipient, Text: text})
	require.NoError(t, err)
	return res
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, strings.NewReader(string(data)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func newQRController(f *fixture, throttle *ratelimit.KeyedThrottle) *QRController {
	stats := &testutil.MockScanStatisticService{}
	qr := services.NewQRService(f.conf, f.store, stats, f.logger, f.metrics)
	return NewQRController(f.logger, qr, throttle, f.metrics, f.conf)
}
