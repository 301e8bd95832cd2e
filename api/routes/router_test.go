package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapstudio-backend/api/controllers"
	"github.com/angelmondragon/snapstudio-backend/internal/credits"
	"github.com/angelmondragon/snapstudio-backend/internal/generation"
	stripewebhook "github.com/angelmondragon/snapstudio-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/snapstudio-backend/pkg/auth"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

type memoryStore struct {
	mu      sync.Mutex
	data    map[string]string
	counter map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counter: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter[key]++
	return m.counter[key], nil
}

type countingRunner struct {
	calls int
}

func (c *countingRunner) Run(_ context.Context, input generation.RunInput) (*generation.Result, error) {
	c.calls++
	return &generation.Result{OperationID: uuid.New(), Cost: 3, NewBalance: 27, Artifacts: []string{"out.png"}}, nil
}

type stubGate struct {
	accounts []string
}

func (s *stubGate) Authorize(_ context.Context, input credits.AuthorizeInput) (*credits.Authorization, error) {
	s.accounts = append(s.accounts, input.AccountID)
	return &credits.Authorization{OperationID: uuid.New(), Cost: 2, NewBalance: 8}, nil
}

func (s *stubGate) Finalize(_ context.Context, input credits.FinalizeInput) (*credits.Settlement, error) {
	return &credits.Settlement{}, nil
}

type stubWebhooks struct{}

func (stubWebhooks) Handle(_ context.Context, payload []byte, signature string) (*stripewebhook.Result, error) {
	return &stripewebhook.Result{EventID: "evt_1", EventType: "checkout.session.completed"}, nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App:        config.AppConfig{Env: "test", FrontendURL: "http://localhost:3000"},
		JWT:        config.JWTConfig{Secret: "router-secret", Issuer: "snapstudio-test", ExpirationMinutes: 10},
		Generation: config.GenerationConfig{RateLimit: 2, RateWindow: time.Minute},
	}
}

func testRouter(t *testing.T, deps Dependencies) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if deps.Store == nil {
		deps.Store = newMemoryStore()
	}
	return NewRouter(cfg, logg, deps), cfg
}

func bearer(t *testing.T, cfg *config.Config, userID string, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthRoutesArePublic(t *testing.T) {
	router, _ := testRouter(t, Dependencies{Readiness: map[string]controllers.Pinger{"db": okPinger{}}})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "test", rec.Header().Get("X-SnapStudio-Env"), path)
	}
}

func TestUserRoutesRequireToken(t *testing.T) {
	router, _ := testRouter(t, Dependencies{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInternalRoutesRejectUserTokens(t *testing.T) {
	gate := &stubGate{}
	router, cfg := testRouter(t, Dependencies{Gate: gate})

	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/authorizations",
		strings.NewReader(`{"account_id":"acct_1","kind":"edit","parameters":{"image_url":"https://x/y.png","prompt":"brighter"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, cfg, "acct_1", enums.RoleUser))
	req.Header.Set("Idempotency-Key", "k1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, gate.accounts)
}

func TestInternalAuthorizeAcceptsServiceToken(t *testing.T) {
	gate := &stubGate{}
	router, cfg := testRouter(t, Dependencies{Gate: gate})

	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/authorizations",
		strings.NewReader(`{"account_id":"acct_1","kind":"edit","parameters":{"image_url":"https://x/y.png","prompt":"brighter"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, cfg, "worker", enums.RoleService))
	req.Header.Set("Idempotency-Key", "k1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"acct_1"}, gate.accounts)
}

func TestAdminRoutesRejectUsers(t *testing.T) {
	router, cfg := testRouter(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/price-table", nil)
	req.Header.Set("Authorization", bearer(t, cfg, "acct_1", enums.RoleUser))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStripeWebhookSkipsAuth(t *testing.T) {
	router, _ := testRouter(t, Dependencies{Webhooks: stubWebhooks{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evt_1")
}

func TestOperationCreateReplaysIdempotentRequests(t *testing.T) {
	runner := &countingRunner{}
	router, cfg := testRouter(t, Dependencies{Generation: runner})
	token := bearer(t, cfg, "acct_1", enums.RoleUser)
	body := `{"kind":"generate","parameters":{"image_path":"in.png","product_type":"shoe","scenes":["beach"]}}`

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	missing := send("")
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	first := send("gen-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := send("gen-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, runner.calls)
}

func TestOperationCreateIsRateLimited(t *testing.T) {
	runner := &countingRunner{}
	router, cfg := testRouter(t, Dependencies{Generation: runner})
	token := bearer(t, cfg, "acct_1", enums.RoleUser)
	body := `{"kind":"generate","parameters":{"image_path":"in.png","product_type":"shoe","scenes":["beach"]}}`

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", fmt.Sprintf("gen-%d", i))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, 2, runner.calls)
}
