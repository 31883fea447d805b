package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"contactd/internal/captcha"
	"contactd/internal/models"
	"contactd/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string, string) (*captcha.Verdict, error) {
	return &captcha.Verdict{Success: true, Score: 1, Action: "contact"}, nil
}

func testConfig() *models.Config {
	cfg := models.NewDefaultConfig()
	cfg.Captcha.Secret = "secret"
	cfg.Mail.User = "owner@example.com"
	cfg.Mail.ClientID = "id"
	cfg.Mail.ClientSecret = "secret"
	cfg.Mail.RefreshToken = "refresh"
	return cfg
}

func TestBuild_MemoryBackend(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), WithVerifier(stubVerifier{}))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &ratelimit.MemoryLimiter{}, a.Limiter)
	assert.Empty(t, a.Service.MissingSettings())

	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuild_InstrumentedSQLiteBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	cfg.RateLimit.Backend = models.RateLimitBackendSQLite
	cfg.RateLimit.DSN = filepath.Join(t.TempDir(), "limits.db")

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &ratelimit.StoreLimiter{}, a.Limiter)
	assert.NoError(t, a.Limiter.Ping(context.Background()))
}

func TestBuild_MissingSecretsStillBuilds(t *testing.T) {
	cfg := models.NewDefaultConfig()

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Contains(t, a.Service.MissingSettings(), "captcha_secret")

	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBuild_Errors(t *testing.T) {
	t.Run("bad trusted proxy", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.TrustedProxies = []string{"not-a-cidr"}
		_, err := Build(context.Background(), cfg)
		assert.ErrorContains(t, err, "invalid trusted proxies")
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit.Backend = "redis"
		_, err := Build(context.Background(), cfg)
		assert.ErrorContains(t, err, "failed to initialize rate limiter")
	})
}
