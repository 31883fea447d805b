package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"contactd/internal/app"
	"contactd/internal/captcha"
	"contactd/internal/config"
	"contactd/internal/lambdaproxy"
	"contactd/internal/mailer"
	"contactd/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// Integration tests that run the assembled service end-to-end

type outbox struct {
	mu   sync.Mutex
	sent []*email.Email
}

func (o *outbox) send(_ context.Context, _ string, _ smtp.Auth, e *email.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func newSiteverify(t *testing.T, score float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captcha.Verdict{
			Success:  r.PostForm.Get("response") != "",
			Score:    score,
			Action:   "contact",
			Hostname: "portfolio.example",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnvironment(t *testing.T, verifyURL string) {
	t.Helper()
	t.Setenv("CONTACT_RECAPTCHA_SECRET", "captcha-secret")
	t.Setenv("CONTACT_RECAPTCHA_VERIFY_URL", verifyURL)
	t.Setenv("CONTACT_MAIL_USER", "owner@example.com")
	t.Setenv("CONTACT_MAIL_CLIENT_ID", "client-id")
	t.Setenv("CONTACT_MAIL_CLIENT_SECRET", "client-secret")
	t.Setenv("CONTACT_MAIL_REFRESH_TOKEN", "refresh-token")
	t.Setenv("CONTACT_IDENTIFIER_SALT", "integration")
}

func buildApp(t *testing.T, cfg *models.Config, box *outbox) *app.App {
	t.Helper()
	a, err := app.Build(context.Background(), cfg, app.WithMailerOptions(
		mailer.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.test"})),
		mailer.WithSendFunc(box.send),
	))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func submission(message string) []byte {
	body, _ := json.Marshal(map[string]any{
		"name":           "Grace Hopper",
		"email":          "grace@example.com",
		"message":        message,
		"recaptchaToken": "token",
		"formRenderTime": time.Now().Add(-15 * time.Second).UnixMilli(),
	})
	return body
}

func TestIntegration_FullContactFlow(t *testing.T) {
	siteverify := newSiteverify(t, 0.9)
	setEnvironment(t, siteverify.URL)

	configFile := filepath.Join(t.TempDir(), "contactd.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(fmt.Sprintf(`
rate_limit:
  backend: sqlite
  dsn: %q
  max_requests: 2
  window: 10m
  global_per_minute: 0
  global_burst: 0
mail:
  subject: "Integration contact"
`, filepath.Join(t.TempDir(), "limits.db"))), 0644))

	cfg, err := config.Load(configFile)
	require.NoError(t, err)

	box := &outbox{}
	server := httptest.NewServer(buildApp(t, cfg, box).Router)
	defer server.Close()

	// Step 1: health reports every component healthy
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	var health models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Contains(t, health.Components, "rate_limiter")

	// Step 2: two submissions go through
	for i := 1; i <= 2; i++ {
		resp, err := http.Post(server.URL+"/api/contact", "application/json", bytes.NewReader(submission("Hello number "+fmt.Sprint(i))))
		require.NoError(t, err)
		var ok models.ContactResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, ok.OK)
	}
	require.Equal(t, 2, box.count())
	assert.Equal(t, "Integration contact", box.sent[0].Subject)

	// Step 3: the third is rejected by the shared SQLite window
	resp, err = http.Post(server.URL+"/api/contact", "application/json", bytes.NewReader(submission("Once more")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, 2, box.count())
}

func TestIntegration_ErrorHandling(t *testing.T) {
	siteverify := newSiteverify(t, 0.3)
	setEnvironment(t, siteverify.URL)

	cfg, err := config.Load("")
	require.NoError(t, err)

	box := &outbox{}
	server := httptest.NewServer(buildApp(t, cfg, box).Router)
	defer server.Close()

	tests := []struct {
		name   string
		method string
		body   []byte
		status int
	}{
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"malformed body", http.MethodPost, []byte(`{"name":`), http.StatusBadRequest},
		{"invalid email", http.MethodPost, []byte(`{"name":"A","email":"nope","message":"m","recaptchaToken":"t"}`), http.StatusBadRequest},
		{"low captcha score", http.MethodPost, submission("Hi there"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, server.URL+"/api/contact", bytes.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var errResp models.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.NotEmpty(t, errResp.Error)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}
	assert.Zero(t, box.count())
}

func TestIntegration_ConcurrentRequests(t *testing.T) {
	siteverify := newSiteverify(t, 0.95)
	setEnvironment(t, siteverify.URL)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.RateLimit.GlobalPerMinute = 0
	cfg.RateLimit.GlobalBurst = 0

	box := &outbox{}
	server := httptest.NewServer(buildApp(t, cfg, box).Router)
	defer server.Close()

	const numRequests = 20
	statuses := make(chan int, numRequests)
	var wg sync.WaitGroup
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(server.URL+"/api/contact", "application/json", bytes.NewReader(submission(fmt.Sprintf("Concurrent %d", i))))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 5, counts[http.StatusOK], "one client gets exactly the window allowance")
	assert.Equal(t, numRequests-5, counts[http.StatusTooManyRequests])
	assert.Equal(t, 5, box.count())
}

func TestIntegration_LambdaMissingSecrets(t *testing.T) {
	siteverify := newSiteverify(t, 0.9)
	setEnvironment(t, siteverify.URL)
	t.Setenv("CONTACT_RECAPTCHA_SECRET", "")
	t.Setenv("RECAPTCHA_SECRET_KEY", "")

	_, err := config.Load("")
	require.Error(t, err, "the server refuses to start without secrets")

	cfg, err := config.Load("", config.AllowMissingSecrets())
	require.NoError(t, err)

	box := &outbox{}
	adapter := lambdaproxy.New(buildApp(t, cfg, box).Router)

	ev := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/contact",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(submission("Hello from the gateway")),
	}
	ev.RequestContext.Identity.SourceIP = "203.0.113.50"

	resp, err := adapter.Proxy(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, models.MessageConfiguration)
	assert.Zero(t, box.count())
}

func TestIntegration_LambdaRoundTrip(t *testing.T) {
	siteverify := newSiteverify(t, 0.9)
	setEnvironment(t, siteverify.URL)

	cfg, err := config.Load("", config.AllowMissingSecrets())
	require.NoError(t, err)

	box := &outbox{}
	adapter := lambdaproxy.New(buildApp(t, cfg, box).Router)

	ev := events.APIGatewayV2HTTPRequest{
		RawPath: "/contact",
		Headers: map[string]string{"content-type": "application/json"},
		Body:    string(submission("Hello from HTTP API")),
	}
	ev.RequestContext.HTTP.Method = http.MethodPost
	ev.RequestContext.HTTP.Path = "/contact"
	ev.RequestContext.HTTP.SourceIP = "203.0.113.51"

	resp, err := adapter.ProxyV2(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	assert.Equal(t, "4", resp.Headers["X-Ratelimit-Remaining"])
	assert.Equal(t, 1, box.count())
}
