package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, refresh string) (*httptest.Server, *[]string) {
	t.Helper()
	var codes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		codes = append(codes, r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.x","token_type":"Bearer","expires_in":3600,"refresh_token":"` + refresh + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &codes
}

func TestConsentURL(t *testing.T) {
	opts := &tokenOptions{clientID: "id", clientSecret: "secret", redirectURL: defaultRedirectURL}
	cfg, err := opts.oauthConfig()
	require.NoError(t, err)

	u, err := url.Parse(consentURL(cfg))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "https://mail.google.com/", q.Get("scope"))
	assert.Equal(t, defaultRedirectURL, q.Get("redirect_uri"))
}

func TestOAuthConfig_MissingCredentials(t *testing.T) {
	_, err := (&tokenOptions{}).oauthConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client-id, client-secret")
}

func TestRunTokenFlow_FromStdin(t *testing.T) {
	srv, codes := newTokenServer(t, "1//refresh")
	opts := &tokenOptions{clientID: "id", clientSecret: "secret", redirectURL: defaultRedirectURL, timeout: 5 * time.Second, tokenURL: srv.URL}

	var out bytes.Buffer
	err := runTokenFlow(context.Background(), opts, strings.NewReader("http://localhost:3000/?code=4%2Fabc&scope=x\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, []string{"4/abc"}, *codes)
	assert.Contains(t, out.String(), "accounts.google.com")
	assert.Contains(t, out.String(), "1//refresh")
}

func TestRunTokenFlow_NoRefreshToken(t *testing.T) {
	srv, _ := newTokenServer(t, "")
	opts := &tokenOptions{clientID: "id", clientSecret: "secret", code: "c", timeout: 5 * time.Second, tokenURL: srv.URL}

	err := runTokenFlow(context.Background(), opts, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no refresh token")
}

func TestRunTokenFlow_EmptyCode(t *testing.T) {
	opts := &tokenOptions{clientID: "id", clientSecret: "secret", timeout: time.Second}
	err := runTokenFlow(context.Background(), opts, strings.NewReader("\n"), &bytes.Buffer{})
	assert.EqualError(t, err, "no authorization code provided")
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"4/0Abc\n", "4/0Abc"},
		{"  raw-code  ", "raw-code"},
		{"http://localhost:3000/?code=xyz&scope=a", "xyz"},
		{"http://localhost:3000/?error=access_denied", "http://localhost:3000/?error=access_denied"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractCode(tt.in), tt.in)
	}
}

func TestRootCmd_URLSubcommand(t *testing.T) {
	t.Setenv("CONTACT_MAIL_CLIENT_ID", "env-id")
	t.Setenv("CONTACT_MAIL_CLIENT_SECRET", "env-secret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"url"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "client_id=env-id")
}
