package lambdaproxy

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	method     string
	path       string
	query      string
	remoteAddr string
	body       string
	header     http.Header
}

func echoAdapter(seen *seenRequest, status int, respBody string) *Adapter {
	return New(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*seen = seenRequest{
			method:     r.Method,
			path:       r.URL.Path,
			query:      r.URL.RawQuery,
			remoteAddr: r.RemoteAddr,
			body:       string(b),
			header:     r.Header.Clone(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
}

func TestProxy_RequestTranslation(t *testing.T) {
	var seen seenRequest
	a := echoAdapter(&seen, http.StatusOK, `{"ok":true}`)

	ev := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/contact",
		MultiValueHeaders: map[string][]string{
			"Content-Type":    {"application/json"},
			"X-Forwarded-For": {"198.51.100.9"},
		},
		QueryStringParameters: map[string]string{"lang": "en"},
		Body:                  `{"name":"Ada"}`,
	}
	ev.RequestContext.Identity.SourceIP = "203.0.113.7"

	resp, err := a.Proxy(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/api/contact", seen.path)
	assert.Equal(t, "lang=en", seen.query)
	assert.Equal(t, "203.0.113.7:0", seen.remoteAddr)
	assert.Equal(t, `{"name":"Ada"}`, seen.body)
	assert.Equal(t, "application/json", seen.header.Get("Content-Type"))
	assert.Equal(t, "198.51.100.9", seen.header.Get("X-Forwarded-For"))

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.False(t, resp.IsBase64Encoded)
	assert.Equal(t, []string{"a", "b"}, resp.MultiValueHeaders["X-Multi"])
}

func TestProxy_Base64Body(t *testing.T) {
	var seen seenRequest
	a := echoAdapter(&seen, http.StatusAccepted, `{}`)

	ev := events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/contact",
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"x":1}`)),
		IsBase64Encoded: true,
	}

	resp, err := a.Proxy(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, `{"x":1}`, seen.body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestProxy_InvalidBase64Body(t *testing.T) {
	called := false
	a := New(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	_, err := a.Proxy(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/contact",
		Body:            "%%%not base64",
		IsBase64Encoded: true,
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestProxy_NoSourceIPKeepsRemoteAddr(t *testing.T) {
	var seen seenRequest
	a := echoAdapter(&seen, http.StatusOK, `{}`)

	_, err := a.Proxy(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health"})
	require.NoError(t, err)
	assert.NotContains(t, seen.remoteAddr, ":0")
}

func TestProxyV2_RequestTranslation(t *testing.T) {
	var seen seenRequest
	a := echoAdapter(&seen, http.StatusTooManyRequests, `{"ok":false}`)

	ev := events.APIGatewayV2HTTPRequest{
		RawPath:        "/api/contact",
		RawQueryString: "a=1&b=2",
		Headers:        map[string]string{"content-type": "application/json"},
		Body:           `{}`,
	}
	ev.RequestContext.HTTP.Method = http.MethodPost
	ev.RequestContext.HTTP.Path = "/api/contact"
	ev.RequestContext.HTTP.SourceIP = "2001:db8::1"

	resp, err := a.ProxyV2(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/api/contact", seen.path)
	assert.Equal(t, "a=1&b=2", seen.query)
	assert.Equal(t, "[2001:db8::1]:0", seen.remoteAddr)
	assert.Equal(t, "application/json", seen.header.Get("Content-Type"))

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, `{"ok":false}`, resp.Body)
}
