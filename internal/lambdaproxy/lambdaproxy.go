// Package lambdaproxy serves an http.Handler from AWS Lambda behind API
// Gateway. Event translation is done by aws-lambda-go-api-proxy; this package
// adds the caller's source IP as RemoteAddr so client identity resolves the
// same way it does behind a plain HTTP listener.
package lambdaproxy

import (
	"context"
	"net"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// Adapter handles REST API (payload v1) and HTTP API (payload v2) events.
type Adapter struct {
	v1 *httpadapter.HandlerAdapter
	v2 *httpadapter.HandlerAdapterV2
}

// New wraps handler.
func New(handler http.Handler) *Adapter {
	h := withSourceIP(handler)
	return &Adapter{
		v1: httpadapter.New(h),
		v2: httpadapter.NewV2(h),
	}
}

// Proxy handles an API Gateway REST API proxy event.
func (a *Adapter) Proxy(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return a.v1.ProxyWithContext(ctx, req)
}

// ProxyV2 handles an API Gateway HTTP API (payload format 2.0) event.
func (a *Adapter) ProxyV2(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.v2.ProxyWithContext(ctx, req)
}

// withSourceIP sets RemoteAddr from the gateway request context. The port is
// unknown and reported as 0.
func withSourceIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := sourceIP(r.Context()); ip != "" {
			r.RemoteAddr = net.JoinHostPort(ip, "0")
		}
		next.ServeHTTP(w, r)
	})
}

func sourceIP(ctx context.Context) string {
	if rc, ok := core.GetAPIGatewayContextFromContext(ctx); ok {
		return rc.Identity.SourceIP
	}
	if rc, ok := core.GetAPIGatewayV2ContextFromContext(ctx); ok {
		return rc.HTTP.SourceIP
	}
	return ""
}
