// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file wraps otelgin so that server spans never carry credentials. The
// legacy account routes take the password as a path segment; otelgin records
// the raw request path as url.path, so those routes get a span built here
// with the path scrubbed by RedactPath instead.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tbourn/go-chat-queue/internal/http/middleware"

// secretParams are route parameters whose values must not leave the
// process.
var secretParams = []string{"password"}

func hasSecretParam(c *gin.Context) bool {
	for _, p := range secretParams {
		if c.Param(p) != "" {
			return true
		}
	}
	return false
}

// Tracing starts a server span per request using the global tracer provider
// and propagator. Requests on routes with a secret path parameter are
// skipped by otelgin and traced with the redacted path.
func Tracing(service string) gin.HandlerFunc {
	traced := otelgin.Middleware(service, otelgin.WithGinFilter(func(c *gin.Context) bool {
		return !hasSecretParam(c)
	}))
	return func(c *gin.Context) {
		if !hasSecretParam(c) {
			traced(c)
			return
		}
		redactedSpan(c, service)
	}
}

func redactedSpan(c *gin.Context, service string) {
	saved := c.Request.Context()
	defer func() { c.Request = c.Request.WithContext(saved) }()

	ctx := otel.GetTextMapPropagator().Extract(saved, propagation.HeaderCarrier(c.Request.Header))
	route := c.FullPath()
	ctx, span := otel.GetTracerProvider().Tracer(tracerName).Start(ctx, c.Request.Method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			semconv.ServerAddress(service),
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRoute(route),
			semconv.URLPath(RedactPath(c.Request.URL.Path)),
			semconv.ClientAddress(c.ClientIP()),
		),
	)
	defer span.End()

	c.Request = c.Request.WithContext(ctx)
	c.Next()

	status := c.Writer.Status()
	span.SetAttributes(semconv.HTTPResponseStatusCode(status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	for _, err := range c.Errors {
		span.RecordError(err.Err)
	}
}
