package telemetry

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "deviceauth-api"

	replayHeader = "X-Idempotent-Replay"
)

// Request outcomes as seen at the HTTP edge
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
	OutcomeReplayed = "replayed"
	OutcomeError    = "error"
)

// Outcome classifies a response for span attributes and metrics. A 403 is a
// denied credential, not a server fault.
func Outcome(status int, replayed bool) string {
	switch {
	case replayed:
		return OutcomeReplayed
	case status >= 500:
		return OutcomeError
	case status == fiber.StatusForbidden || status == fiber.StatusUnauthorized:
		return OutcomeDenied
	case status == fiber.StatusNotFound:
		return OutcomeNotFound
	case status >= 400:
		return OutcomeInvalid
	default:
		return OutcomeOK
	}
}

// FiberMiddleware traces each request and counts it by route and outcome.
// The span is named after the matched route template, so tokens or ids in
// query strings never end up in span names.
func FiberMiddleware() fiber.Handler {
	tracer := otel.Tracer(tracerName)
	meter := otel.Meter(tracerName)
	propagator := otel.GetTextMapPropagator()

	requests, err := meter.Int64Counter("auth.http.requests",
		metric.WithDescription("HTTP requests by route and outcome"),
	)
	if err != nil {
		log.Printf("Warning: failed to create auth.http.requests counter: %v", err)
	}
	latency, err := meter.Float64Histogram("auth.http.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		log.Printf("Warning: failed to create auth.http.duration histogram: %v", err)
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		ctx := propagator.Extract(c.Context(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := tracer.Start(ctx, c.Method(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.host", c.Hostname()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// the route is only known once routing has run
		route := c.Route().Path
		status := c.Response().StatusCode()
		outcome := Outcome(status, string(c.Response().Header.Peek(replayHeader)) == "true")

		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("auth.outcome", outcome),
		)

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= 500:
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}

		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("auth.outcome", outcome),
		)
		if requests != nil {
			requests.Add(ctx, 1, attrs)
		}
		if latency != nil {
			latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
		}

		return err
	}
}

// TagClient records the device a request acted for on the request span
func TagClient(c *fiber.Ctx, clientID string) {
	trace.SpanFromContext(c.UserContext()).SetAttributes(attribute.String("auth.client_id", clientID))
}

// SessionEvent records a session lifecycle event on the request span
func SessionEvent(c *fiber.Ctx, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(c.UserContext()).AddEvent(name, trace.WithAttributes(attrs...))
}
