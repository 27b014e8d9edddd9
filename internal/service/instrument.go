package service

import (
	"context"
	"log"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/mansoorceksport/deviceauth/internal/service"

// instrument runs service operations under a deadline, a span and an
// outcome counter, and normalises every returned error to *domain.Error.
type instrument struct {
	timeout    time.Duration
	tracer     trace.Tracer
	operations metric.Int64Counter
}

func newInstrument(timeout time.Duration) *instrument {
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"auth.operations",
		metric.WithDescription("Authentication operations by outcome"),
	)
	if err != nil {
		log.Printf("Warning: failed to create auth.operations counter: %v", err)
	}
	return &instrument{
		timeout:    timeout,
		tracer:     otel.Tracer(instrumentationName),
		operations: counter,
	}
}

func (i *instrument) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	ctx, span := i.tracer.Start(ctx, "auth."+op)
	defer span.End()

	outcome := "success"
	var result error
	if err := fn(ctx); err != nil {
		e := domain.AsError(err)
		outcome = e.Kind.String()
		if e.Kind == domain.KindService {
			// the cause stays in logs and traces, never in the response
			log.Printf("auth: %s failed: %v", op, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "service error")
		}
		result = e
	}

	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if i.operations != nil {
		i.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
	return result
}
