// Package tracing holds small helpers shared by instrumented packages.
package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordAnyErrorAndEndSpan marks the span failed when err is set and ends it.
// Cancellation is recorded as an event rather than an error status.
func RecordAnyErrorAndEndSpan(err error, span trace.Span) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			span.AddEvent("cancelled")
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
