package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing returns middleware that wraps each operation in a span using the
// global OpenTelemetry tracer provider.
func Tracing() Middleware {
	return TracingWithTracer(otel.GetTracerProvider().Tracer("engage"))
}

// TracingWithTracer is like Tracing but uses the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op *Op, next Handler) error {
		ctx, span := tracer.Start(ctx, op.Name,
			trace.WithAttributes(
				attribute.String("engage.op", op.Name),
				attribute.String("engage.tenant_id", op.TenantID.String()),
				attribute.String("engage.user_id", op.UserID.String()),
			),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}
