package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics returns middleware that records operation duration and execution
// counts using the global OpenTelemetry meter provider.
func Metrics() Middleware {
	return MetricsWithMeter(otel.GetMeterProvider().Meter("engage"))
}

// MetricsWithMeter is like Metrics but uses the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, _ := meter.Float64Histogram(
		"engage.op.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"engage.op.executions",
		metric.WithDescription("Total operations executed"),
	)

	return func(ctx context.Context, op *Op, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("op", op.Name),
			attribute.String("tenant_id", op.TenantID.String()),
			attribute.String("status", status),
		)

		if duration != nil {
			duration.Record(ctx, elapsed.Seconds(), attrs)
		}
		if executions != nil {
			executions.Add(ctx, 1, attrs)
		}

		return err
	}
}
