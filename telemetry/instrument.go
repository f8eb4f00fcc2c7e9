package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument holds the metric instruments recorded by the server.
type Instrument struct {
	HttpDurationHistogram          metric.Int64Histogram
	HttpActiveRequestUpDownCounter metric.Int64UpDownCounter
	DBQueryDurationHistogram       metric.Float64Histogram
}

func NewInstrument(meter metric.Meter) (*Instrument, error) {
	httpDurationHistogram, err := meter.Int64Histogram(
		"app.http.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	httpActiveRequestUpDownCounter, err := meter.Int64UpDownCounter(
		"app.http.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	dbQueryDurationHistogram, err := meter.Float64Histogram(
		"app.db.query.duration",
		metric.WithDescription("Duration of database statements"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrument{
		HttpDurationHistogram:          httpDurationHistogram,
		HttpActiveRequestUpDownCounter: httpActiveRequestUpDownCounter,
		DBQueryDurationHistogram:       dbQueryDurationHistogram,
	}, nil
}

func (r *Instrument) HttpDurationRecord(ctx context.Context, duration int64, method, route string, status int) {
	r.HttpDurationHistogram.Record(
		ctx,
		duration,
		metric.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status", status),
		),
	)
}

func (r *Instrument) HttpActiveRequestCounter(ctx context.Context, delta int64, method string) {
	r.HttpActiveRequestUpDownCounter.Add(
		ctx,
		delta,
		metric.WithAttributes(
			attribute.String("http.method", method),
		),
	)
}

func (r *Instrument) DBQueryDurationRecord(ctx context.Context, ms float64, operation string, failed bool) {
	r.DBQueryDurationHistogram.Record(
		ctx,
		ms,
		metric.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.Bool("error", failed),
		),
	)
}
