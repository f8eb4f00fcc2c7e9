package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skryldev/mobile-boilerplate-api/db"
)

// QueryTracer returns a db.Tracer that records one client span per statement.
func (t *Telemetry) QueryTracer(system string) db.Tracer {
	return &queryTracer{tracer: t.Tracer, system: system}
}

type queryTracer struct {
	tracer trace.Tracer
	system string
}

func (q *queryTracer) StartSpan(ctx context.Context, query string, start time.Time) context.Context {
	op := operation(query)
	ctx, _ = q.tracer.Start(ctx, "db."+strings.ToLower(op),
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", q.system),
			attribute.String("db.operation", op),
			attribute.String("db.statement", query),
		),
	)
	return ctx
}

// EndSpan marks the span failed unless err is a plain miss.
func (q *queryTracer) EndSpan(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil && !db.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// QueryMetrics returns a db.MetricsCollector feeding the query histogram.
func (t *Telemetry) QueryMetrics() db.MetricsCollector {
	return queryMetrics{t.Instrument}
}

type queryMetrics struct{ i *Instrument }

func (m queryMetrics) RecordQuery(ctx context.Context, query string, d time.Duration, err error) {
	failed := err != nil && !db.IsNotFound(err)
	m.i.DBQueryDurationRecord(ctx, float64(d)/float64(time.Millisecond), operation(query), failed)
}

// PoolStats is satisfied by *db.DB.
type PoolStats interface {
	Stats() sql.DBStats
}

// ObservePool reports connection pool gauges on every metric collection. The
// returned registration stops reporting when unregistered.
func (t *Telemetry) ObservePool(pool PoolStats, system string) (metric.Registration, error) {
	open, err := t.Meter.Int64ObservableGauge("app.db.pool.open_connections",
		metric.WithDescription("Established connections, in use and idle"))
	if err != nil {
		return nil, err
	}
	inUse, err := t.Meter.Int64ObservableGauge("app.db.pool.in_use",
		metric.WithDescription("Connections currently in use"))
	if err != nil {
		return nil, err
	}
	idle, err := t.Meter.Int64ObservableGauge("app.db.pool.idle",
		metric.WithDescription("Idle connections"))
	if err != nil {
		return nil, err
	}
	waits, err := t.Meter.Int64ObservableCounter("app.db.pool.wait_count",
		metric.WithDescription("Total connections waited for"))
	if err != nil {
		return nil, err
	}

	attrs := metric.WithAttributes(attribute.String("db.system", system))
	return t.Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := pool.Stats()
		o.ObserveInt64(open, int64(s.OpenConnections), attrs)
		o.ObserveInt64(inUse, int64(s.InUse), attrs)
		o.ObserveInt64(idle, int64(s.Idle), attrs)
		o.ObserveInt64(waits, s.WaitCount, attrs)
		return nil
	}, open, inUse, idle, waits)
}

// operation is the leading SQL keyword, e.g. SELECT.
func operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}
