package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Middleware opens a server span per request, continues an incoming W3C
// trace context and records request duration.
func (t *Telemetry) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// * ensure context
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = t.propagator.Extract(ctx, propagation.HeaderCarrier(http.Header(c.GetReqHeaders())))

		// * start span
		started := time.Now()
		ctx, span := t.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.url", c.OriginalURL()),
				attribute.String("http.user_agent", c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()
		c.SetContext(ctx)

		t.Instrument.HttpActiveRequestCounter(ctx, 1, c.Method())
		defer t.Instrument.HttpActiveRequestCounter(ctx, -1, c.Method())

		// * proceed to next
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil {
			// the error handler has not written the response yet
			status = fiber.StatusInternalServerError
			if errors.As(err, &fe) {
				status = fe.Code
			}
			span.RecordError(err)
		}
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		route := c.Route().Path
		if route == "" {
			route = c.Path()
		}
		span.SetName(c.Method() + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		t.Instrument.HttpDurationRecord(ctx, time.Since(started).Milliseconds(), c.Method(), route, status)
		return err
	}
}
