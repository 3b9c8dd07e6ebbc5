package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"PolyEdge/internal/domain/models"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/tracing"
)

type observedEngine struct {
	next   Decider
	tracer trace.Tracer
	logger *applogger.Logger
}

var _ Decider = (*observedEngine)(nil)

// ObserveDecider wraps next with a span and a completion log per decision.
func ObserveDecider(next Decider, tracer trace.Tracer, l *applogger.Logger) Decider {
	if l == nil {
		l = applogger.NewNop()
	}
	if tracer == nil {
		tracer = tracing.Noop()
	}
	return &observedEngine{next: next, tracer: tracer, logger: l}
}

func (o *observedEngine) Decide(ctx context.Context, candles []models.Candle, quote models.MarketQuote, remainingMinutes *int) models.Decision {
	ctx, span := o.tracer.Start(ctx, "decision.Decide", trace.WithAttributes(
		attribute.Int("candles", len(candles)),
		attribute.Float64("quote.up", quote.Up),
		attribute.Float64("quote.down", quote.Down),
	))
	defer span.End()

	start := time.Now()
	dec := o.next.Decide(ctx, candles, quote, remainingMinutes)

	span.SetAttributes(
		attribute.Bool("should_trade", dec.ShouldTrade),
		attribute.String("direction", string(dec.Direction)),
		attribute.String("model", dec.ModelName),
		attribute.Float64("stake", dec.Stake),
	)

	fields := []applogger.Field{
		applogger.Bool("should_trade", dec.ShouldTrade),
		applogger.String("model", dec.ModelName),
		applogger.String("direction", string(dec.Direction)),
		applogger.Float64("stake", dec.Stake),
		applogger.String("reason", dec.Indicators.Reason),
		applogger.Int64("duration_ms", time.Since(start).Milliseconds()),
	}
	if traceID, spanID, ok := tracing.TraceFields(ctx); ok {
		fields = append(fields, applogger.String("trace_id", traceID), applogger.String("span_id", spanID))
	}
	o.logger.Debug("decision cycle completed", fields...)
	return dec
}
