package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
)

type capturedMessage struct {
	topic string
	key   string
	value interface{}
}

type captureProducer struct {
	msgs []capturedMessage
}

func (p *captureProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.msgs = append(p.msgs, capturedMessage{topic: topic, key: string(key), value: value})
	return nil
}

func TestKafkaEventPublisher(t *testing.T) {
	prod := &captureProducer{}
	pub := newKafkaEventPublisher(prod, "polyedge.decisions", "polyedge.trades")
	ctx := context.Background()

	if err := pub.PublishDecision(ctx, "m1", models.Decision{ShouldTrade: true, Direction: models.DirectionUp, Stake: 10}); err != nil {
		t.Fatal(err)
	}
	if err := pub.PublishTradeEvent(ctx, models.TradeEvent{Type: models.TradeEventSettled, Trade: &models.TradeRecord{MarketID: "m1"}}); err != nil {
		t.Fatal(err)
	}
	if len(prod.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(prod.msgs))
	}
	if prod.msgs[0].topic != "polyedge.decisions" || prod.msgs[0].key != "m1" {
		t.Errorf("decision routed to %+v", prod.msgs[0])
	}
	if msg, ok := prod.msgs[0].value.(DecisionMessage); !ok || msg.Decision.Stake != 10 {
		t.Errorf("unexpected decision payload %#v", prod.msgs[0].value)
	}
	if prod.msgs[1].topic != "polyedge.trades" || prod.msgs[1].key != "m1" {
		t.Errorf("trade event routed to %+v", prod.msgs[1])
	}
}

func TestBuildEvaluationInsert(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []models.EvaluationResult{
		{Model: "TA-Model", Direction: models.DirectionUp, Confidence: 0.62, Edge: 0.12, ShouldTrade: true, Reason: "r", Timestamp: ts},
		{Model: ""},
		{Model: "Baseline-Model", Reason: "no edge", Timestamp: ts},
	}
	q, args := buildEvaluationInsert("polyedge.model_evaluations", "m1", models.MarketQuote{Up: 0.5, Down: 0.5}, results)
	if !strings.HasPrefix(q, "INSERT INTO polyedge.model_evaluations") {
		t.Fatalf("unexpected query %q", q)
	}
	if strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)") != 2 {
		t.Fatalf("expected two value rows: %q", q)
	}
	if len(args) != 2*evaluationColumns {
		t.Fatalf("expected %d args, got %d", 2*evaluationColumns, len(args))
	}
	if args[6] != uint8(1) || args[16] != uint8(0) {
		t.Fatalf("should_trade flags wrong: %v %v", args[6], args[16])
	}

	if q, _ := buildEvaluationInsert("t", "m1", models.MarketQuote{}, nil); q != "" {
		t.Fatalf("empty results should produce no query")
	}
}

type countingPublisher struct {
	decisions, events int
	err               error
}

func (p *countingPublisher) PublishDecision(context.Context, string, models.Decision) error {
	p.decisions++
	return p.err
}

func (p *countingPublisher) PublishTradeEvent(context.Context, models.TradeEvent) error {
	p.events++
	return p.err
}

func TestFanOutPublisher(t *testing.T) {
	broken := &countingPublisher{err: errors.New("broker down")}
	ok := &countingPublisher{}
	f := NewFanOutPublisher(broken, nil, ok)
	if f.Len() != 2 {
		t.Fatalf("Len = %d, want 2", f.Len())
	}

	err := f.PublishDecision(context.Background(), "m1", models.Decision{})
	if !errors.Is(err, broken.err) {
		t.Fatalf("err = %v", err)
	}
	if err := f.PublishTradeEvent(context.Background(), models.TradeEvent{}); err == nil {
		t.Fatal("expected joined error")
	}
	if ok.decisions != 1 || ok.events != 1 {
		t.Fatalf("healthy sink skipped after failure: %+v", ok)
	}
}
