package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PolyEdge/internal/domain/models"
)

type flakyPublisher struct {
	mu        sync.Mutex
	fail      bool
	decisions int
	events    int
}

func (f *flakyPublisher) PublishDecision(context.Context, string, models.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.decisions++
	return nil
}

func (f *flakyPublisher) PublishTradeEvent(context.Context, models.TradeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.events++
	return nil
}

func (f *flakyPublisher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decisions, f.events
}

func TestPublishPipelineValidates(t *testing.T) {
	p := NewPublishPipeline(&flakyPublisher{}, nil)
	ctx := context.Background()
	if err := p.PublishDecision(ctx, "", models.Decision{}); err == nil {
		t.Errorf("empty market id should fail")
	}
	if err := p.PublishDecision(ctx, "m1", models.Decision{ShouldTrade: true}); err == nil {
		t.Errorf("trading decision without side should fail")
	}
	if err := p.PublishTradeEvent(ctx, models.TradeEvent{Type: models.TradeEventRecorded}); err == nil {
		t.Errorf("event without trade should fail")
	}
}

func TestPublishPipelineThrottlesPerMarket(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := &flakyPublisher{}
	p := NewPublishPipeline(next, nil, WithMaxRPS(1), WithPipelineClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.PublishDecision(ctx, "m1", models.Decision{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.PublishDecision(ctx, "m2", models.Decision{}); err != nil {
		t.Fatal(err)
	}
	if d, _ := next.counts(); d != 2 {
		t.Fatalf("expected one decision per market, got %d", d)
	}
	now = now.Add(time.Second)
	_ = p.PublishDecision(ctx, "m1", models.Decision{})
	if d, _ := next.counts(); d != 3 {
		t.Fatalf("window elapsed, expected 3 decisions, got %d", d)
	}
}

func TestPublishPipelineBuffersAndRetries(t *testing.T) {
	next := &flakyPublisher{fail: true}
	p := NewPublishPipeline(next, nil, WithBufferSize(4))
	ctx := context.Background()

	ev := models.TradeEvent{Type: models.TradeEventRecorded, Trade: &models.TradeRecord{ID: 1, MarketID: "m1"}}
	if err := p.PublishTradeEvent(ctx, ev); err == nil {
		t.Fatalf("expected downstream error")
	}
	if p.Pending() != 1 {
		t.Fatalf("failed event should be buffered, pending=%d", p.Pending())
	}

	next.mu.Lock()
	next.fail = false
	next.mu.Unlock()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, e := next.counts(); e == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered event was not retried")
}
