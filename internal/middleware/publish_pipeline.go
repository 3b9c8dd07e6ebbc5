package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/pkg/metrics"
)

type envelope struct {
	marketID string
	decision *models.Decision
	event    *models.TradeEvent
}

// PublishPipeline sits in front of an EventPublisher. It validates events,
// throttles decisions per market and buffers anything the downstream
// rejects for retry in the background.
type PublishPipeline struct {
	next     domrepo.EventPublisher
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan envelope
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-market last accepted decision
	now      func() time.Time
}

var _ domrepo.EventPublisher = (*PublishPipeline)(nil)

type PipelineOption func(*PublishPipeline)

// WithMaxRPS sets the max decisions per second per market.
func WithMaxRPS(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used while downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *PublishPipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublishPipeline(next domrepo.EventPublisher, m domrepo.Metrics, opts ...PipelineOption) *PublishPipeline {
	if m == nil {
		m = metrics.Nop{}
	}
	p := &PublishPipeline{
		next:     next,
		metrics:  m,
		maxRPS:   5,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan envelope, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *PublishPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case env := <-p.bufCh:
				if err := p.forward(ctx, env); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					p.buffer(env)
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops background flushing. Buffered events still pending are
// dropped.
func (p *PublishPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Pending reports the number of buffered events.
func (p *PublishPipeline) Pending() int { return len(p.bufCh) }

func (p *PublishPipeline) PublishDecision(ctx context.Context, marketID string, d models.Decision) error {
	if marketID == "" {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("decision without market id")
	}
	if d.ShouldTrade && (!d.Direction.Valid() || d.Stake <= 0) {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("trading decision for %s has no side or stake", marketID)
	}
	if !p.allow(marketID) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	return p.process(ctx, envelope{marketID: marketID, decision: &d})
}

func (p *PublishPipeline) PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error {
	if ev.Trade == nil || ev.Type == "" {
		p.metrics.RecordError("pipeline_validate")
		return fmt.Errorf("trade event missing type or trade")
	}
	return p.process(ctx, envelope{marketID: ev.Trade.MarketID, event: &ev})
}

func (p *PublishPipeline) process(ctx context.Context, env envelope) error {
	start := time.Now()
	if err := p.forward(ctx, env); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(env)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

func (p *PublishPipeline) forward(ctx context.Context, env envelope) error {
	if env.event != nil {
		return p.next.PublishTradeEvent(ctx, *env.event)
	}
	return p.next.PublishDecision(ctx, env.marketID, *env.decision)
}

func (p *PublishPipeline) buffer(env envelope) {
	select {
	case p.bufCh <- env:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

func (p *PublishPipeline) allow(marketID string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[marketID]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[marketID] = now
	return true
}
