package repository

import (
	"context"
	"errors"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
)

// FanOutPublisher delivers every event to each publisher in order. One
// failing sink does not stop delivery to the rest; errors are joined.
type FanOutPublisher struct {
	pubs []domrepo.EventPublisher
}

var _ domrepo.EventPublisher = (*FanOutPublisher)(nil)

func NewFanOutPublisher(pubs ...domrepo.EventPublisher) *FanOutPublisher {
	f := &FanOutPublisher{}
	for _, p := range pubs {
		if p != nil {
			f.pubs = append(f.pubs, p)
		}
	}
	return f
}

func (f *FanOutPublisher) Len() int { return len(f.pubs) }

func (f *FanOutPublisher) PublishDecision(ctx context.Context, marketID string, d models.Decision) error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.PublishDecision(ctx, marketID, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanOutPublisher) PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error {
	var errs []error
	for _, p := range f.pubs {
		if err := p.PublishTradeEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
