package usecase

import (
	"context"
	"fmt"

	"PolyEdge/internal/domain/models"
	"PolyEdge/pkg/queue"
)

const SettleMarketJobType = "market.settle"

// SettleMarketJob resolves a market asynchronously from the Redis queue.
type SettleMarketJob struct {
	resolver *MarketResolver
}

func NewSettleMarketJob(resolver *MarketResolver) *SettleMarketJob {
	return &SettleMarketJob{resolver: resolver}
}

func (j *SettleMarketJob) Name() string { return "settle-market" }

func (j *SettleMarketJob) Type() string { return SettleMarketJobType }

func (j *SettleMarketJob) Handle(ctx context.Context, payload interface{}) error {
	res, err := queue.ParsePayload[models.MarketResolution](payload)
	if err != nil {
		return fmt.Errorf("settle job payload: %w", err)
	}
	_, err = j.resolver.ResolveMarket(ctx, res.MarketID, res.Outcome)
	return err
}

var _ queue.Job = (*SettleMarketJob)(nil)
