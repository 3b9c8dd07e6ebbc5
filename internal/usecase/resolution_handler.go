package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	pkgkafka "PolyEdge/pkg/kafka"
	"PolyEdge/pkg/metrics"
)

// ResolutionHandler consumes market resolution messages from Kafka.
type ResolutionHandler struct {
	topic    string
	resolver *MarketResolver
	metrics  domrepo.Metrics
}

func NewResolutionHandler(topic string, resolver *MarketResolver, m domrepo.Metrics) *ResolutionHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ResolutionHandler{topic: topic, resolver: resolver, metrics: m}
}

func (h *ResolutionHandler) Topic() string { return h.topic }

// incoming message schema: {market_id, outcome}
func (h *ResolutionHandler) Handle(ctx context.Context, b []byte) error {
	var m models.MarketResolution
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("resolution_unmarshal")
		return fmt.Errorf("decode resolution: %w", err)
	}
	if m.MarketID == "" || !m.Outcome.Valid() {
		h.metrics.RecordError("resolution_invalid")
		return fmt.Errorf("invalid resolution message for market %q", m.MarketID)
	}
	if _, err := h.resolver.ResolveMarket(ctx, m.MarketID, m.Outcome); err != nil {
		h.metrics.RecordError("resolution_apply")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*ResolutionHandler)(nil)
