package repository

import (
	"context"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	pkgkafka "PolyEdge/pkg/kafka"
)

type messageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

var _ messageProducer = (*pkgkafka.Producer)(nil)

// DecisionMessage is the Kafka payload for a market decision.
type DecisionMessage struct {
	MarketID  string          `json:"market_id"`
	Decision  models.Decision `json:"decision"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaEventPublisher implements EventPublisher on Kafka. Messages are keyed
// by market id so one market's events stay ordered.
type KafkaEventPublisher struct {
	producer      messageProducer
	decisionTopic string
	tradeTopic    string
	now           func() time.Time
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, decisionTopic, tradeTopic string) *KafkaEventPublisher {
	return newKafkaEventPublisher(producer, decisionTopic, tradeTopic)
}

func newKafkaEventPublisher(p messageProducer, decisionTopic, tradeTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:      p,
		decisionTopic: decisionTopic,
		tradeTopic:    tradeTopic,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (p *KafkaEventPublisher) PublishDecision(ctx context.Context, marketID string, d models.Decision) error {
	return p.producer.Publish(ctx, p.decisionTopic, []byte(marketID), DecisionMessage{
		MarketID:  marketID,
		Decision:  d,
		Timestamp: p.now(),
	})
}

func (p *KafkaEventPublisher) PublishTradeEvent(ctx context.Context, ev models.TradeEvent) error {
	var key []byte
	if ev.Trade != nil {
		key = []byte(ev.Trade.MarketID)
	}
	return p.producer.Publish(ctx, p.tradeTopic, key, ev)
}
