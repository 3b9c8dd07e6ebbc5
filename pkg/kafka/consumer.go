package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	applogger "PolyEdge/pkg/logger"
)

var (
	ErrNoBrokers  = errors.New("kafka: brokers are required")
	ErrNoHandlers = errors.New("kafka: no handlers registered")
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type commitFunc func(ctx context.Context, msgs ...kafka.Message) error

// fetched is a message waiting for its lane worker, with the reader that
// owns its offset.
type fetched struct {
	km     kafka.Message
	commit commitFunc
}

// Consumer reads registered topics inside one consumer group. Each
// (topic, partition) is pinned to a single lane so a partition is handled
// in offset order; offsets are committed only after the handler succeeds or
// the message has been dead-lettered.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *applogger.Logger
	metrics  *clientMetrics
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      messageWriter

	readers  []*kafka.Reader
	lanes    []chan fetched
	cancel   context.CancelFunc
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := defaultConsumerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	c := &Consumer{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  sharedMetrics(),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return c, nil
}

// WithConsumerHook sets the hook run around every handler call.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler subscribes handler.Topic(). The first handler registered
// for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka consumer: handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return ErrNoHandlers
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.lanes = make([]chan fetched, c.cfg.Workers)
	for i := range c.lanes {
		c.lanes[i] = make(chan fetched, c.cfg.BufferSize)
		c.workers.Add(1)
		go c.work(ctx, i)
	}

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: startOffset(c.cfg.StartOffset),
		})
		c.readers = append(c.readers, r)
		c.fetchers.Add(1)
		go c.fetch(ctx, r)
	}

	c.log.Info("kafka consumer: started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.handlers)),
		applogger.Int("workers", c.cfg.Workers))
	return nil
}

// Stop cancels fetching, lets in-flight handlers finish and closes the
// readers. Messages still buffered in a lane are left uncommitted.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			return
		}
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.fetchers.Wait()
			for _, lane := range c.lanes {
				close(lane)
			}
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("kafka consumer: wait for workers: %w", ctx.Err())
		}

		for _, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("kafka consumer: close reader", applogger.String("topic", r.Config().Topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka consumer: close dlq writer", applogger.Error(err))
			}
		}
		c.log.Info("kafka consumer: stopped")
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, r *kafka.Reader) {
	defer c.fetchers.Done()
	topic := r.Config().Topic
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("kafka consumer: fetch", applogger.String("topic", topic), applogger.Error(err))
			if sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}

		i := laneFor(km.Topic, km.Partition, len(c.lanes))
		select {
		case c.lanes[i] <- fetched{km: km, commit: r.CommitMessages}:
			c.metrics.backlog.WithLabelValues(strconv.Itoa(i)).Set(float64(len(c.lanes[i])))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane int) {
	defer c.workers.Done()
	for f := range c.lanes[lane] {
		if ctx.Err() != nil {
			continue
		}
		c.process(ctx, f)
	}
}

// process runs the handler with retries, then dead-letters and commits.
func (c *Consumer) process(ctx context.Context, f fetched) {
	start := time.Now()
	topic := f.km.Topic
	outcome := "ok"

	h, ok := c.handlers[topic]
	if !ok {
		c.log.Warn("kafka consumer: no handler", applogger.String("topic", topic))
		outcome = "failed"
	} else if err := c.handle(ctx, h, f.km); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.log.Error("kafka consumer: giving up on message",
			applogger.String("topic", topic),
			applogger.Int("partition", f.km.Partition),
			applogger.Int64("offset", f.km.Offset),
			applogger.Error(err))
		outcome = "failed"
		if c.dlq != nil {
			if derr := c.deadLetter(ctx, f.km, err); derr != nil {
				c.log.Error("kafka consumer: write dlq", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(derr))
				return
			}
			outcome = "dead_lettered"
		}
	}

	if err := c.commitWithRetry(ctx, f, 3); err != nil {
		c.log.Error("kafka consumer: commit offset",
			applogger.String("topic", topic),
			applogger.Int64("offset", f.km.Offset),
			applogger.Error(err))
	}
	c.metrics.consumed.WithLabelValues(topic, outcome).Inc()
	c.metrics.handleTime.WithLabelValues(topic).Observe(time.Since(start).Seconds())
}

// handle calls h up to RetryMax+1 times. A hook rejection is final.
func (c *Consumer) handle(ctx context.Context, h MessageHandler, km kafka.Message) error {
	for attempt := 1; ; attempt++ {
		hctx, hkm, data, err := c.hook.BeforeHandle(ctx, km.Topic, km, km.Value)
		if err != nil {
			return err
		}
		err = callHandler(hctx, h, data)
		c.hook.AfterHandle(hctx, km.Topic, hkm, data, err)
		if err == nil {
			return nil
		}
		c.hook.OnError(hctx, km.Topic, hkm, data, err)
		if attempt > c.cfg.RetryMax {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		if serr := sleep(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)); serr != nil {
			return serr
		}
	}
}

func callHandler(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(ctx context.Context, km kafka.Message, cause error) error {
	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     km.Key,
		Value:   km.Value,
		Time:    time.Now(),
		Headers: dlqHeaders(km, cause),
	})
}

func (c *Consumer) commitWithRetry(ctx context.Context, f fetched, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = f.commit(cctx, f.km)
		cancel()
		if err == nil {
			return nil
		}
		if sleep(ctx, backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt)) != nil {
			break
		}
	}
	return err
}

func dlqHeaders(km kafka.Message, err error) []kafka.Header {
	h := []kafka.Header{
		{Key: "source_topic", Value: []byte(km.Topic)},
		{Key: "source_partition", Value: []byte(strconv.Itoa(km.Partition))},
		{Key: "source_offset", Value: []byte(strconv.FormatInt(km.Offset, 10))},
		{Key: "error", Value: []byte(err.Error())},
	}
	if tid := headerValue(km, HeaderTraceID); tid != "" {
		h = append(h, kafka.Header{Key: HeaderTraceID, Value: []byte(tid)})
	}
	return h
}

func laneFor(topic string, partition, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	f := fnv.New32a()
	f.Write([]byte(topic))
	f.Write([]byte{byte(partition >> 24), byte(partition >> 16), byte(partition >> 8), byte(partition)})
	return int(f.Sum32() % uint32(lanes))
}

func startOffset(s string) int64 {
	if s == "latest" {
		return kafka.LastOffset
	}
	return kafka.FirstOffset
}

// backoffWithJitter doubles from min per attempt, capped at max, and takes
// off up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
