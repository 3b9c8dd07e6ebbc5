package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"PolyEdge/pkg/logger"
)

// promoteScript moves due retries back onto the pending list atomically so
// two instances never both re-enqueue the same message.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call("ZREM", KEYS[1], m)
	redis.call("LPUSH", KEYS[2], m)
end
return #due`)

const (
	popTimeout   = time.Second
	promoteEvery = time.Second
	promoteBatch = 100
)

// envelope is the stored form of a Message. The payload stays raw until a
// job parses it.
type envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// RedisQueue is a reliable list queue. Workers BLMOVE messages from the
// pending list into this instance's processing list and remove them once
// handled, so a crash leaves them recoverable on the next Start. Failed
// messages wait in a sorted set scored by retry time and end on the
// dead-letter list once RetryLimit is spent.
//
// Keys: <prefix>:pending, <prefix>:processing:<consumer>, <prefix>:retry,
// <prefix>:dead.
type RedisQueue struct {
	logger   *logger.Logger
	config   QueueConfig
	client   *redis.Client
	prefix   string
	consumer string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var (
	_ Consumer     = (*RedisQueue)(nil)
	_ QueueService = (*RedisQueue)(nil)
)

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces the queue keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithConsumerName names this instance's processing list. It must be stable
// across restarts for in-flight recovery; the hostname is the default.
func WithConsumerName(name string) RedisQueueOption {
	return func(r *RedisQueue) {
		if name != "" {
			r.consumer = name
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.normalize()
	if lgr == nil {
		lgr = logger.NewNop()
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}

	r := &RedisQueue{
		logger:   lgr,
		config:   cfg,
		client:   client,
		prefix:   "polyedge:queue",
		consumer: host,
		jobs:     make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisQueue) pendingKey() string    { return r.prefix + ":pending" }
func (r *RedisQueue) processingKey() string { return r.prefix + ":processing:" + r.consumer }
func (r *RedisQueue) retryKey() string      { return r.prefix + ":retry" }
func (r *RedisQueue) deadKey() string       { return r.prefix + ":dead" }

func (r *RedisQueue) RegisterJobs(jobs []Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, dup := r.jobs[job.Type()]; dup {
			r.logger.Warn("job already registered", logger.String("job", job.Name()))
			continue
		}
		r.jobs[job.Type()] = job
	}
}

// Start recovers messages left in this consumer's processing list, then
// launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	recovered, err := r.recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight messages: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.work(runCtx)
	}
	r.wg.Add(1)
	go r.promote(runCtx)

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("consumer", r.consumer),
		logger.Int("recovered", recovered),
	)
	return nil
}

func (r *RedisQueue) recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processingKey(), r.pendingKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Stop cancels the workers and waits for in-flight jobs. A job cut short
// stays on the processing list and is recovered by the next Start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop redis queue: %w", ctx.Err())
	}
}

// PublishMessage enqueues a message for a registered job type.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrNoJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.LPush(ctx, r.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	return nil
}

func (r *RedisQueue) work(ctx context.Context) {
	defer r.wg.Done()
	for ctx.Err() == nil {
		raw, err := r.client.BLMove(ctx, r.pendingKey(), r.processingKey(), "RIGHT", "LEFT", popTimeout).Result()
		switch {
		case errors.Is(err, redis.Nil), ctx.Err() != nil:
			continue
		case err != nil:
			r.logger.Error("queue pop failed", logger.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		r.handle(ctx, raw)
		// ack with a fresh context so a stop mid-job still clears it
		if err := r.client.LRem(context.Background(), r.processingKey(), 1, raw).Err(); err != nil {
			r.logger.Error("queue ack failed", logger.Error(err))
		}
	}
}

func (r *RedisQueue) handle(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Error("undecodable queue message", logger.Error(err))
		r.bury(raw)
		return
	}
	r.mu.RLock()
	job, ok := r.jobs[env.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", env.Type), logger.String("id", env.ID))
		r.bury(raw)
		return
	}

	err := runJob(ctx, job, env.Payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// shutdown: requeue without spending an attempt
		r.schedule(env, time.Now())
		return
	}

	r.logger.Error("queue job failed",
		logger.String("id", env.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", env.Attempts+1),
		logger.Error(err),
	)
	if env.Attempts >= r.config.RetryLimit {
		data, _ := json.Marshal(env)
		r.bury(string(data))
		return
	}
	env.Attempts++
	r.schedule(env, time.Now().Add(r.config.RetryDelay))
}

func (r *RedisQueue) schedule(env envelope, at time.Time) {
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("encode retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(at.UnixMilli()), Member: data}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), z).Err(); err != nil {
		r.logger.Error("schedule retry failed", logger.String("id", env.ID), logger.Error(err))
	}
}

func (r *RedisQueue) bury(raw string) {
	if err := r.client.LPush(context.Background(), r.deadKey(), raw).Err(); err != nil {
		r.logger.Error("dead-letter failed", logger.Error(err))
	}
}

func (r *RedisQueue) promote(ctx context.Context) {
	defer r.wg.Done()
	t := time.NewTicker(promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			keys := []string{r.retryKey(), r.pendingKey()}
			if err := promoteScript.Run(ctx, r.client, keys, now, promoteBatch).Err(); err != nil && ctx.Err() == nil {
				r.logger.Error("promote retries failed", logger.Error(err))
			}
		}
	}
}

// Stats reports the pending, retrying and dead-lettered message counts.
func (r *RedisQueue) Stats(ctx context.Context) (pending, retrying, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.pendingKey())
	rt := pipe.ZCard(ctx, r.retryKey())
	d := pipe.LLen(ctx, r.deadKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue stats: %w", err)
	}
	return p.Val(), rt.Val(), d.Val(), nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
