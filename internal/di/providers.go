package di

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	domsvc "PolyEdge/internal/domain/service"
	"PolyEdge/internal/handler/api"
	"PolyEdge/internal/handler/ws"
	mid "PolyEdge/internal/middleware"
	internalrepo "PolyEdge/internal/repository"
	"PolyEdge/internal/service/ratelimit"
	"PolyEdge/internal/services/strategy"
	"PolyEdge/internal/usecase"
	"PolyEdge/pkg/cache"
	pkgch "PolyEdge/pkg/clickhouse"
	"PolyEdge/pkg/config"
	xhttp "PolyEdge/pkg/http"
	httpmw "PolyEdge/pkg/http/middleware"
	pkgkafka "PolyEdge/pkg/kafka"
	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/metrics"
	"PolyEdge/pkg/queue"
	"PolyEdge/pkg/server"
	pkgsqlite "PolyEdge/pkg/sqlite"
	"PolyEdge/pkg/tracing"
)

// ErrNoCandleSource is returned by candle reads when ClickHouse is disabled.
var ErrNoCandleSource = errors.New("no candle source configured")

const summaryTTL = 24 * time.Hour

func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideTracing(cfg *config.Config) (*tracing.Provider, error) {
	p, err := tracing.Init(cfg.Tracing, nil)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	return p, nil
}

// ProvideMetrics returns the Prometheus recorder, or a no-op when metrics
// are disabled.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

func ProvideSQLiteClient(cfg *config.Config) (*pkgsqlite.Client, error) {
	client, err := pkgsqlite.NewClient(
		pkgsqlite.WithPath(cfg.SQLite.Path),
		pkgsqlite.WithBusyTimeout(cfg.SQLite.BusyTimeout),
		pkgsqlite.WithMaxOpenConns(cfg.SQLite.MaxOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite client: %w", err)
	}
	return client, nil
}

// ProvideTradeStore creates the paper trade store and its schema.
func ProvideTradeStore(client *pkgsqlite.Client) (*internalrepo.SQLiteTradeStore, error) {
	store := internalrepo.NewSQLiteTradeStore(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return store, nil
}

// ProvideMarketStore depends on the trade store so the shared schema exists
// before any market query.
func ProvideMarketStore(client *pkgsqlite.Client, _ *internalrepo.SQLiteTradeStore) *internalrepo.SQLiteMarketStore {
	return internalrepo.NewSQLiteMarketStore(client)
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, cfg.Redis.Timeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or uses memory only.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc)
}

// ProvideClickHouseClient connects and applies the schema when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

type noCandleSource struct{}

func (noCandleSource) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return nil, ErrNoCandleSource
}

func (noCandleSource) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return nil, ErrNoCandleSource
}

// ProvideCandleStore reads candles from ClickHouse through the short-lived
// latest-window cache.
func ProvideCandleStore(cfg *config.Config, ch *pkgch.Client, c cache.Service, l *applogger.Logger) domrepo.CandleStore {
	if ch == nil {
		return noCandleSource{}
	}
	store := internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.CandleTable)
	store.SetLogger(l)
	return internalrepo.NewCachedCandleStore(store, c, cfg.ClickHouse.CandleCacheTTL, l)
}

func ProvideEvaluationSink(cfg *config.Config, ch *pkgch.Client) domrepo.EvaluationSink {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHEvaluationSink(ch, cfg.ClickHouse.EvaluationTable)
}

// ProvideKafkaProducer creates the producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(p.Compression),
		pkgkafka.WithRequiredAcks(p.RequiredAcks),
		pkgkafka.WithBatchSize(p.BatchSize),
		pkgkafka.WithBatchBytes(p.BatchBytes),
		pkgkafka.WithBatchTimeout(p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithAsync(p.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogCollector ships aggregated error logs to Kafka. It returns
// false when collection is off or Kafka is unavailable.
func ProvideLogCollector(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) bool {
	if !cfg.Collector.Enabled || producer == nil {
		return false
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Collector.Interval,
		CountThreshold: cfg.Collector.Threshold,
		Topic:          cfg.Kafka.Topics.Logs,
		Publisher:      producer,
	})
	return true
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvidePublishPipeline fronts the Kafka publisher; nil without Kafka.
func ProvidePublishPipeline(cfg *config.Config, producer *pkgkafka.Producer, m domrepo.Metrics) *mid.PublishPipeline {
	if producer == nil {
		return nil
	}
	kp := internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Decisions, cfg.Kafka.Topics.Trades)
	return mid.NewPublishPipeline(kp, m,
		mid.WithMaxRPS(cfg.Kafka.PipelineMaxRPS),
		mid.WithBufferSize(cfg.Kafka.PipelineBuffer),
	)
}

// ProvideEventPublisher fans events out to the websocket feed and, when
// configured, the Kafka pipeline.
func ProvideEventPublisher(pipeline *mid.PublishPipeline, hub *ws.Hub) domrepo.EventPublisher {
	if pipeline == nil {
		return internalrepo.NewFanOutPublisher(hub)
	}
	return internalrepo.NewFanOutPublisher(pipeline, hub)
}

// ProvideModels builds the registered models in evaluation order. Order
// matters: recommendation ties go to the earlier model.
func ProvideModels(cfg *config.Config) ([]domsvc.Model, error) {
	s := cfg.Strategy
	ta := strategy.TAConfig{
		EdgeThreshold: s.EdgeThreshold,
		RSIPeriod:     s.RSIPeriod,
		RSIOverbought: s.RSIOverbought,
		RSIOversold:   s.RSIOversold,
		MinCandles:    s.MinCandles,
		MinConfluence: s.MinConfluence,
		Weights: strategy.Weights{
			RSI:        s.Weights.RSI,
			MACD:       s.Weights.MACD,
			VWAP:       s.Weights.VWAP,
			HeikenAshi: s.Weights.HeikenAshi,
			Regime:     s.Weights.Regime,
		},
	}
	taModel, err := strategy.NewTAModel(strategy.WithTAConfig(ta))
	if err != nil {
		return nil, fmt.Errorf("ta model: %w", err)
	}
	out := []domsvc.Model{taModel}

	if s.IncludeBaseline {
		b, err := strategy.NewBaselineModel(strategy.WithEdgeThreshold(s.EdgeThreshold))
		if err != nil {
			return nil, fmt.Errorf("baseline model: %w", err)
		}
		out = append(out, b)
	}
	if s.IncludeRandom {
		var rng *rand.Rand
		if s.RandomSeed != 0 {
			rng = rand.New(rand.NewSource(s.RandomSeed))
		}
		r, err := strategy.NewRandomModel(rng, strategy.WithEdgeThreshold(s.EdgeThreshold))
		if err != nil {
			return nil, fmt.Errorf("random model: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func ProvideEvaluator(ms []domsvc.Model, m domrepo.Metrics, l *applogger.Logger) *usecase.StrategyEvaluator {
	return usecase.NewStrategyEvaluator(ms,
		usecase.WithEvaluatorMetrics(m),
		usecase.WithEvaluatorLogger(l),
	)
}

func ProvideDecisionEngine(cfg *config.Config, e *usecase.StrategyEvaluator, m domrepo.Metrics, l *applogger.Logger) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(usecase.EngineConfig{
		MinEdge:  cfg.Engine.MinEdge,
		MaxStake: cfg.Engine.MaxStake,
		Bankroll: cfg.Engine.Bankroll,
	}, e, m, l)
}

// ProvideDecider wraps the engine with a span and a completion log.
func ProvideDecider(engine *usecase.DecisionEngine, tp *tracing.Provider, l *applogger.Logger) usecase.Decider {
	return usecase.ObserveDecider(engine, tp.Tracer(), l)
}

func ProvideTradeRecorder(store *internalrepo.SQLiteTradeStore, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *usecase.TradeRecorder {
	return usecase.NewTradeRecorder(store, pub, m, l)
}

func ProvideResultChecker(store *internalrepo.SQLiteTradeStore, pub domrepo.EventPublisher, m domrepo.Metrics, l *applogger.Logger) *usecase.ResultChecker {
	return usecase.NewResultChecker(store, pub, m, l)
}

func ProvideMarketResolver(markets *internalrepo.SQLiteMarketStore, checker *usecase.ResultChecker, l *applogger.Logger) *usecase.MarketResolver {
	return usecase.NewMarketResolver(markets, checker, l)
}

func ProvideCandlesUseCase(store domrepo.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

// ProvideJobQueue builds the settlement queue; nil when disabled.
func ProvideJobQueue(cfg *config.Config, l *applogger.Logger, rc *cache.RedisCache, resolver *usecase.MarketResolver) queue.Consumer {
	if !cfg.Queue.Enabled {
		return nil
	}
	qc := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	jobs := []queue.Job{usecase.NewSettleMarketJob(resolver)}
	if cfg.Queue.Backend == "memory" || rc == nil {
		return queue.NewMemoryQueue(l, qc, jobs...)
	}
	q := queue.NewRedisQueue(l, qc, rc.Client(),
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJobs(jobs)
	return q
}

// ProvideKafkaConsumer subscribes to market resolutions; nil without Kafka.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, tp *tracing.Provider, resolver *usecase.MarketResolver, m domrepo.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerStartOffset(c.StartOffset),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.NewTracingHook(tp.Tracer()),
		pkgkafka.NewLoggingHook(l, 2*time.Second),
	))
	consumer.RegisterHandler(usecase.NewResolutionHandler(cfg.Kafka.Topics.Resolutions, resolver, m))
	return consumer, nil
}

// ProvidePaperTrader returns nil when paper trading is off or no candle
// source is configured.
func ProvidePaperTrader(
	cfg *config.Config,
	markets *internalrepo.SQLiteMarketStore,
	candles domrepo.CandleStore,
	decider usecase.Decider,
	recorder *usecase.TradeRecorder,
	resolver *usecase.MarketResolver,
	sink domrepo.EvaluationSink,
	pub domrepo.EventPublisher,
	c cache.Service,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.PaperTrader {
	if !cfg.Paper.Enabled {
		return nil
	}
	if _, ok := candles.(noCandleSource); ok {
		l.Warn("paper trader disabled: clickhouse is not enabled")
		return nil
	}
	specs := make([]usecase.MarketSpec, 0, len(cfg.Paper.Markets))
	for _, pm := range cfg.Paper.Markets {
		specs = append(specs, usecase.MarketSpec{
			Name:           pm.Name,
			Asset:          pm.Asset,
			CandleInterval: domrepo.Timeframe(pm.CandleInterval),
		})
	}
	opts := []usecase.PaperTraderOption{
		usecase.WithDecisionPublisher(pub),
		usecase.WithMarketLock(internalrepo.NewCacheMarketLock(c)),
		usecase.WithPaperTraderMetrics(m),
		usecase.WithPaperTraderLogger(l),
	}
	if sink != nil {
		opts = append(opts, usecase.WithEvaluationSink(sink))
	}
	return usecase.NewPaperTrader(usecase.PaperTraderConfig{
		PollInterval: cfg.Paper.PollInterval,
		CandleLimit:  cfg.Paper.CandleLimit,
		LockTTL:      cfg.Paper.LockTTL,
		Markets:      specs,
	}, markets, candles, decider, recorder, resolver, opts...)
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHandler assembles the HTTP API and its health checks.
func ProvideHandler(
	l *applogger.Logger,
	evaluator *usecase.StrategyEvaluator,
	decider usecase.Decider,
	recorder *usecase.TradeRecorder,
	checker *usecase.ResultChecker,
	resolver *usecase.MarketResolver,
	markets *internalrepo.SQLiteMarketStore,
	candles *usecase.CandlesUseCase,
	sqlite *pkgsqlite.Client,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	c cache.Service,
	jobs queue.Consumer,
	hub *ws.Hub,
) *api.StrategyHandler {
	opts := []api.StrategyHandlerOption{
		api.WithMarketWriter(markets),
		api.WithDecisionFeed(hub),
		api.WithSummaryCache(c, summaryTTL),
		api.WithHealthCheck("sqlite", sqlite.Health),
	}
	if jobs != nil {
		opts = append(opts, api.WithSettleQueue(jobs))
	}
	if ch != nil {
		opts = append(opts, api.WithHealthCheck("clickhouse", ch.Health))
	}
	if rc != nil {
		client := rc.Client()
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if rq, ok := jobs.(*queue.RedisQueue); ok {
		opts = append(opts, api.WithHealthCheck("queue", func(ctx context.Context) error {
			_, _, _, err := rq.Stats(ctx)
			return err
		}))
	}
	return api.NewStrategyHandler(l, evaluator, decider, recorder, checker, resolver, markets, candles, opts...)
}

func ProvideHTTPServer(cfg *config.Config, h *api.StrategyHandler, l *applogger.Logger, tp *tracing.Provider, limiter *ratelimit.Limiter) *xhttp.Server {
	srv := xhttp.NewServer(h, l, xhttp.WithConfig(cfg.Server))
	srv.Use(httpmw.Tracing(tp.Tracer()))
	srv.Use(ratelimit.Middleware(limiter, ratelimit.Config{
		Enabled:  cfg.RateLimit.Enabled,
		Capacity: cfg.RateLimit.Capacity,
		Refill:   cfg.RateLimit.Refill,
	}, ratelimit.ClientRouteKey))
	return srv
}

// Components groups the long-running pieces and owned resources handed to
// the App.
type Components struct {
	HTTP      *xhttp.Server
	Paper     *usecase.PaperTrader
	Pipeline  *mid.PublishPipeline
	Jobs      queue.Consumer
	Consumer  *pkgkafka.Consumer
	Producer  *pkgkafka.Producer
	Hub       *ws.Hub
	Limiter   *ratelimit.Limiter
	Tracing   *tracing.Provider
	SQLite    *pkgsqlite.Client
	Click     *pkgch.Client
	Redis     *cache.RedisCache
	Cache     cache.Service
	Collector bool
}

// ProvideApp registers services in start order: outbound plumbing first,
// then inbound traffic.
func ProvideApp(cfg *config.Config, l *applogger.Logger, c Components) *server.App {
	app := server.New(l, server.WithShutdownTimeout(cfg.Server.ShutdownTimeout))

	if c.Pipeline != nil {
		p := c.Pipeline
		app.Add(server.Func{
			ServiceName: "publish-pipeline",
			OnStart:     func(ctx context.Context) error { p.Start(ctx); return nil },
			OnStop:      func(context.Context) error { p.Stop(); return nil },
		})
	}
	if c.Jobs != nil {
		jobs := c.Jobs
		app.Add(server.Func{
			ServiceName: "settle-queue",
			OnStart:     func(context.Context) error { return jobs.Start() },
			OnStop:      jobs.Stop,
		})
	}
	if c.Consumer != nil {
		consumer := c.Consumer
		app.Add(server.Func{
			ServiceName: "kafka-consumer",
			OnStart:     func(context.Context) error { return consumer.Start() },
			OnStop:      consumer.Stop,
		})
	}
	if c.Paper != nil {
		app.Add(server.Loop("paper-trader", c.Paper.Run, l))
	}
	limiter := c.Limiter
	app.Add(server.Loop("ratelimit-prune", func(ctx context.Context) error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				limiter.Prune(10 * time.Minute)
			}
		}
	}, l))
	app.Add(server.HTTP(c.HTTP))

	app.OnClose("sqlite", c.SQLite.Close)
	if c.Click != nil {
		app.OnClose("clickhouse", c.Click.Close)
	}
	if c.Redis != nil {
		app.OnClose("redis", c.Redis.Close)
	}
	if closer, ok := c.Cache.(interface{ Close() error }); ok {
		app.OnClose("cache", closer.Close)
	}
	if c.Producer != nil {
		app.OnClose("kafka-producer", c.Producer.Close)
	}
	if c.Collector {
		app.OnClose("log-collector", func() error { l.RemoveCollector(); return nil })
	}
	app.OnClose("decision-feed", func() error { c.Hub.Close(); return nil })
	tp := c.Tracing
	app.OnClose("tracing", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return app
}
