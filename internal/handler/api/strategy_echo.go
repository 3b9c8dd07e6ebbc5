package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	"PolyEdge/internal/handler/ws"
	apimetrics "PolyEdge/internal/service/metrics"
	"PolyEdge/internal/usecase"
	xhttp "PolyEdge/pkg/http"
	"PolyEdge/pkg/cache"
	xlogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/queue"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// StrategyHandler serves evaluation, decision, trade and market endpoints.
type StrategyHandler struct {
	logger    *xlogger.Logger
	evaluator *usecase.StrategyEvaluator
	decider   usecase.Decider
	recorder  *usecase.TradeRecorder
	checker   *usecase.ResultChecker
	resolver  *usecase.MarketResolver
	markets   domrepo.MarketStore
	candles   *usecase.CandlesUseCase

	writer domrepo.MarketWriter
	jobs   queue.QueueService
	hub    *ws.Hub
	checks map[string]HealthCheck
	now    func() time.Time

	summaries  cache.Service
	summaryTTL time.Duration
}

const summaryCacheKey = "evaluation:summary"

type StrategyHandlerOption func(*StrategyHandler)

// WithMarketWriter enables market registration and snapshot endpoints.
func WithMarketWriter(w domrepo.MarketWriter) StrategyHandlerOption {
	return func(h *StrategyHandler) { h.writer = w }
}

// WithSettleQueue hands market resolutions to the job queue instead of
// settling inline.
func WithSettleQueue(q queue.QueueService) StrategyHandlerOption {
	return func(h *StrategyHandler) { h.jobs = q }
}

// WithDecisionFeed mounts the websocket decision feed.
func WithDecisionFeed(hub *ws.Hub) StrategyHandlerOption {
	return func(h *StrategyHandler) { h.hub = hub }
}

// WithSummaryCache shares the last evaluation summary through c so a
// restarted or sibling instance can still serve it.
func WithSummaryCache(c cache.Service, ttl time.Duration) StrategyHandlerOption {
	return func(h *StrategyHandler) {
		h.summaries = c
		h.summaryTTL = ttl
	}
}

func WithHealthCheck(name string, fn HealthCheck) StrategyHandlerOption {
	return func(h *StrategyHandler) { h.checks[name] = fn }
}

func NewStrategyHandler(
	logger *xlogger.Logger,
	evaluator *usecase.StrategyEvaluator,
	decider usecase.Decider,
	recorder *usecase.TradeRecorder,
	checker *usecase.ResultChecker,
	resolver *usecase.MarketResolver,
	markets domrepo.MarketStore,
	candles *usecase.CandlesUseCase,
	opts ...StrategyHandlerOption,
) *StrategyHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	h := &StrategyHandler{
		logger:    logger,
		evaluator: evaluator,
		decider:   decider,
		recorder:  recorder,
		checker:   checker,
		resolver:  resolver,
		markets:   markets,
		candles:   candles,
		checks:    make(map[string]HealthCheck),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ xhttp.Handler = (*StrategyHandler)(nil)

func (h *StrategyHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/models", h.Models)
	g.POST("/evaluate", h.Evaluate)
	g.POST("/decide", h.Decide)
	g.GET("/evaluation/summary", h.Summary)
	g.POST("/evaluation/compare", h.Compare)

	g.GET("/trades", h.TradesByModel)
	g.GET("/trades/pending", h.PendingTrades)
	g.GET("/trades/:id", h.Trade)
	g.POST("/trades/:id/settle", h.SettleTrade)

	g.GET("/markets", h.ActiveMarkets)
	g.GET("/markets/:id", h.Market)
	g.POST("/markets/:id/resolve", h.ResolveMarket)
	if h.writer != nil {
		g.POST("/markets", h.UpsertMarket)
		g.POST("/markets/:id/snapshots", h.AddSnapshot)
	}

	g.GET("/candles", h.Candles)

	if h.hub != nil {
		e.GET("/ws/decisions", h.hub.Handle)
	}
}

// observe records latency for endpoint and returns a func that counts a
// failure when called.
func (h *StrategyHandler) observe(endpoint string) (done func(), failed func()) {
	start := time.Now()
	return func() {
			apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}, func() {
			apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
}

// fail maps domain errors onto API errors.
func (h *StrategyHandler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, domrepo.ErrTradeNotFound), errors.Is(err, domrepo.ErrMarketNotFound):
		appErr = xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrInvalidCandleQuery):
		appErr = xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrDuplicateTrade), errors.Is(err, domrepo.ErrAlreadySettled):
		appErr = xhttp.ConflictError(err.Error()).WithError(err)
	default:
		h.logger.Error("strategy endpoint error",
			xlogger.String("endpoint", endpoint),
			xlogger.Error(err),
		)
		appErr = xhttp.InternalError("Something went wrong").WithError(err)
	}
	apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *StrategyHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{
		"models":       h.evaluator.ModelNames(),
		"dependencies": deps,
		"time":         h.now(),
	})
}

func (h *StrategyHandler) Models(c echo.Context) error {
	names := h.evaluator.ModelNames()
	return xhttp.ListResponse(c, names, int64(len(names)))
}

// Evaluate runs every registered model over the posted candles and quote.
func (h *StrategyHandler) Evaluate(c echo.Context) error {
	done, failed := h.observe("evaluate")
	defer done()

	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed()
		return xhttp.BadRequestResponse(c, verr)
	}
	quote := req.Quote()
	if !quote.Valid() {
		failed()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("up and down must be within [0, 1]"))
	}
	ctx := c.Request().Context()
	eval := h.evaluator.Evaluate(ctx, req.Candles, quote, req.RemainingMinutes)
	h.rememberSummary(ctx)
	return xhttp.SuccessResponse(c, eval)
}

type decideResponse struct {
	MarketID string              `json:"market_id,omitempty"`
	Decision models.Decision     `json:"decision"`
	Trade    *models.TradeRecord `json:"trade,omitempty"`
}

// Decide returns the sized decision for the posted market state and, when
// asked to, records it as a paper trade.
func (h *StrategyHandler) Decide(c echo.Context) error {
	done, failed := h.observe("decide")
	defer done()

	req := &models.DecideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed()
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Record && req.MarketID == "" {
		failed()
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUIRED", "market_id", "market_id is required to record a trade", http.StatusBadRequest))
	}

	ctx := c.Request().Context()
	dec := h.decider.Decide(ctx, req.Candles, req.Quote(), req.RemainingMinutes)
	resp := decideResponse{MarketID: req.MarketID, Decision: dec}
	h.rememberSummary(ctx)

	if req.Record && dec.ShouldTrade {
		exists, err := h.recorder.HasTradeForMarket(ctx, req.MarketID)
		if err != nil {
			return h.fail(c, "decide", err)
		}
		if exists {
			return h.fail(c, "decide", domrepo.ErrDuplicateTrade)
		}
		t, err := h.recorder.RecordTrade(ctx, req.MarketID, &dec)
		if err != nil {
			return h.fail(c, "decide", err)
		}
		resp.Trade = t
	}
	return xhttp.SuccessResponse(c, resp)
}

// Summary serves the local last evaluation, falling back to the shared
// cache when this instance has not evaluated anything yet.
func (h *StrategyHandler) Summary(c echo.Context) error {
	if h.evaluator.Last() == nil && h.summaries != nil {
		var cached models.EvaluationSummary
		err := h.summaries.Get(c.Request().Context(), summaryCacheKey, &cached)
		if err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("summary cache read failed", xlogger.Error(err))
		}
	}
	return xhttp.SuccessResponse(c, h.evaluator.Summary())
}

func (h *StrategyHandler) rememberSummary(ctx context.Context) {
	if h.summaries == nil {
		return
	}
	if err := h.summaries.Set(ctx, summaryCacheKey, h.evaluator.Summary(), h.summaryTTL); err != nil {
		h.logger.Warn("summary cache write failed", xlogger.Error(err))
	}
}

func (h *StrategyHandler) Compare(c echo.Context) error {
	req := &models.CompareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	actual, err := models.ParseDirection(req.Actual)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	rows := h.evaluator.CompareModels(actual)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StrategyHandler) PendingTrades(c echo.Context) error {
	trades, err := h.recorder.PendingTrades(c.Request().Context())
	if err != nil {
		return h.fail(c, "trades_pending", err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

func (h *StrategyHandler) TradesByModel(c echo.Context) error {
	req := &models.TradesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	trades, err := h.recorder.TradesByModel(c.Request().Context(), req.Model, req.Limit)
	if err != nil {
		return h.fail(c, "trades_by_model", err)
	}
	return xhttp.ListResponse(c, trades, int64(len(trades)))
}

func (h *StrategyHandler) Trade(c echo.Context) error {
	req := &models.TradeIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t, err := h.recorder.Trade(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "trade", err)
	}
	return xhttp.SuccessResponse(c, t)
}

// SettleTrade settles one trade against an explicit outcome.
func (h *StrategyHandler) SettleTrade(c echo.Context) error {
	done, failed := h.observe("settle")
	defer done()

	req := &models.SettleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed()
		return xhttp.BadRequestResponse(c, verr)
	}
	outcome, err := models.ParseDirection(req.Outcome)
	if err != nil {
		failed()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}

	ctx := c.Request().Context()
	t, err := h.recorder.Trade(ctx, req.ID)
	if err != nil {
		return h.fail(c, "settle", err)
	}
	s, err := h.checker.CheckAndUpdate(ctx, t, outcome)
	if err != nil {
		return h.fail(c, "settle", err)
	}
	if s == nil {
		return h.fail(c, "settle", domrepo.ErrAlreadySettled)
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *StrategyHandler) ActiveMarkets(c echo.Context) error {
	ms, err := h.markets.Active(c.Request().Context())
	if err != nil {
		return h.fail(c, "markets", err)
	}
	return xhttp.ListResponse(c, ms, int64(len(ms)))
}

type marketResponse struct {
	Market   *models.Market         `json:"market"`
	Snapshot *models.MarketSnapshot `json:"snapshot,omitempty"`
}

func (h *StrategyHandler) Market(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	m, err := h.markets.Get(ctx, id)
	if err != nil {
		return h.fail(c, "market", err)
	}
	snap, err := h.markets.LatestSnapshot(ctx, id)
	if err != nil {
		return h.fail(c, "market", err)
	}
	return xhttp.SuccessResponse(c, marketResponse{Market: m, Snapshot: snap})
}

func (h *StrategyHandler) UpsertMarket(c echo.Context) error {
	req := &models.UpsertMarketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	m := req.Market(h.now())
	if err := h.writer.UpsertMarket(c.Request().Context(), m); err != nil {
		return h.fail(c, "market_upsert", err)
	}
	return xhttp.CreatedResponse(c, m)
}

func (h *StrategyHandler) AddSnapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Up == nil && req.Down == nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("up or down is required"))
	}
	snap := &models.MarketSnapshot{
		MarketID:             req.MarketID,
		Up:                   req.Up,
		Down:                 req.Down,
		TimeRemainingSeconds: req.TimeRemainingSeconds,
		Timestamp:            h.now(),
	}
	if err := h.writer.AddSnapshot(c.Request().Context(), snap); err != nil {
		return h.fail(c, "market_snapshot", err)
	}
	return xhttp.CreatedResponse(c, snap)
}

type resolveResponse struct {
	MarketID string           `json:"market_id"`
	Outcome  models.Direction `json:"outcome"`
	Queued   bool             `json:"queued"`
	Settled  int              `json:"settled"`
}

// ResolveMarket records a market outcome and settles its trades, either
// inline or through the settle job queue.
func (h *StrategyHandler) ResolveMarket(c echo.Context) error {
	done, failed := h.observe("resolve")
	defer done()

	req := &models.ResolveMarketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		failed()
		return xhttp.BadRequestResponse(c, verr)
	}
	outcome, err := models.ParseDirection(req.Outcome)
	if err != nil {
		failed()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	ctx := c.Request().Context()
	resp := resolveResponse{MarketID: req.MarketID, Outcome: outcome}

	if h.jobs != nil {
		res := models.MarketResolution{MarketID: req.MarketID, Outcome: outcome}
		if err := h.jobs.PublishMessage(ctx, usecase.SettleMarketJobType, res); err != nil {
			return h.fail(c, "resolve", err)
		}
		resp.Queued = true
		return xhttp.AcceptedResponse(c, resp)
	}

	n, err := h.resolver.ResolveMarket(ctx, req.MarketID, outcome)
	resp.Settled = n
	if err != nil {
		return h.fail(c, "resolve", err)
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *StrategyHandler) Candles(c echo.Context) error {
	req := &models.CandlesQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.Interval),
		Limit:     req.N,
	}
	rng := xhttp.ParseTimeRange(req.From, req.To)
	if rng.From != nil {
		p.From = *rng.From
	}
	if rng.To != nil {
		p.To = *rng.To
	}
	res, err := h.candles.GetCandles(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, "candles", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}
