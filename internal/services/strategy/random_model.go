package strategy

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"PolyEdge/internal/domain/models"
	"PolyEdge/internal/domain/service"
)

const RandomModelName = "Random-Model"

// RandomModel guesses a direction and a confidence in [0.5, 0.9). Its edge
// is computed honestly but it never recommends a trade; it exists to show
// that chance predictions are not acted on.
type RandomModel struct {
	Base
	mu  sync.Mutex
	rng *rand.Rand
}

var _ service.Model = (*RandomModel)(nil)

// NewRandomModel uses rng for every draw. A nil rng is seeded from the clock.
func NewRandomModel(rng *rand.Rand, opts ...Option) (*RandomModel, error) {
	o := buildOptions(opts)
	base, err := newBase(RandomModelName, o.edgeThreshold(DefaultEdgeThreshold), o.clock)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomModel{Base: base, rng: rng}, nil
}

func (m *RandomModel) Evaluate(_ []models.Candle, quote models.MarketQuote, _ *int) models.EvaluationResult {
	if !m.ValidateQuote(quote) {
		return m.NoTrade("Invalid market prices")
	}

	m.mu.Lock()
	up := m.rng.Float64() > 0.5
	prob := 0.5 + m.rng.Float64()*0.4
	m.mu.Unlock()

	dir := models.DirectionDown
	if up {
		dir = models.DirectionUp
	}
	price, _ := quote.Price(dir)
	edge := m.CalculateEdge(dir, prob, quote)

	return m.Result(dir, prob, edge, false,
		fmt.Sprintf("Random: %s at %.1f%% vs market %.1f%%", dir, pct(prob), pct(price)))
}
