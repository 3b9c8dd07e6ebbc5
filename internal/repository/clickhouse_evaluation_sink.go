package repository

import (
	"context"
	"fmt"
	"strings"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	pkgch "PolyEdge/pkg/clickhouse"
)

const evaluationColumns = 10

// CHEvaluationSink archives model results to ClickHouse.
type CHEvaluationSink struct {
	ch    *pkgch.Client
	table string
}

var _ domrepo.EvaluationSink = (*CHEvaluationSink)(nil)

func NewCHEvaluationSink(ch *pkgch.Client, table string) *CHEvaluationSink {
	if table == "" {
		table = pkgch.EvaluationTable
	}
	return &CHEvaluationSink{ch: ch, table: table}
}

func (s *CHEvaluationSink) StoreResults(ctx context.Context, marketID string, quote models.MarketQuote, results []models.EvaluationResult) error {
	q, args := buildEvaluationInsert(s.table, marketID, quote, results)
	if q == "" {
		return nil
	}
	ctx, cancel := s.ch.WriteContext(ctx)
	defer cancel()
	if _, err := s.ch.DB().ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store evaluations: %w", err)
	}
	return nil
}

// buildEvaluationInsert renders one multi-row INSERT. Results without a
// model name are skipped.
func buildEvaluationInsert(table, marketID string, quote models.MarketQuote, results []models.EvaluationResult) (string, []interface{}) {
	values := make([]string, 0, len(results))
	args := make([]interface{}, 0, len(results)*evaluationColumns)
	for _, r := range results {
		if r.Model == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Timestamp,
			marketID,
			r.Model,
			string(r.Direction),
			r.Confidence,
			r.Edge,
			boolToUInt8(r.ShouldTrade),
			r.Reason,
			quote.Up,
			quote.Down,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, market_id, model, direction, confidence, edge, should_trade, reason, quote_up, quote_down) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
