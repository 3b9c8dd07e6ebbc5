package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"PolyEdge/internal/domain/models"
	domrepo "PolyEdge/internal/domain/repository"
	pkgsqlite "PolyEdge/pkg/sqlite"
)

const tradeColumns = `id, market_id, model_name, direction, entry_price, shares, stake,
	model_confidence, model_edge, indicators_json, outcome, pnl, exit_price, resolved_at, created_at`

// SQLiteTradeStore implements TradeStore on SQLite.
type SQLiteTradeStore struct {
	client *pkgsqlite.Client
	db     *sql.DB
}

var _ domrepo.TradeStore = (*SQLiteTradeStore)(nil)

func NewSQLiteTradeStore(client *pkgsqlite.Client) *SQLiteTradeStore {
	return &SQLiteTradeStore{client: client, db: client.DB()}
}

func (s *SQLiteTradeStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SQLiteSchema)
}

func (s *SQLiteTradeStore) Insert(ctx context.Context, t *models.TradeRecord) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("trade is nil")
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_trades (market_id, model_name, direction, entry_price, shares, stake,
			model_confidence, model_edge, indicators_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.MarketID, t.ModelName, string(t.Direction), t.EntryPrice, t.Shares, t.Stake,
		t.ModelConfidence, t.ModelEdge, t.IndicatorsJSON, created.UTC().Format(sqliteTime),
	)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteTradeStore) Get(ctx context.Context, id int64) (*models.TradeRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM paper_trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrTradeNotFound
	}
	return t, err
}

func (s *SQLiteTradeStore) Settle(ctx context.Context, st models.Settlement) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE paper_trades
		SET outcome = ?, pnl = ?, exit_price = ?, resolved_at = ?
		WHERE id = ? AND outcome IS NULL`,
		string(st.Outcome), st.PnL, st.ExitPrice, st.ResolvedAt.UTC().Format(sqliteTime), st.TradeID,
	)
	if err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM paper_trades WHERE id = ?`, st.TradeID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrTradeNotFound
	}
	if err != nil {
		return fmt.Errorf("settle trade: %w", err)
	}
	return domrepo.ErrAlreadySettled
}

func (s *SQLiteTradeStore) Pending(ctx context.Context) ([]*models.TradeRecord, error) {
	return s.query(ctx, `SELECT `+tradeColumns+` FROM paper_trades WHERE outcome IS NULL ORDER BY id ASC`)
}

// ByModel returns the model's trades newest first. limit <= 0 means all.
func (s *SQLiteTradeStore) ByModel(ctx context.Context, model string, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.query(ctx, `SELECT `+tradeColumns+` FROM paper_trades
		WHERE model_name = ? ORDER BY created_at DESC, id DESC LIMIT ?`, model, limit)
}

func (s *SQLiteTradeStore) ExistsForMarket(ctx context.Context, marketID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM paper_trades WHERE market_id = ? LIMIT 1`, marketID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("trade exists: %w", err)
	}
	return true, nil
}

// Close is a no-op; the client owns the pool.
func (s *SQLiteTradeStore) Close() error { return nil }

func (s *SQLiteTradeStore) query(ctx context.Context, q string, args ...interface{}) ([]*models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	out := make([]*models.TradeRecord, 0, 16)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(r rowScanner) (*models.TradeRecord, error) {
	var (
		t                     models.TradeRecord
		direction             string
		conf, edge            sql.NullFloat64
		indicators, outcome   sql.NullString
		pnl, exit             sql.NullFloat64
		resolvedAt, createdAt sql.NullString
	)
	if err := r.Scan(&t.ID, &t.MarketID, &t.ModelName, &direction, &t.EntryPrice, &t.Shares, &t.Stake,
		&conf, &edge, &indicators, &outcome, &pnl, &exit, &resolvedAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan trade: %w", err)
	}
	t.Direction = models.Direction(direction)
	t.ModelConfidence = conf.Float64
	t.ModelEdge = edge.Float64
	if indicators.Valid {
		s := indicators.String
		t.IndicatorsJSON = &s
	}
	if outcome.Valid {
		o := models.TradeOutcome(outcome.String)
		t.Outcome = &o
	}
	if pnl.Valid {
		v := pnl.Float64
		t.PnL = &v
	}
	if exit.Valid {
		v := exit.Float64
		t.ExitPrice = &v
	}
	t.ResolvedAt = parseTimePtr(resolvedAt)
	if ts := parseTimePtr(createdAt); ts != nil {
		t.CreatedAt = *ts
	}
	return &t, nil
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	for _, layout := range []string{sqliteTime, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s.String); err == nil {
			ts = ts.UTC()
			return &ts
		}
	}
	return nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTime)
}
