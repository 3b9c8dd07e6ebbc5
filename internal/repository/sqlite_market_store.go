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

const marketColumns = `id, series_id, slug, asset_name, timeframe, end_time, initial_up, initial_down, outcome, created_at`

// SQLiteMarketStore implements MarketStore and MarketWriter on SQLite.
type SQLiteMarketStore struct {
	db *sql.DB
}

var (
	_ domrepo.MarketStore  = (*SQLiteMarketStore)(nil)
	_ domrepo.MarketWriter = (*SQLiteMarketStore)(nil)
)

func NewSQLiteMarketStore(client *pkgsqlite.Client) *SQLiteMarketStore {
	return &SQLiteMarketStore{db: client.DB()}
}

// Active lists unresolved markets, soonest to end first.
func (s *SQLiteMarketStore) Active(ctx context.Context) ([]*models.Market, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+marketColumns+` FROM tracked_markets
		WHERE outcome IS NULL ORDER BY end_time IS NULL, end_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("active markets: %w", err)
	}
	defer rows.Close()

	var out []*models.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteMarketStore) Get(ctx context.Context, id string) (*models.Market, error) {
	m, err := scanMarket(s.db.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM tracked_markets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domrepo.ErrMarketNotFound
	}
	return m, err
}

// LatestSnapshot returns nil without error when the market has no snapshot.
func (s *SQLiteMarketStore) LatestSnapshot(ctx context.Context, marketID string) (*models.MarketSnapshot, error) {
	var (
		up, down  sql.NullFloat64
		remaining sql.NullInt64
		ts        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT up_price, down_price, time_remaining_seconds, timestamp
		FROM market_snapshots
		WHERE market_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, marketID).Scan(&up, &down, &remaining, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap := &models.MarketSnapshot{MarketID: marketID, Up: nullFloat(up), Down: nullFloat(down)}
	if remaining.Valid {
		v := int(remaining.Int64)
		snap.TimeRemainingSeconds = &v
	}
	if t := parseTimePtr(ts); t != nil {
		snap.Timestamp = *t
	}
	return snap, nil
}

func (s *SQLiteMarketStore) Resolve(ctx context.Context, marketID string, outcome models.Direction) error {
	if !outcome.Valid() {
		return fmt.Errorf("invalid outcome %q", outcome)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tracked_markets SET outcome = ? WHERE id = ?`, string(outcome), marketID)
	if err != nil {
		return fmt.Errorf("resolve market: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domrepo.ErrMarketNotFound
	}
	return nil
}

func (s *SQLiteMarketStore) PendingResolved(ctx context.Context) ([]domrepo.ResolvedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pt.id, pt.market_id, pt.model_name, pt.direction, pt.entry_price, pt.shares, pt.stake,
			pt.model_confidence, pt.model_edge, pt.indicators_json, pt.outcome, pt.pnl, pt.exit_price,
			pt.resolved_at, pt.created_at, tm.outcome
		FROM paper_trades pt
		JOIN tracked_markets tm ON tm.id = pt.market_id
		WHERE pt.outcome IS NULL AND tm.outcome IS NOT NULL
		ORDER BY pt.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("resolved pending trades: %w", err)
	}
	defer rows.Close()

	var out []domrepo.ResolvedTrade
	for rows.Next() {
		var outcome string
		t, err := scanTrade(trailingScanner{rows, &outcome})
		if err != nil {
			return nil, err
		}
		dir, err := models.ParseDirection(outcome)
		if err != nil {
			continue
		}
		out = append(out, domrepo.ResolvedTrade{Trade: t, Outcome: dir})
	}
	return out, rows.Err()
}

// UpsertMarket inserts m or refreshes its descriptive fields. The outcome of
// an existing market is only overwritten when m carries one.
func (s *SQLiteMarketStore) UpsertMarket(ctx context.Context, m *models.Market) error {
	if m == nil || m.ID == "" || m.AssetName == "" {
		return fmt.Errorf("market requires id and asset name")
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	var outcome interface{}
	if m.Outcome != nil && m.Outcome.Valid() {
		outcome = string(*m.Outcome)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_markets (`+marketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			series_id = excluded.series_id,
			slug = excluded.slug,
			asset_name = excluded.asset_name,
			timeframe = excluded.timeframe,
			end_time = excluded.end_time,
			initial_up = COALESCE(excluded.initial_up, tracked_markets.initial_up),
			initial_down = COALESCE(excluded.initial_down, tracked_markets.initial_down),
			outcome = COALESCE(excluded.outcome, tracked_markets.outcome)`,
		m.ID, m.SeriesID, m.Slug, m.AssetName, m.Timeframe, formatTimePtr(m.EndTime),
		m.InitialUp, m.InitialDown, outcome, created.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("upsert market: %w", err)
	}
	return nil
}

func (s *SQLiteMarketStore) AddSnapshot(ctx context.Context, snap *models.MarketSnapshot) error {
	if snap == nil || snap.MarketID == "" {
		return fmt.Errorf("snapshot requires market id")
	}
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (market_id, up_price, down_price, time_remaining_seconds, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		snap.MarketID, snap.Up, snap.Down, snap.TimeRemainingSeconds, ts.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("add snapshot: %w", err)
	}
	return nil
}

// trailingScanner scans a trade row followed by one extra column.
type trailingScanner struct {
	rows  *sql.Rows
	extra *string
}

func (t trailingScanner) Scan(dest ...interface{}) error {
	return t.rows.Scan(append(dest, t.extra)...)
}

func scanMarket(r rowScanner) (*models.Market, error) {
	var (
		m                        models.Market
		series, slug, tf         sql.NullString
		endTime, outcome, create sql.NullString
		up, down                 sql.NullFloat64
	)
	if err := r.Scan(&m.ID, &series, &slug, &m.AssetName, &tf, &endTime, &up, &down, &outcome, &create); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan market: %w", err)
	}
	m.SeriesID, m.Slug, m.Timeframe = series.String, slug.String, tf.String
	m.EndTime = parseTimePtr(endTime)
	m.InitialUp, m.InitialDown = nullFloat(up), nullFloat(down)
	if outcome.Valid {
		if d, err := models.ParseDirection(outcome.String); err == nil {
			m.Outcome = &d
		}
	}
	if ts := parseTimePtr(create); ts != nil {
		m.CreatedAt = *ts
	}
	return &m, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
