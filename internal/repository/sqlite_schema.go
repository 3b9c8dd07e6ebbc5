package repository

// SQLiteSchema creates the paper trading tables.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tracked_markets (
		id           TEXT PRIMARY KEY,
		series_id    TEXT,
		slug         TEXT,
		asset_name   TEXT NOT NULL,
		timeframe    TEXT,
		end_time     TEXT,
		initial_up   REAL,
		initial_down REAL,
		outcome      TEXT,
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_markets_active ON tracked_markets(outcome, end_time)`,
	`CREATE TABLE IF NOT EXISTS market_snapshots (
		id                     INTEGER PRIMARY KEY AUTOINCREMENT,
		market_id              TEXT NOT NULL,
		up_price               REAL,
		down_price             REAL,
		time_remaining_seconds INTEGER,
		timestamp              TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_market ON market_snapshots(market_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS paper_trades (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		market_id        TEXT NOT NULL,
		model_name       TEXT NOT NULL,
		direction        TEXT NOT NULL,
		entry_price      REAL NOT NULL,
		shares           REAL NOT NULL,
		stake            REAL NOT NULL,
		model_confidence REAL,
		model_edge       REAL,
		indicators_json  TEXT,
		outcome          TEXT,
		pnl              REAL,
		exit_price       REAL,
		resolved_at      TEXT,
		created_at       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_market ON paper_trades(market_id)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_model ON paper_trades(model_name, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_pending ON paper_trades(outcome)`,
}

const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"
