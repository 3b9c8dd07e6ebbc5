package clickhouse

const (
	CandleTable     = "polyedge.asset_candles"
	EvaluationTable = "polyedge.model_evaluations"
)

// Schema returns the DDL for the PolyEdge analytical tables.
func Schema() []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS polyedge`,
		`CREATE TABLE IF NOT EXISTS ` + CandleTable + ` (
			timestamp  DateTime64(3, 'UTC'),
			asset_name LowCardinality(String),
			interval   LowCardinality(String),
			open       Float64,
			high       Float64,
			low        Float64,
			close      Float64,
			volume     Float64
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (asset_name, interval, timestamp)`,
		`CREATE TABLE IF NOT EXISTS ` + EvaluationTable + ` (
			ts           DateTime64(3, 'UTC'),
			market_id    String,
			model        LowCardinality(String),
			direction    LowCardinality(String),
			confidence   Float64,
			edge         Float64,
			should_trade UInt8,
			reason       String,
			quote_up     Float64,
			quote_down   Float64
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (model, market_id, ts)
		TTL toDateTime(ts) + INTERVAL 90 DAY`,
	}
}
