package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

type ClientConfig struct {
	Path        string
	Journal     string
	Synchronous string
	BusyTimeout time.Duration
	MaxOpen     int
}

func WithPath(path string) ClientOption {
	return func(c *ClientConfig) { c.Path = path }
}

// WithJournalMode sets the journal mode, WAL by default.
func WithJournalMode(mode string) ClientOption {
	return func(c *ClientConfig) { c.Journal = mode }
}

func WithBusyTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.BusyTimeout = d }
}

func WithMaxOpenConns(n int) ClientOption {
	return func(c *ClientConfig) { c.MaxOpen = n }
}

// Client owns a SQLite connection pool.
type Client struct {
	db *sql.DB
}

// NewClient opens (or creates) the database file at Path.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Journal:     "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5 * time.Second,
		MaxOpen:     4,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", buildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpen)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func buildDSN(cfg ClientConfig) string {
	dsn := fmt.Sprintf("file:%s?_journal=%s&_sync=%s&_foreign_keys=on", cfg.Path, cfg.Journal, cfg.Synchronous)
	if cfg.BusyTimeout > 0 {
		dsn += fmt.Sprintf("&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	}
	return dsn
}
