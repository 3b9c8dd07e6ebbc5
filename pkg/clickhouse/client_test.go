package clickhouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestBuildOptions(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithHost("ch"),
		WithDatabase("polyedge"),
		WithCredentials("", "secret"),
		WithTimeouts(time.Second, 0, 0),
		WithAsyncInsert(true, false),
		WithMaxExecutionTime(90 * time.Second),
	} {
		opt(cfg)
	}
	opts := buildOptions(cfg)
	if len(opts.Addr) != 1 || opts.Addr[0] != "ch:9000" {
		t.Fatalf("addr = %v", opts.Addr)
	}
	if opts.Auth.Username != "default" || opts.Auth.Password != "secret" || opts.Auth.Database != "polyedge" {
		t.Fatalf("auth = %+v", opts.Auth)
	}
	if opts.DialTimeout != time.Second || opts.ReadTimeout != 30*time.Second {
		t.Fatalf("timeouts = %v / %v", opts.DialTimeout, opts.ReadTimeout)
	}
	if opts.Protocol != clickhouse.Native || opts.Compression.Method != clickhouse.CompressionLZ4 {
		t.Fatalf("native transport not selected")
	}
	if opts.Settings["async_insert"] != 1 || opts.Settings["wait_for_async_insert"] != 0 {
		t.Fatalf("async insert settings = %v", opts.Settings)
	}
	if opts.Settings["max_execution_time"] != 90 {
		t.Fatalf("max_execution_time = %v", opts.Settings["max_execution_time"])
	}

	WithHTTP(true)(cfg)
	WithPort(8123)(cfg)
	opts = buildOptions(cfg)
	if opts.Protocol != clickhouse.HTTP || opts.Addr[0] != "ch:8123" {
		t.Fatalf("http transport = %v %v", opts.Protocol, opts.Addr)
	}
}

func TestWriteContext(t *testing.T) {
	c := &Client{writeTimeout: time.Minute}
	ctx, cancel := c.WriteContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected a deadline")
	}
	ctx, cancel = (&Client{}).WriteContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("zero timeout should not set a deadline")
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrNoHost) {
		t.Fatalf("err = %v, want ErrNoHost", err)
	}
}

func TestSchemaTables(t *testing.T) {
	stmts := Schema()
	joined := strings.Join(stmts, "\n")
	for _, table := range []string{CandleTable, EvaluationTable} {
		if !strings.Contains(joined, table) {
			t.Errorf("schema missing %s", table)
		}
	}
}
