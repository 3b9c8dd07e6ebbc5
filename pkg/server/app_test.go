package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) add(s string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls = append(tr.calls, s)
}

func (tr *trace) String() string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return strings.Join(tr.calls, ",")
}

func recorded(tr *trace, name string, startErr error) Service {
	return Func{
		ServiceName: name,
		OnStart: func(context.Context) error {
			tr.add("start:" + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			tr.add("stop:" + name)
			return nil
		},
	}
}

func TestAppOrdering(t *testing.T) {
	tr := &trace{}
	app := New(nil)
	app.Add(recorded(tr, "pipeline", nil), nil, recorded(tr, "http", nil))
	app.OnClose("sqlite", func() error { tr.add("close:sqlite"); return nil })
	app.OnClose("kafka", func() error { tr.add("close:kafka"); return errors.New("broker gone") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := app.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "close kafka") {
		t.Fatalf("err = %v, want close error", err)
	}

	want := "start:pipeline,start:http,stop:http,stop:pipeline,close:kafka,close:sqlite"
	if got := tr.String(); got != want {
		t.Fatalf("calls = %s\nwant    %s", got, want)
	}
}

func TestAppStartFailureUnwinds(t *testing.T) {
	tr := &trace{}
	app := New(nil)
	app.Add(recorded(tr, "queue", nil), recorded(tr, "kafka", errors.New("no brokers")), recorded(tr, "http", nil))

	err := app.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "start kafka") {
		t.Fatalf("err = %v", err)
	}
	if got, want := tr.String(), "start:queue,start:kafka,stop:queue"; got != want {
		t.Fatalf("calls = %s, want %s", got, want)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	running := make(chan struct{})
	s := Loop("paper", func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-running:
	case <-time.After(time.Second):
		t.Fatal("loop never ran")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
