package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PolyEdge/pkg/logger"
)

type resolution struct {
	MarketID string `json:"market_id"`
	Outcome  string `json:"outcome"`
}

type flakyJob struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []string
	done     chan struct{}
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "market.settle" }

func (j *flakyJob) Handle(_ context.Context, payload interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	if j.calls <= j.failures {
		return errors.New("store unavailable")
	}
	r, err := ParsePayload[resolution](payload)
	if err != nil {
		return err
	}
	j.got = append(j.got, r.MarketID)
	close(j.done)
	return nil
}

type panickyJob struct{ calls chan struct{} }

func (j *panickyJob) Name() string { return "panicky" }
func (j *panickyJob) Type() string { return "boom" }
func (j *panickyJob) Handle(context.Context, interface{}) error {
	j.calls <- struct{}{}
	panic("nil market")
}

func TestMemoryQueueRetriesUntilSuccess(t *testing.T) {
	job := &flakyJob{failures: 2, done: make(chan struct{})}
	q := NewMemoryQueue(logger.NewNop(), &QueueConfig{Workers: 2, RetryLimit: 3, RetryDelay: time.Millisecond}, job)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.PublishMessage(context.Background(), "market.settle", resolution{MarketID: "m1", Outcome: "Up"}); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.calls != 3 || len(job.got) != 1 || job.got[0] != "m1" {
		t.Fatalf("calls=%d got=%v", job.calls, job.got)
	}
}

func TestMemoryQueueDeadLetters(t *testing.T) {
	job := &panickyJob{calls: make(chan struct{}, 8)}
	q := NewMemoryQueue(logger.NewNop(), &QueueConfig{RetryLimit: 1, RetryDelay: time.Millisecond}, job)
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.PublishMessage(context.Background(), "boom", nil); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-job.calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("attempt %d never ran", i+1)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(q.DeadLetters()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message never dead-lettered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if dl := q.DeadLetters(); dl[0].Attempts != 1 || dl[0].Type != "boom" {
		t.Fatalf("dead letter = %+v", dl[0])
	}
}

func TestMemoryQueueRejects(t *testing.T) {
	q := NewMemoryQueue(logger.NewNop(), nil)
	if err := q.PublishMessage(context.Background(), "market.settle", nil); err == nil {
		t.Fatal("expected error before Start")
	}
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())
	if err := q.Start(); err == nil {
		t.Fatal("expected error on second Start")
	}
	if err := q.PublishMessage(context.Background(), "unknown", nil); !errors.Is(err, ErrNoJob) {
		t.Fatalf("err = %v, want ErrNoJob", err)
	}
}

func TestParsePayload(t *testing.T) {
	want := resolution{MarketID: "m1", Outcome: "Down"}
	raw, _ := json.Marshal(want)
	var asMap map[string]interface{}
	_ = json.Unmarshal(raw, &asMap)

	tests := []struct {
		name    string
		payload interface{}
	}{
		{"value", want},
		{"pointer", &want},
		{"map", asMap},
		{"raw", json.RawMessage(raw)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePayload[resolution](tt.payload)
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			if *got != want {
				t.Fatalf("got %+v, want %+v", *got, want)
			}
		})
	}
	if _, err := ParsePayload[resolution](42); err == nil {
		t.Fatal("expected error for int payload")
	}
}
