package processing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolRunsScheduledJobs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool := New(2, logger)
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		seen []string
		done = make(chan struct{}, 3)
	)
	pool.Start(ctx, func(ctx context.Context, jobID string) error {
		mu.Lock()
		seen = append(seen, jobID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	for _, id := range []string{"a", "b", "c"} {
		if err := pool.Schedule(ctx, id); err != nil {
			t.Fatalf("schedule %s: %v", id, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	cancel()
	pool.Wait()

	sort.Strings(seen)
	if len(seen) != 3 || seen[0] != "a" || seen[2] != "c" {
		t.Fatalf("unexpected jobs: %v", seen)
	}
}

func TestPoolReportsFullQueue(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pool := New(1, logger)
	var err error
	for i := 0; i <= cap(pool.queue); i++ {
		err = pool.Schedule(context.Background(), "job")
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if hook.LastEntry() == nil {
		t.Fatal("expected the full queue to be logged")
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool := New(3, logger)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	pool.Start(ctx, func(ctx context.Context, jobID string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	_ = pool.Schedule(ctx, "long")
	<-started
	cancel()
	pool.Wait()
}
