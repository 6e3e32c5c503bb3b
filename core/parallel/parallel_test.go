package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

func TestParallelize_CoversEveryItem(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		t.Run(fmt.Sprint(items), func(t *testing.T) {
			seen := make([]int32, items)
			Parallelize(items, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			})
			for i, n := range seen {
				if n != 1 {
					t.Fatalf("item %d visited %d times", i, n)
				}
			}
		})
	}
}

func TestParallelizeWithThreshold_Sequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("range = [%d, %d), want [0, 10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("expected a single sequential call, got %d", calls)
	}
}

func TestJobs(t *testing.T) {
	var done int64
	err := Jobs(context.Background(), 100, 4, func(_, _ int) error {
		atomic.AddInt64(&done, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if done != 100 {
		t.Errorf("ran %d jobs, want 100", done)
	}
}

func TestJobs_FirstErrorStops(t *testing.T) {
	boom := errors.New("tree 3 failed")
	err := Jobs(context.Background(), 50, 2, func(_, jobID int) error {
		if jobID == 3 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Jobs() error = %v, want %v", err, boom)
	}
}

func TestJobs_PanicBecomesError(t *testing.T) {
	err := Jobs(context.Background(), 4, 2, func(_, jobID int) error {
		if jobID == 1 {
			panic("index out of range")
		}
		return nil
	})
	var panicErr *errors.PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %v", err)
	}
}

func TestJobs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int64
	err := Jobs(ctx, 10, 1, func(_, _ int) error {
		atomic.AddInt64(&ran, 1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Jobs() error = %v, want context.Canceled", err)
	}
}
