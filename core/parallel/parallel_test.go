package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestParallelizeCoversEveryIndex(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, v := range seen {
			if v != 1 {
				t.Fatalf("items=%d: index %d visited %d times", items, i, v)
			}
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("got range [%d,%d), want [0,10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestParallelizeErr(t *testing.T) {
	var total int64
	err := ParallelizeErr(100, 3, func(start, end int) error {
		atomic.AddInt64(&total, int64(end-start))
		return nil
	})
	if err != nil || total != 100 {
		t.Fatalf("err=%v total=%d", err, total)
	}

	boom := errors.New("boom")
	err = ParallelizeErr(10, 2, func(start, end int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
