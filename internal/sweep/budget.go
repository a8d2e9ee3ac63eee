package sweep

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// memoryBudget caps the bytes of dense reconstructions alive at once.
type memoryBudget struct {
	limit int64
	sem   *semaphore.Weighted // nil if unlimited
	used  atomic.Int64
}

func newMemoryBudget(limit int64) *memoryBudget {
	b := &memoryBudget{limit: limit}
	if limit > 0 {
		b.sem = semaphore.NewWeighted(limit)
	}
	return b
}

// acquire reserves bytes, blocking until they are available or ctx is done.
// A request larger than the whole budget is clamped to the budget so that it
// runs alone instead of deadlocking. Returns the bytes actually reserved.
func (b *memoryBudget) acquire(ctx context.Context, bytes int64) (int64, error) {
	if bytes <= 0 {
		return 0, nil
	}
	if b.sem != nil {
		bytes = min(bytes, b.limit)
		if err := b.sem.Acquire(ctx, bytes); err != nil {
			return 0, err
		}
	}
	b.used.Add(bytes)
	return bytes, nil
}

func (b *memoryBudget) release(bytes int64) {
	if bytes <= 0 {
		return
	}
	if b.sem != nil {
		b.sem.Release(bytes)
	}
	b.used.Add(-bytes)
}

func (b *memoryBudget) inUse() int64 {
	return b.used.Load()
}
