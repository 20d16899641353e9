package processing

// limiter.go bounds how many batches are fetched, mapped and stored at once.
//
// BatchLimiter is a counting semaphore backed by a buffered channel. A batch
// acquires a permit before any work and releases it when it finishes, so at
// most N batches are in flight regardless of how many were dispatched. An
// optional maxWait turns a stalled acquire into ErrLimiterTimeout.
//
// WaitForDrain blocks until every permit has been returned and is used on
// shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimiterTimeout is returned when no permit frees up within maxWait.
var ErrLimiterTimeout = errors.New("timed out waiting for a batch slot")

// DefaultNoOfThreads is the permit count used when none is configured.
const DefaultNoOfThreads = 5

// BatchLimiter gates concurrent batch work.
type BatchLimiter struct {
	permits chan struct{}
	maxWait time.Duration

	mu       sync.RWMutex
	active   int
	peak     int
	acquired int64
	onChange func(active int)
}

// NewBatchLimiter allows at most n concurrent batches. A maxWait of zero
// waits until the context ends.
func NewBatchLimiter(n int, maxWait time.Duration) *BatchLimiter {
	if n <= 0 {
		n = DefaultNoOfThreads
	}
	return &BatchLimiter{
		permits: make(chan struct{}, n),
		maxWait: maxWait,
	}
}

// OnChange registers a callback invoked with the active count after every
// acquire and release. fn runs under the limiter's lock and must not call
// back into the limiter. Set it before the limiter is shared.
func (l *BatchLimiter) OnChange(fn func(active int)) {
	l.onChange = fn
}

// Acquire blocks until a permit is free. The caller must Release exactly
// once after a nil return.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.TryAcquire() {
		return nil
	}

	var timeout <-chan time.Time
	if l.maxWait > 0 {
		timer := time.NewTimer(l.maxWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l.permits <- struct{}{}:
		l.track(+1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return ErrLimiterTimeout
	}
}

// TryAcquire takes a permit if one is immediately free. Acquire tries it
// first so an uncontended batch never arms a timer.
func (l *BatchLimiter) TryAcquire() bool {
	select {
	case l.permits <- struct{}{}:
		l.track(+1)
		return true
	default:
		return false
	}
}

// Release returns a permit.
func (l *BatchLimiter) Release() {
	l.track(-1)
	<-l.permits
}

func (l *BatchLimiter) track(delta int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active += delta
	if delta > 0 {
		l.acquired++
		if l.active > l.peak {
			l.peak = l.active
		}
	}
	// Called under the lock so observers see counts in order.
	if l.onChange != nil {
		l.onChange(l.active)
	}
}

// ActiveCount returns the number of permits currently held.
func (l *BatchLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Capacity returns the permit count.
func (l *BatchLimiter) Capacity() int {
	return cap(l.permits)
}

// Available returns the number of free permits.
func (l *BatchLimiter) Available() int {
	return cap(l.permits) - len(l.permits)
}

// WaitForDrain blocks until no permits are held or ctx ends.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of a limiter.
type LimiterStatus struct {
	Active    int   `json:"active"`
	Available int   `json:"available"`
	Capacity  int   `json:"capacity"`
	Peak      int   `json:"peak"`
	Acquired  int64 `json:"acquired"`
}

// Status returns the current limiter state for the ops endpoint.
func (l *BatchLimiter) Status() LimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LimiterStatus{
		Active:    l.active,
		Available: cap(l.permits) - len(l.permits),
		Capacity:  cap(l.permits),
		Peak:      l.peak,
		Acquired:  l.acquired,
	}
}
