package exchange

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// budget enforces the rolling 60-second request-count and weight limits
// of §4.1/§5: every charge is recorded with its timestamp, and wait blocks
// until enough of the window has aged out for the new charge to fit. This
// exact "slide the window until the oldest charge drops out" behaviour
// (§4.1, scenario E5) is not something a continuously-refilling token
// bucket reproduces, so it is hand-rolled here; an x/time/rate.Limiter is
// layered in front as a cheap average-rate smoother so a sudden burst of
// calls doesn't hammer the window accounting in a tight loop.
type budget struct {
	mu         sync.Mutex
	maxReqs    int
	maxWeight  int
	window     time.Duration
	reqTimes   []time.Time
	weights    []int
	pacer      *rate.Limiter
	now        func() time.Time
}

func newBudget(maxReqs, maxWeight int, window time.Duration) *budget {
	avgWeight := float64(maxWeight) / window.Seconds()
	return &budget{
		maxReqs:   maxReqs,
		maxWeight: maxWeight,
		window:    window,
		pacer:     rate.NewLimiter(rate.Limit(avgWeight), maxWeight),
		now:       time.Now,
	}
}

// wait blocks until charging `weight` would keep both the request-count
// and weight budgets within their rolling window limits, then records the
// charge and returns. It returns the duration actually waited.
func (b *budget) wait(ctx context.Context, weight int) (time.Duration, error) {
	if weight < 1 {
		weight = 1
	}
	start := b.now()

	if err := b.pacer.WaitN(ctx, weight); err != nil {
		return 0, err
	}

	for {
		b.mu.Lock()
		now := b.now()
		b.evict(now)

		usedReqs := len(b.reqTimes)
		usedWeight := 0
		for _, w := range b.weights {
			usedWeight += w
		}

		if usedReqs+1 <= b.maxReqs && usedWeight+weight <= b.maxWeight {
			b.reqTimes = append(b.reqTimes, now)
			b.weights = append(b.weights, weight)
			b.mu.Unlock()
			return now.Sub(start), nil
		}

		var wait time.Duration
		if len(b.reqTimes) > 0 {
			wait = b.reqTimes[0].Add(b.window).Sub(now)
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return b.now().Sub(start), ctx.Err()
		case <-time.After(wait):
		}
	}
}

// evict drops charges whose timestamp has aged out of the rolling window.
// Caller must hold b.mu.
func (b *budget) evict(now time.Time) {
	cut := now.Add(-b.window)
	i := 0
	for i < len(b.reqTimes) && !b.reqTimes[i].After(cut) {
		i++
	}
	if i == 0 {
		return
	}
	b.reqTimes = b.reqTimes[i:]
	b.weights = b.weights[i:]
}

// stats reports the current usage of the rolling window, for observability.
func (b *budget) stats() (usedReqs, usedWeight int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evict(b.now())
	usedReqs = len(b.reqTimes)
	for _, w := range b.weights {
		usedWeight += w
	}
	return
}
