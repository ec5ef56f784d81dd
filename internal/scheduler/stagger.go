package scheduler

import (
	"math/rand"
	"time"
)

// staggerDelay computes the gap between consecutive source starts:
//
//	max(min(minInterval/n, maxBudget/n), floor)
//
// Spreading N first executions over at most maxBudget keeps the shared
// connection pool from a thundering herd, while the floor guarantees
// breathing room between starts. With very large N the floor dominates and
// the total span exceeds the budget; that tension is accepted.
func staggerDelay(n int, minInterval, maxBudget, floor time.Duration) time.Duration {
	if n <= 0 {
		return 0
	}
	d := minInterval / time.Duration(n)
	if b := maxBudget / time.Duration(n); b < d || d <= 0 {
		d = b
	}
	if d < floor {
		d = floor
	}
	return d
}

// defaultJitter returns a uniform random delay in [0, max).
func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
