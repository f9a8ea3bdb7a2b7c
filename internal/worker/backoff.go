package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: exponential growth capped at Max, plus a
// random jitter in [0, Jitter) so simultaneous retries spread out.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// Delay returns how long to wait before retry attempt n (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(b.Base) * math.Pow(2, float64(attempt-1)))
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Float64() * float64(b.Jitter))
	}
	return d
}
