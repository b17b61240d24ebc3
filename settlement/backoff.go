package settlement

import "time"

// Backoff maps a zero-based attempt count to the delay before the next
// poll: base doubled per attempt, capped at max. Pure so the schedule is
// testable without a clock.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d < 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
