package syncer

import "time"

// backoffDelay returns the delay before retry number attempt (0-based):
// min doubled per attempt, capped at max.
func backoffDelay(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}

	delay := min
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}
