package fetch

import (
	"math"
	"time"
)

// Backoff returns the delay before retry attempt n (1-based): base * 2^(n-1),
// capped at base * 2^budget. Pure so retry pacing is testable without timers.
func Backoff(base time.Duration, attempt, budget int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	if budget < 0 {
		budget = 0
	}

	shift := attempt - 1
	if shift > budget {
		shift = budget
	}

	// Doubling instead of shifting: an absurd budget must saturate,
	// never wrap negative.
	d := base
	for ; shift > 0; shift-- {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	return d
}
