package syncer

import "time"

// Backoff schedules retries of failed pushes and decides when an entry is
// given up on.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	// MaxAttempts moves an entry to dead once reached. Zero retries forever.
	MaxAttempts int
}

// Delay returns how long to wait after the given number of attempts:
// Min * Multiplier^(attempts-1), capped at Max.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 || b.Min <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(b.Min)
	for i := 1; i < attempts; i++ {
		delay *= mult
		if b.Max > 0 && delay >= float64(b.Max) {
			return b.Max
		}
	}

	result := time.Duration(delay)
	if b.Max > 0 && result > b.Max {
		result = b.Max
	}
	return result
}

// Exhausted reports whether an entry with this many attempts is dead.
func (b Backoff) Exhausted(attempts int) bool {
	return b.MaxAttempts > 0 && attempts >= b.MaxAttempts
}
