package actor

import "fmt"

// LoopLimitError reports a turn that exceeded its completion round budget,
// usually a model stuck requesting tools forever.
type LoopLimitError struct {
	MaxRounds int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("turn exceeded %d completion rounds", e.MaxRounds)
}

// roundLimiter counts completion rounds within a single turn. Zero max means
// unlimited. It is confined to the actor goroutine and needs no locking.
type roundLimiter struct {
	max   int
	count int
}

func newRoundLimiter(max int) *roundLimiter {
	return &roundLimiter{max: max}
}

// increment consumes one round and fails once the budget is exhausted.
func (rl *roundLimiter) increment() error {
	rl.count++
	if rl.max > 0 && rl.count > rl.max {
		return &LoopLimitError{MaxRounds: rl.max}
	}
	return nil
}

func (rl *roundLimiter) rounds() int { return rl.count }
