package webhooks

import "time"

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// FixedScheduleRetryPolicy waits Delays[attempt-1] before retry number attempt.
// Attempts past the schedule reuse the last delay.
type FixedScheduleRetryPolicy struct {
	Delays []time.Duration
}

func (p FixedScheduleRetryPolicy) NextDelay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 5 * time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 2 * time.Minute
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// NewRetryPolicy uses the configured schedule, or doubling delays when none is set.
func NewRetryPolicy(schedule []time.Duration) RetryPolicy {
	if len(schedule) == 0 {
		return ExponentialRetryPolicy{}
	}
	return FixedScheduleRetryPolicy{Delays: append([]time.Duration(nil), schedule...)}
}
