package tracking

import "time"

// Clock is the time source used by the interceptor
type Clock func() time.Time

// Timer brackets one handler invocation
type Timer struct {
	now   Clock
	start time.Time
}

func startTimer(now Clock) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now, start: now()}
}

// Started returns the dispatch start time
func (t *Timer) Started() time.Time {
	return t.start
}

// ElapsedMs never goes negative, even if the injected clock moves backwards
func (t *Timer) ElapsedMs() int64 {
	ms := t.now().Sub(t.start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
