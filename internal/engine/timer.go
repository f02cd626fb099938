package engine

import (
	"sync"
	"time"
)

// TimerService keeps one pending close-timer per symbol.
// Arming a symbol replaces its previous timer. A timer that fires after
// being replaced is ignored; the replacement is still pending.
type TimerService struct {
	clock  Clock
	onFire func(symbol string)

	mu      sync.Mutex
	timers  map[string]Timer
	gen     map[string]uint64
	stopped bool
}

// NewTimerService creates a timer service calling onFire when a deadline passes.
// onFire runs on the timer's goroutine with no service lock held.
func NewTimerService(clock Clock, onFire func(symbol string)) *TimerService {
	return &TimerService{
		clock:  clock,
		onFire: onFire,
		timers: make(map[string]Timer),
		gen:    make(map[string]uint64),
	}
}

// Arm schedules a wake for symbol at deadline.
func (t *TimerService) Arm(symbol string, deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if prev, ok := t.timers[symbol]; ok {
		prev.Stop()
	}

	t.gen[symbol]++
	g := t.gen[symbol]

	d := deadline.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}
	t.timers[symbol] = t.clock.AfterFunc(d, func() { t.fire(symbol, g) })
}

func (t *TimerService) fire(symbol string, g uint64) {
	t.mu.Lock()
	if t.stopped || t.gen[symbol] != g {
		t.mu.Unlock()
		return
	}
	delete(t.timers, symbol)
	t.mu.Unlock()

	t.onFire(symbol)
}

// Pending returns the number of armed timers.
func (t *TimerService) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every pending timer. Later Arm calls are no-ops.
func (t *TimerService) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for sym, tm := range t.timers {
		tm.Stop()
		delete(t.timers, sym)
	}
}
