package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *fireRecorder) onFire(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, symbol)
}

func (r *fireRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func TestTimerService_ArmReplacesPrevious(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	rec := &fireRecorder{}
	ts := NewTimerService(clock, rec.onFire)

	ts.Arm("ACME", clock.Now().Add(10*time.Second))
	ts.Arm("ACME", clock.Now().Add(20*time.Second))
	assert.Equal(t, 1, ts.Pending())

	clock.Advance(15 * time.Second)
	assert.Empty(t, rec.list(), "replaced timer must not fire")

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"ACME"}, rec.list())
	assert.Equal(t, 0, ts.Pending())
}

func TestTimerService_IndependentSymbols(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	rec := &fireRecorder{}
	ts := NewTimerService(clock, rec.onFire)

	ts.Arm("BOLT", clock.Now().Add(20*time.Second))
	ts.Arm("ACME", clock.Now().Add(10*time.Second))

	clock.Advance(30 * time.Second)
	assert.Equal(t, []string{"ACME", "BOLT"}, rec.list())
}

func TestTimerService_PastDeadlineFiresImmediately(t *testing.T) {
	clock := newManualClock(time.Unix(100, 0))
	rec := &fireRecorder{}
	ts := NewTimerService(clock, rec.onFire)

	ts.Arm("ACME", time.Unix(50, 0))
	clock.Advance(0)
	assert.Equal(t, []string{"ACME"}, rec.list())
}

func TestTimerService_Stop(t *testing.T) {
	clock := newManualClock(time.Unix(0, 0))
	rec := &fireRecorder{}
	ts := NewTimerService(clock, rec.onFire)

	ts.Arm("ACME", clock.Now().Add(10*time.Second))
	ts.Stop()
	ts.Arm("BOLT", clock.Now().Add(10*time.Second))

	clock.Advance(time.Minute)
	assert.Empty(t, rec.list())
	assert.Equal(t, 0, ts.Pending())
}

func TestTimerService_SystemClock(t *testing.T) {
	done := make(chan string, 1)
	ts := NewTimerService(SystemClock{}, func(symbol string) { done <- symbol })

	ts.Arm("ACME", time.Now().Add(10*time.Millisecond))

	select {
	case sym := <-done:
		assert.Equal(t, "ACME", sym)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
