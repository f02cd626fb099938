package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stock_auction/internal/event"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	notices []event.Notice
}

func (r *recordingSink) Consume(n event.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingSink) list() []event.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Notice(nil), r.notices...)
}

func bid(i int) event.Notice {
	return event.NewBidAccepted("ACME", "A", decimal.NewFromInt(int64(100+i)), time.Now())
}

func TestBroadcaster_FanOut(t *testing.T) {
	reg := NewRegistry()
	sink := &recordingSink{}
	b := NewBroadcaster(reg, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var trs []*fakeTransport
	for i := 0; i < 3; i++ {
		tr := &fakeTransport{}
		s := New(tr, 16)
		reg.Register(s)
		go s.WriteLoop()
		defer s.Close()
		trs = append(trs, tr)
	}

	for i := 1; i <= 5; i++ {
		b.Publish(bid(i))
	}

	want := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		want = append(want, fmt.Sprintf("ACME: new highest bid %d by A", 100+i))
	}
	for _, tr := range trs {
		require.Eventually(t, func() bool { return len(tr.Frames()) == 5 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, want, tr.Frames())
	}

	notices := sink.list()
	require.Len(t, notices, 5)
	for i, n := range notices {
		assert.Equal(t, uint64(i+1), n.Seq)
	}
}

func TestBroadcaster_EvictsSlowSession(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	// Slow peer: writer never drains
	slowTr := &fakeTransport{}
	slow := New(slowTr, 2)
	reg.Register(slow)

	fastTr := &fakeTransport{}
	fast := New(fastTr, 64)
	reg.Register(fast)
	go fast.WriteLoop()
	defer fast.Close()

	for i := 1; i <= 10; i++ {
		b.Publish(bid(i))
	}

	require.Eventually(t, func() bool { return len(fastTr.Frames()) == 10 }, time.Second, 5*time.Millisecond)
	assert.True(t, slow.Failed())
	assert.True(t, slowTr.Closed())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "ACME: new highest bid 110 by A", fastTr.Frames()[9])
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	// No consumer running: Publish still returns immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(bid(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a consumer")
	}
}

func TestBroadcaster_CloseDrains(t *testing.T) {
	reg := NewRegistry()
	sink := &recordingSink{}
	b := NewBroadcaster(reg, sink)

	for i := 1; i <= 3; i++ {
		b.Publish(bid(i))
	}
	b.Close()
	b.Publish(bid(4))

	b.Run(context.Background())

	assert.Len(t, sink.list(), 3, "queued notices are drained, later ones dropped")
	select {
	case <-b.Done():
	default:
		t.Fatal("Done should be closed after Run returns")
	}
}
