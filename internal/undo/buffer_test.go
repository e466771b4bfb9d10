package undo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

// fakeScheduler records scheduled callbacks so tests decide when they fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// fire runs timer i even if it was stopped, the way a real timer can race
// with Stop.
func (s *fakeScheduler) fire(i int) {
	s.mu.Lock()
	t := s.timers[i]
	s.mu.Unlock()
	t.f()
}

func sampleTx(id string) core.Transaction {
	return core.Transaction{ID: id, Name: id, Amount: 1, Date: core.NewDate(2024, 1, 1), Type: core.Expense, Category: "x"}
}

func newBuffer(t *testing.T, opts ...Option) (*Buffer, *fakeScheduler, *[]Entry) {
	t.Helper()
	sched := &fakeScheduler{}
	var expired []Entry
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithAfterFunc(sched.AfterFunc),
		WithClock(func() time.Time { return now }),
		WithOnExpire(func(e Entry) { expired = append(expired, e) }),
	}, opts...)
	return New(opts...), sched, &expired
}

func TestPushArmsTimer(t *testing.T) {
	b, sched, _ := newBuffer(t)

	entry, _, superseded := b.Push(sampleTx("a"), 2)
	assert.False(t, superseded)
	assert.Equal(t, 2, entry.Index)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC), entry.Expires)

	require.Len(t, sched.timers, 1)
	assert.Equal(t, DefaultWindow, sched.timers[0].d)

	got, ok := b.Pending()
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestTakeCancelsExpiry(t *testing.T) {
	b, sched, expired := newBuffer(t)
	b.Push(sampleTx("a"), 0)

	e, err := b.Take()
	require.NoError(t, err)
	assert.Equal(t, "a", e.Transaction.ID)
	assert.Equal(t, 0, sched.live())

	sched.fire(0)
	assert.Empty(t, *expired, "stale timer must not expire a taken entry")

	_, err = b.Take()
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestExpireClearsAndNotifies(t *testing.T) {
	b, sched, expired := newBuffer(t)
	b.Push(sampleTx("a"), 3)

	sched.fire(0)
	require.Len(t, *expired, 1)
	assert.Equal(t, "a", (*expired)[0].Transaction.ID)
	assert.Equal(t, 3, (*expired)[0].Index)

	_, ok := b.Pending()
	assert.False(t, ok)
	_, err := b.Take()
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestSecondPushSupersedesFirst(t *testing.T) {
	b, sched, expired := newBuffer(t)
	b.Push(sampleTx("a"), 0)
	_, old, superseded := b.Push(sampleTx("b"), 1)

	require.True(t, superseded)
	assert.Equal(t, "a", old.Transaction.ID)
	assert.Equal(t, 1, sched.live(), "at most one timer may be live")

	sched.fire(0)
	assert.Empty(t, *expired)

	e, err := b.Take()
	require.NoError(t, err)
	assert.Equal(t, "b", e.Transaction.ID)
}

func TestStop(t *testing.T) {
	b, sched, expired := newBuffer(t)
	b.Push(sampleTx("a"), 0)
	b.Stop()

	assert.Equal(t, 0, sched.live())
	sched.fire(0)
	assert.Empty(t, *expired)
	_, ok := b.Pending()
	assert.False(t, ok)
}

func TestWithWindow(t *testing.T) {
	b, sched, _ := newBuffer(t, WithWindow(time.Minute))
	assert.Equal(t, time.Minute, b.Window())
	b.Push(sampleTx("a"), 0)
	assert.Equal(t, time.Minute, sched.timers[0].d)
}

func TestRealTimerExpires(t *testing.T) {
	done := make(chan Entry, 1)
	b := New(WithWindow(10*time.Millisecond), WithOnExpire(func(e Entry) { done <- e }))
	b.Push(sampleTx("a"), 0)

	select {
	case e := <-done:
		assert.Equal(t, "a", e.Transaction.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry callback not invoked")
	}
}
