// Package undo holds the single pending deletion that can still be reverted.
package undo

import (
	"errors"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// DefaultWindow is how long a deletion stays restorable.
const DefaultWindow = 5 * time.Second

var ErrNothingPending = errors.New("nothing to undo")

// Entry is a deleted transaction together with the index it was removed from.
type Entry struct {
	Transaction core.Transaction
	Index       int
	Expires     time.Time
}

// Timer is the subset of *time.Timer the buffer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Buffer)

func WithWindow(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc, mainly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(b *Buffer) {
		if fn != nil {
			b.afterFunc = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// WithOnExpire registers the callback run after an entry expires. It runs
// on the timer goroutine, after the buffer lock has been released.
func WithOnExpire(fn func(Entry)) Option {
	return func(b *Buffer) {
		b.onExpire = fn
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Buffer) {
		if l != nil {
			b.logger = l.WithComponent(log.ComponentUndo)
		}
	}
}

// Buffer is either empty or holds one pending entry with a live timer.
type Buffer struct {
	mu         sync.Mutex
	window     time.Duration
	afterFunc  AfterFunc
	now        func() time.Time
	onExpire   func(Entry)
	logger     *log.Logger
	entry      *Entry
	timer      Timer
	generation uint64
}

func New(opts ...Option) *Buffer {
	b := &Buffer{
		window: DefaultWindow,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		now:    time.Now,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window returns the configured restore window.
func (b *Buffer) Window() time.Duration {
	return b.window
}

// Push makes tx the pending entry and arms its expiry. An entry that was
// still pending is discarded and returned with ok set.
func (b *Buffer) Push(tx core.Transaction, index int) (entry Entry, superseded Entry, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.entry != nil {
		superseded, ok = *b.entry, true
		b.logger.Info("Discarding superseded deletion", log.FieldTxID, superseded.Transaction.ID, log.FieldOperation, log.OpExpire)
	}
	b.stopLocked()

	b.generation++
	gen := b.generation
	entry = Entry{Transaction: tx, Index: index, Expires: b.now().Add(b.window)}
	b.entry = &entry
	b.timer = b.afterFunc(b.window, func() { b.expire(gen) })
	return entry, superseded, ok
}

// Take removes and returns the pending entry, cancelling its expiry.
func (b *Buffer) Take() (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry == nil {
		return Entry{}, ErrNothingPending
	}
	e := *b.entry
	b.stopLocked()
	return e, nil
}

// Pending reports the pending entry, if any.
func (b *Buffer) Pending() (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entry == nil {
		return Entry{}, false
	}
	return *b.entry, true
}

// Stop cancels a live timer and drops the pending entry without invoking
// the expiry callback.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *Buffer) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.entry = nil
	b.generation++
}

func (b *Buffer) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.generation || b.entry == nil {
		b.mu.Unlock()
		return
	}
	e := *b.entry
	b.entry = nil
	b.timer = nil
	b.mu.Unlock()

	b.logger.Debug("Undo window expired", log.FieldTxID, e.Transaction.ID, log.FieldOperation, log.OpExpire)
	if b.onExpire != nil {
		b.onExpire(e)
	}
}
