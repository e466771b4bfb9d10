// Package tracker is the command interface of the finance tracker. Each user
// intent is one method; the tracker turns it into ledger and undo buffer
// operations and serialises them, including the undo expiry callback.
package tracker

import (
	"context"
	"errors"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"fintrack/internal/aggregate"
	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/theme"
	"fintrack/internal/undo"
)

// DefaultBudgetLimit is the monthly spend the budget gauge compares against.
const DefaultBudgetLimit = 1000

// Reports are keyed by ledger revision, so a few entries cover concurrent
// readers of the latest state.
const reportCacheSize = 8

// ErrNothingToUndo is returned by RequestUndo when no deletion is pending.
var ErrNothingToUndo = undo.ErrNothingPending

// Notifier receives committed ledger changes. *amqp.Client implements it.
type Notifier interface {
	PublishChange(ctx context.Context, kind, id string, revision uint64) error
}

type (
	// Fields are the raw values of a new transaction as the user typed them.
	Fields struct {
		Name     string `json:"name"`
		Amount   string `json:"amount"`
		Date     string `json:"date"`
		Type     string `json:"type"`
		Category string `json:"category"`
	}

	// Deletion describes a deletion that can still be undone until Expires.
	Deletion struct {
		Transaction core.Transaction `json:"transaction"`
		Index       int              `json:"index"`
		Expires     time.Time        `json:"expires"`
	}

	// View is everything a list-and-charts screen renders.
	View struct {
		Filter       string                     `json:"filter"`
		Transactions []core.Transaction         `json:"transactions"`
		Totals       aggregate.Totals           `json:"totals"`
		Budget       aggregate.Budget           `json:"budget"`
		Categories   []aggregate.CategoryAmount `json:"categories"`
		Balance      []aggregate.Point          `json:"balance"`
		Undo         *Deletion                  `json:"undo,omitempty"`
		Theme        theme.Theme                `json:"theme,omitempty"`
	}
)

type Option func(*Tracker)

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithBudgetLimit sets the budget gauge limit. Non-finite values are ignored.
func WithBudgetLimit(limit float64) Option {
	return func(t *Tracker) {
		if !math.IsNaN(limit) && !math.IsInf(limit, 0) {
			t.budget = limit
		}
	}
}

func WithTheme(p *theme.Preference) Option {
	return func(t *Tracker) {
		t.theme = p
	}
}

// WithUndoOptions configures the undo buffer, e.g. its window or scheduler.
func WithUndoOptions(opts ...undo.Option) Option {
	return func(t *Tracker) {
		t.undoOpts = append(t.undoOpts, opts...)
	}
}

type Tracker struct {
	mu       sync.Mutex
	ledger   *ledger.Store
	undo     *undo.Buffer
	undoOpts []undo.Option
	theme    *theme.Preference
	notifier Notifier
	budget   float64
	filter   aggregate.Filter
	reports  *cache.LRU[aggregate.Report]
	logger   *log.Logger
}

// New wires a tracker around an opened ledger.
func New(store *ledger.Store, opts ...Option) *Tracker {
	t := &Tracker{
		ledger:  store,
		budget:  DefaultBudgetLimit,
		reports: cache.NewLRU[aggregate.Report](reportCacheSize, 0),
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	undoOpts := append([]undo.Option{
		undo.WithLogger(t.logger),
		undo.WithOnExpire(t.onUndoExpired),
	}, t.undoOpts...)
	t.undo = undo.New(undoOpts...)
	t.logger = t.logger.WithComponent(log.ComponentTracker)
	return t
}

// SubmitNew parses the raw fields and adds the transaction. Any rejected
// field yields a *core.ValidationError and leaves the ledger as it was.
func (t *Tracker) SubmitNew(ctx context.Context, f Fields) (core.Transaction, error) {
	n, err := parseFields(f)
	if err != nil {
		return core.Transaction{}, err
	}

	t.mu.Lock()
	tx, err := t.ledger.Add(ctx, n)
	t.mu.Unlock()

	if tx.ID != "" {
		t.notify(ctx, amqp.KindAdded, tx.ID)
	}
	return tx, err
}

func parseFields(f Fields) (core.NewTransaction, error) {
	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		return core.NewTransaction{}, &core.ValidationError{Field: core.FieldAmount, Err: err}
	}
	date, err := core.ParseDate(f.Date)
	if err != nil {
		return core.NewTransaction{}, &core.ValidationError{Field: core.FieldDate, Err: err}
	}
	typ, err := core.ParseType(f.Type)
	if err != nil {
		return core.NewTransaction{}, &core.ValidationError{Field: core.FieldType, Err: err}
	}
	return core.NewTransaction{
		Name:     f.Name,
		Amount:   amount,
		Date:     date,
		Type:     typ,
		Category: f.Category,
	}, nil
}

// RequestDelete removes the transaction and makes it the pending undo entry,
// discarding any earlier pending deletion for good. The removal is persisted
// at once; a persistence failure is returned with the Deletion still armed.
func (t *Tracker) RequestDelete(ctx context.Context, id string) (Deletion, error) {
	t.mu.Lock()
	removed, err := t.ledger.Remove(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		t.mu.Unlock()
		return Deletion{}, err
	}

	entry, superseded, ok := t.undo.Push(removed.Transaction, removed.Index)
	t.mu.Unlock()

	if ok {
		t.logger.InfoContext(ctx, "Previous deletion is now final", log.FieldTxID, superseded.Transaction.ID)
	}
	t.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldTxID, id,
		log.FieldIndex, removed.Index,
		log.FieldUndoExpires, entry.Expires,
		log.FieldOperation, log.OpRemove)
	t.notify(ctx, amqp.KindRemoved, id)

	return deletionFrom(entry), err
}

// RequestUndo puts the pending deletion back at its original index.
func (t *Tracker) RequestUndo(ctx context.Context) (core.Transaction, error) {
	t.mu.Lock()
	entry, err := t.undo.Take()
	if err != nil {
		t.mu.Unlock()
		return core.Transaction{}, ErrNothingToUndo
	}
	err = t.ledger.RestoreAt(ctx, entry.Transaction, entry.Index)
	t.mu.Unlock()

	if err != nil && !errors.Is(err, core.ErrPersistence) {
		return core.Transaction{}, err
	}
	t.logger.InfoContext(ctx, "Deletion undone", log.FieldTxID, entry.Transaction.ID, log.FieldOperation, log.OpRestore)
	t.notify(ctx, amqp.KindRestored, entry.Transaction.ID)
	return entry.Transaction, err
}

// EditField changes one field of a transaction. A rejected value keeps the
// previous one and the unchanged transaction is returned with the error.
func (t *Tracker) EditField(ctx context.Context, id, field, raw string) (core.Transaction, error) {
	f, err := core.ParseField(field)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: core.Field(field), Err: err}
	}

	t.mu.Lock()
	tx, err := t.ledger.Update(ctx, id, f, raw)
	t.mu.Unlock()

	if err == nil || errors.Is(err, core.ErrPersistence) {
		t.notify(ctx, amqp.KindUpdated, id)
	}
	return tx, err
}

// ChangeFilter sets the filter used by View and returns its canonical form.
func (t *Tracker) ChangeFilter(value string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter = aggregate.ParseFilter(value)
	return t.filter.String()
}

func (t *Tracker) Filter() aggregate.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}

// View renders the current filter.
func (t *Tracker) View(ctx context.Context) View {
	return t.ViewWith(ctx, t.Filter())
}

// ViewWith renders the listing for f. Totals, budget and charts always cover
// the whole ledger.
func (t *Tracker) ViewWith(ctx context.Context, f aggregate.Filter) View {
	txs, rev := t.ledger.Versioned()
	r := t.reportFor(txs, rev)
	v := View{
		Filter:       f.String(),
		Transactions: aggregate.Listing(txs, f),
		Totals:       r.Totals,
		Budget:       r.Budget,
		Categories:   slices.Clone(r.Categories),
		Balance:      slices.Clone(r.Balance),
	}
	if d, ok := t.UndoPending(); ok {
		v.Undo = &d
	}
	if t.theme != nil {
		v.Theme = t.theme.Get(ctx)
	}
	return v
}

// Transactions returns the ledger in persisted order.
func (t *Tracker) Transactions() []core.Transaction {
	return t.ledger.Snapshot()
}

// Summary returns every whole-ledger aggregate computed from one snapshot.
func (t *Tracker) Summary() aggregate.Report {
	r := t.report()
	r.Categories = slices.Clone(r.Categories)
	r.Balance = slices.Clone(r.Balance)
	return r
}

func (t *Tracker) Totals() aggregate.Totals {
	return t.report().Totals
}

func (t *Tracker) Budget() aggregate.Budget {
	return t.report().Budget
}

func (t *Tracker) CategoryBreakdown() map[string]float64 {
	return aggregate.CategoryBreakdown(t.ledger.Snapshot())
}

func (t *Tracker) Categories() []aggregate.CategoryAmount {
	return slices.Clone(t.report().Categories)
}

func (t *Tracker) BalanceSeries() []aggregate.Point {
	return slices.Clone(t.report().Balance)
}

// ReportCacheStats exposes hit and miss counts of the aggregate cache.
func (t *Tracker) ReportCacheStats() cache.Stats {
	return t.reports.Stats()
}

func (t *Tracker) report() aggregate.Report {
	return t.reportFor(t.ledger.Versioned())
}

// reportFor returns the aggregates of txs, which must be the ledger at rev.
func (t *Tracker) reportFor(txs []core.Transaction, rev uint64) aggregate.Report {
	return t.reports.GetOrCompute(strconv.FormatUint(rev, 10), func() aggregate.Report {
		return aggregate.Summarize(txs, t.budget)
	})
}

func (t *Tracker) UndoPending() (Deletion, bool) {
	e, ok := t.undo.Pending()
	if !ok {
		return Deletion{}, false
	}
	return deletionFrom(e), true
}

// Theme returns the saved theme, or light when no preference store is set.
func (t *Tracker) Theme(ctx context.Context) theme.Theme {
	if t.theme == nil {
		return theme.Light
	}
	return t.theme.Get(ctx)
}

func (t *Tracker) ToggleTheme(ctx context.Context) (theme.Theme, error) {
	if t.theme == nil {
		return theme.Light, errors.New("theme preference not configured")
	}
	return t.theme.Toggle(ctx)
}

// Close cancels the undo timer and writes the ledger one last time. A
// deletion still pending becomes final.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo.Stop()
	if err := t.ledger.Persist(ctx); err != nil {
		t.logger.ErrorContext(ctx, "Final persist failed", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		return err
	}
	t.logger.InfoContext(ctx, "Ledger flushed", log.FieldOperation, log.OpShutdown)
	return nil
}

// onUndoExpired runs on the timer goroutine once a deletion can no longer be
// undone. The removal was already written; persisting again makes it final
// even if that first write failed.
func (t *Tracker) onUndoExpired(e undo.Entry) {
	ctx := context.Background()

	t.mu.Lock()
	err := t.ledger.Persist(ctx)
	t.mu.Unlock()

	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to persist expired deletion",
			log.FieldError, err, log.FieldTxID, e.Transaction.ID, log.FieldOperation, log.OpExpire)
		return
	}
	t.logger.InfoContext(ctx, "Deletion is now final", log.FieldTxID, e.Transaction.ID, log.FieldOperation, log.OpExpire)
	t.notify(ctx, amqp.KindExpired, e.Transaction.ID)
}

func (t *Tracker) notify(ctx context.Context, kind, id string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.PublishChange(ctx, kind, id, t.ledger.Revision()); err != nil {
		t.logger.WarnContext(ctx, "Failed to publish ledger change",
			log.FieldError, err, log.FieldTxID, id, log.FieldOperation, log.OpPublish)
	}
}

func deletionFrom(e undo.Entry) Deletion {
	return Deletion{Transaction: e.Transaction, Index: e.Index, Expires: e.Expires}
}
