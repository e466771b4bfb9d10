package tracker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/aggregate"
	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/kv"
	"fintrack/internal/kv/memory"
	"fintrack/internal/ledger"
	"fintrack/internal/theme"
	"fintrack/internal/undo"
)

type manualTimer struct {
	f       func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := !m.stopped
	m.stopped = true
	return was
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) undo.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer that was not stopped.
func (c *manualClock) fireAll() {
	c.mu.Lock()
	timers := append([]*manualTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.f()
		}
	}
}

type event struct {
	kind string
	id   string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (r *recordingNotifier) PublishChange(_ context.Context, kind, id string, _ uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, id})
	return r.err
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

type fixture struct {
	tracker  *Tracker
	store    *memory.Store
	clock    *manualClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	l, err := ledger.Open(ctx, store)
	require.NoError(t, err)

	clock := &manualClock{}
	notifier := &recordingNotifier{}
	tr := New(l,
		WithNotifier(notifier),
		WithTheme(theme.New(store, theme.Light, nil)),
		WithUndoOptions(undo.WithAfterFunc(clock.AfterFunc)),
	)
	return &fixture{tracker: tr, store: store, clock: clock, notifier: notifier}
}

func (f *fixture) persistedIDs(t *testing.T) []string {
	t.Helper()
	blob, err := f.store.Get(context.Background(), kv.LedgerKey)
	require.NoError(t, err)
	items, _, malformed := ledger.Decode(blob)
	require.False(t, malformed)
	var ids []string
	for _, tx := range items {
		ids = append(ids, tx.ID)
	}
	return ids
}

func (f *fixture) seed(t *testing.T) (income, expense core.Transaction) {
	t.Helper()
	ctx := context.Background()
	income, err := f.tracker.SubmitNew(ctx, Fields{Name: "Salary", Amount: "1000", Date: "2024-01-01", Type: "income", Category: "work"})
	require.NoError(t, err)
	expense, err = f.tracker.SubmitNew(ctx, Fields{Name: "Lunch", Amount: "200", Date: "2024-01-05", Type: "expense", Category: "Food"})
	require.NoError(t, err)
	return income, expense
}

func TestScenarioTotalsAndCharts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	assert.Equal(t, aggregate.Totals{Income: 1000, Expense: 200, Balance: 800}, f.tracker.Totals())
	assert.Equal(t, map[string]float64{"food": 200}, f.tracker.CategoryBreakdown())

	series := f.tracker.BalanceSeries()
	require.Len(t, series, 2)
	assert.Equal(t, "2024-01-01", series[0].Date.String())
	assert.Equal(t, 1000.0, series[0].Balance)
	assert.Equal(t, "2024-01-05", series[1].Date.String())
	assert.Equal(t, 800.0, series[1].Balance)

	b := f.tracker.Budget()
	assert.Equal(t, 200.0, b.Spent)
	assert.InDelta(t, 20, b.Percent, 1e-9)
}

func TestSubmitNewRejectsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields Fields
		field  core.Field
	}{
		{"zero amount", Fields{Name: "x", Amount: "0", Date: "2024-01-01", Type: "expense"}, core.FieldAmount},
		{"empty name", Fields{Name: " ", Amount: "5", Date: "2024-01-01", Type: "expense"}, core.FieldName},
		{"no date", Fields{Name: "x", Amount: "5", Type: "expense"}, core.FieldDate},
		{"bad type", Fields{Name: "x", Amount: "5", Date: "2024-01-01", Type: "gift"}, core.FieldType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tracker.SubmitNew(ctx, tt.fields)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.tracker.Transactions())
	assert.Empty(t, f.notifier.kinds())
}

func TestDeleteThenUndoRestoresOriginalIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)
	_, err := f.tracker.SubmitNew(ctx, Fields{Name: "Bus", Amount: "3", Date: "2024-01-03", Type: "expense", Category: "transport"})
	require.NoError(t, err)

	before := f.tracker.Transactions()
	target := before[1]

	d, err := f.tracker.RequestDelete(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Index)
	assert.NotContains(t, f.persistedIDs(t), target.ID, "deletions are written immediately")

	pending, ok := f.tracker.UndoPending()
	require.True(t, ok)
	assert.Equal(t, target.ID, pending.Transaction.ID)

	restored, err := f.tracker.RequestUndo(ctx)
	require.NoError(t, err)
	assert.Equal(t, target, restored)
	assert.Equal(t, before, f.tracker.Transactions())
	assert.Contains(t, f.persistedIDs(t), target.ID)

	_, ok = f.tracker.UndoPending()
	assert.False(t, ok)

	f.clock.fireAll()
	assert.Equal(t, before, f.tracker.Transactions())
}

func TestDeleteExpiresWithoutUndo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	income, expense := f.seed(t)

	_, err := f.tracker.RequestDelete(ctx, expense.ID)
	require.NoError(t, err)

	f.clock.fireAll()

	_, err = f.tracker.RequestUndo(ctx)
	assert.ErrorIs(t, err, ErrNothingToUndo)
	assert.Equal(t, []core.Transaction{income}, f.tracker.Transactions())
	assert.Equal(t, []string{income.ID}, f.persistedIDs(t))
	assert.Equal(t, []string{amqp.KindAdded, amqp.KindAdded, amqp.KindRemoved, amqp.KindExpired}, f.notifier.kinds())
}

func TestSecondDeleteDiscardsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	income, expense := f.seed(t)

	_, err := f.tracker.RequestDelete(ctx, expense.ID)
	require.NoError(t, err)
	_, err = f.tracker.RequestDelete(ctx, income.ID)
	require.NoError(t, err)

	restored, err := f.tracker.RequestUndo(ctx)
	require.NoError(t, err)
	assert.Equal(t, income.ID, restored.ID)

	_, err = f.tracker.RequestUndo(ctx)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	assert.Equal(t, []core.Transaction{income}, f.tracker.Transactions())
}

func TestDeleteUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.RequestDelete(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, ok := f.tracker.UndoPending()
	assert.False(t, ok)
}

func TestEditField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, expense := f.seed(t)

	tx, err := f.tracker.EditField(ctx, expense.ID, "amount", "-250")
	require.NoError(t, err)
	assert.Equal(t, 250.0, tx.Amount)

	tx, err = f.tracker.EditField(ctx, expense.ID, "amount", "zero")
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 250.0, tx.Amount)

	_, err = f.tracker.EditField(ctx, expense.ID, "type", "income")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.tracker.EditField(ctx, "missing", "name", "x")
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, 250.0, f.tracker.Totals().Expense)
}

func TestChangeFilterAndView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	income, expense := f.seed(t)

	assert.Equal(t, "food", f.tracker.ChangeFilter(" FOOD "))
	v := f.tracker.View(ctx)
	assert.Equal(t, "food", v.Filter)
	assert.Equal(t, []core.Transaction{expense}, v.Transactions)
	assert.Equal(t, 800.0, v.Totals.Balance, "totals ignore the filter")
	assert.Equal(t, theme.Light, v.Theme)
	assert.Nil(t, v.Undo)

	assert.Equal(t, "all", f.tracker.ChangeFilter("all"))
	v = f.tracker.View(ctx)
	assert.Equal(t, []core.Transaction{income, expense}, v.Transactions, "incomes list first")

	_, err := f.tracker.RequestDelete(ctx, income.ID)
	require.NoError(t, err)
	v = f.tracker.View(ctx)
	require.NotNil(t, v.Undo)
	assert.Equal(t, income.ID, v.Undo.Transaction.ID)
}

func TestToggleTheme(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	next, err := f.tracker.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, theme.Dark, next)
	assert.Equal(t, theme.Dark, f.tracker.Theme(ctx))
}

func TestCloseFinalisesPendingDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	income, expense := f.seed(t)

	_, err := f.tracker.RequestDelete(ctx, expense.ID)
	require.NoError(t, err)
	require.NoError(t, f.tracker.Close(ctx))

	_, ok := f.tracker.UndoPending()
	assert.False(t, ok)
	assert.Equal(t, []string{income.ID}, f.persistedIDs(t))
}

func TestNotifierFailureDoesNotFailIntent(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	_, err := f.tracker.SubmitNew(context.Background(), Fields{Name: "x", Amount: "1", Date: "2024-01-01", Type: "income"})
	assert.NoError(t, err)
}

func TestReportsAreCachedPerRevision(t *testing.T) {
	f := newFixture(t)
	_, expense := f.seed(t)
	ctx := context.Background()

	first := f.tracker.Totals()
	assert.Equal(t, first, f.tracker.Totals())
	f.tracker.Budget()
	stats := f.tracker.ReportCacheStats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(2), stats.Hits)

	_, err := f.tracker.EditField(ctx, expense.ID, "amount", "300")
	require.NoError(t, err)
	assert.Equal(t, 300.0, f.tracker.Totals().Expense)
	assert.Equal(t, uint64(2), f.tracker.ReportCacheStats().Misses)

	cats := f.tracker.Categories()
	cats[0].Amount = -1
	assert.Equal(t, 300.0, f.tracker.Categories()[0].Amount)
}

func TestSummaryComesFromOneRevision(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	r := f.tracker.Summary()
	assert.Equal(t, aggregate.Totals{Income: 1000, Expense: 200, Balance: 800}, r.Totals)
	assert.Equal(t, 200.0, r.Budget.Spent)
	assert.Equal(t, f.tracker.Categories(), r.Categories)
	assert.Equal(t, f.tracker.BalanceSeries(), r.Balance)
}

func TestWithBudgetLimitIgnoresNonFinite(t *testing.T) {
	l, err := ledger.Open(context.Background(), memory.New())
	require.NoError(t, err)

	for _, limit := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		tr := New(l, WithBudgetLimit(limit))
		assert.Equal(t, float64(DefaultBudgetLimit), tr.Budget().Limit)
	}
	assert.Equal(t, 50.0, New(l, WithBudgetLimit(50)).Budget().Limit)
}
