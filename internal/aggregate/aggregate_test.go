package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func tx(id string, amount float64, date core.Date, typ core.Type, category string) core.Transaction {
	return core.Transaction{ID: id, Name: id, Amount: amount, Date: date, Type: typ, Category: category}
}

func scenario() []core.Transaction {
	return []core.Transaction{
		tx("salary", 1000, core.NewDate(2024, 1, 1), core.Income, "work"),
		tx("food", 200, core.NewDate(2024, 1, 5), core.Expense, "food"),
	}
}

func TestScenario(t *testing.T) {
	txs := scenario()

	assert.Equal(t, Totals{Income: 1000, Expense: 200, Balance: 800}, ComputeTotals(txs))
	assert.Equal(t, map[string]float64{"food": 200}, CategoryBreakdown(txs))
	assert.Equal(t, []Point{
		{Date: core.NewDate(2024, 1, 1), Balance: 1000},
		{Date: core.NewDate(2024, 1, 5), Balance: 800},
	}, BalanceSeries(txs))
}

func TestTotalsEmpty(t *testing.T) {
	assert.Equal(t, Totals{}, ComputeTotals(nil))
	assert.Empty(t, BalanceSeries(nil))
	assert.Empty(t, CategoryBreakdown(nil))
}

func TestBalanceIdentityAndSeriesEnd(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var txs []core.Transaction
	for i := 0; i < 200; i++ {
		typ := core.Expense
		if r.Intn(2) == 0 {
			typ = core.Income
		}
		amount := math.Round(r.Float64()*100000) / 100
		if amount == 0 {
			amount = 0.01
		}
		txs = append(txs, tx(core.NewID(), amount, core.NewDate(2024, 1+r.Intn(12), 1+r.Intn(28)), typ, "c"))
	}

	totals := ComputeTotals(txs)
	assert.InDelta(t, totals.Income-totals.Expense, totals.Balance, 1e-9)

	series := BalanceSeries(txs)
	require.Len(t, series, len(txs))
	for i := 1; i < len(series); i++ {
		assert.False(t, series[i].Date.Before(series[i-1].Date.Time), "series out of order at %d", i)
	}
	assert.InDelta(t, totals.Balance, series[len(series)-1].Balance, 1e-6)
}

func TestBalanceSeriesStableOnTies(t *testing.T) {
	d := core.NewDate(2024, 3, 1)
	txs := []core.Transaction{
		tx("late", 50, core.NewDate(2024, 3, 2), core.Expense, "x"),
		tx("a", 100, d, core.Income, "x"),
		tx("b", 30, d, core.Expense, "x"),
	}
	got := BalanceSeries(txs)
	assert.Equal(t, []float64{100, 70, 20}, []float64{got[0].Balance, got[1].Balance, got[2].Balance})
	assert.Equal(t, "late", txs[0].ID, "input must not be reordered")
}

func TestBudgetUsage(t *testing.T) {
	spend := func(amount float64) []core.Transaction {
		return []core.Transaction{tx("e", amount, core.NewDate(2024, 1, 1), core.Expense, "x")}
	}
	tests := []struct {
		name    string
		txs     []core.Transaction
		limit   float64
		percent float64
		level   Level
	}{
		{"clamped", spend(1500), 1000, 100, LevelOver},
		{"half", spend(500), 1000, 50, LevelOK},
		{"warning", spend(800), 1000, 80, LevelWarning},
		{"exact", spend(1000), 1000, 100, LevelOver},
		{"nothing spent", nil, 1000, 0, LevelOK},
		{"zero limit spent", spend(1), 0, 100, LevelOver},
		{"zero limit unspent", nil, 0, 0, LevelOK},
		{"income ignored", []core.Transaction{tx("i", 5000, core.NewDate(2024, 1, 1), core.Income, "x")}, 1000, 0, LevelOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BudgetUsage(tt.txs, tt.limit)
			assert.InDelta(t, tt.percent, b.Percent, 1e-9)
			assert.LessOrEqual(t, b.Percent, 100.0)
			assert.Equal(t, tt.level, b.Level)
			assert.Equal(t, tt.limit, b.Limit)
		})
	}
}

func TestCategories(t *testing.T) {
	txs := []core.Transaction{
		tx("1", 10, core.NewDate(2024, 1, 1), core.Expense, "food"),
		tx("2", 30, core.NewDate(2024, 1, 2), core.Expense, "rent"),
		tx("3", 20, core.NewDate(2024, 1, 3), core.Expense, "food"),
		tx("4", 5, core.NewDate(2024, 1, 3), core.Expense, "bus"),
		tx("5", 5, core.NewDate(2024, 1, 3), core.Expense, "art"),
		tx("6", 999, core.NewDate(2024, 1, 3), core.Income, "work"),
	}
	assert.Equal(t, []CategoryAmount{
		{"food", 30}, {"rent", 30}, {"art", 5}, {"bus", 5},
	}, Categories(txs))
}

func TestSummarize(t *testing.T) {
	txs := scenario()
	r := Summarize(txs, 1000)
	assert.Equal(t, ComputeTotals(txs), r.Totals)
	assert.Equal(t, BudgetUsage(txs, 1000), r.Budget)
	assert.Equal(t, Categories(txs), r.Categories)
	assert.Equal(t, BalanceSeries(txs), r.Balance)
}
