// Package aggregate computes the derived views of a ledger snapshot: totals,
// budget usage, the category breakdown and the running balance. Every
// function is pure and leaves its input untouched.
package aggregate

import (
	"sort"

	"fintrack/internal/core"
)

// Budget gauge bands.
const (
	LevelOK      Level = "ok"
	LevelWarning Level = "warning"
	LevelOver    Level = "over"

	warningPercent = 75
)

type (
	Totals struct {
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
		Balance float64 `json:"balance"`
	}

	Level string

	Budget struct {
		Spent   float64 `json:"spent"`
		Limit   float64 `json:"limit"`
		Percent float64 `json:"percent"`
		Level   Level   `json:"level"`
	}

	CategoryAmount struct {
		Category string  `json:"category"`
		Amount   float64 `json:"amount"`
	}

	// Point is the running balance after every transaction of Date has been
	// applied in order.
	Point struct {
		Date    core.Date `json:"date"`
		Balance float64   `json:"balance"`
	}

	// Report bundles every whole-ledger aggregate of one snapshot.
	Report struct {
		Totals     Totals           `json:"totals"`
		Budget     Budget           `json:"budget"`
		Categories []CategoryAmount `json:"categories"`
		Balance    []Point          `json:"balance"`
	}
)

// Summarize computes the full Report for txs against the budget limit.
func Summarize(txs []core.Transaction, limit float64) Report {
	return Report{
		Totals:     ComputeTotals(txs),
		Budget:     BudgetUsage(txs, limit),
		Categories: Categories(txs),
		Balance:    BalanceSeries(txs),
	}
}

func ComputeTotals(txs []core.Transaction) Totals {
	var t Totals
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			t.Income += tx.Amount
		case core.Expense:
			t.Expense += tx.Amount
		}
	}
	t.Balance = t.Income - t.Expense
	return t
}

// BudgetUsage compares expense spend with limit. Percent is clamped to 100.
// A non-positive limit counts as fully used as soon as anything is spent.
func BudgetUsage(txs []core.Transaction, limit float64) Budget {
	spent := ComputeTotals(txs).Expense
	b := Budget{Spent: spent, Limit: limit}
	switch {
	case limit <= 0:
		if spent > 0 {
			b.Percent = 100
		}
	default:
		b.Percent = min(spent/limit*100, 100)
	}
	b.Level = levelFor(b.Percent)
	return b
}

func levelFor(percent float64) Level {
	switch {
	case percent >= 100:
		return LevelOver
	case percent >= warningPercent:
		return LevelWarning
	default:
		return LevelOK
	}
}

// CategoryBreakdown sums expense amounts per category.
func CategoryBreakdown(txs []core.Transaction) map[string]float64 {
	out := make(map[string]float64)
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		out[tx.Category] += tx.Amount
	}
	return out
}

// Categories is CategoryBreakdown ordered by amount descending, then by name.
func Categories(txs []core.Transaction) []CategoryAmount {
	breakdown := CategoryBreakdown(txs)
	out := make([]CategoryAmount, 0, len(breakdown))
	for c, amt := range breakdown {
		out = append(out, CategoryAmount{Category: c, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// BalanceSeries visits the ledger in ascending date order and records the
// running balance after each transaction. Transactions sharing a date keep
// their relative order.
func BalanceSeries(txs []core.Transaction) []Point {
	sorted := append([]core.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	out := make([]Point, 0, len(sorted))
	var balance float64
	for _, tx := range sorted {
		balance += tx.Signed()
		out = append(out, Point{Date: tx.Date, Balance: balance})
	}
	return out
}
