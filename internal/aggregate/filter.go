package aggregate

import (
	"sort"
	"strings"

	"fintrack/internal/core"
)

// FilterAll matches every transaction.
const FilterAll = "all"

// Filter selects transactions by type or category. The zero value matches
// everything.
type Filter struct {
	Type     core.Type
	Category string
}

// ParseFilter interprets "all" (or nothing), "income", "expense" or a
// category name. Matching is case-insensitive.
func ParseFilter(raw string) Filter {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "", FilterAll:
		return Filter{}
	case string(core.Income), string(core.Expense):
		return Filter{Type: core.Type(v)}
	}
	return Filter{Category: v}
}

func (f Filter) IsAll() bool {
	return f.Type == "" && f.Category == ""
}

// String returns the value ParseFilter would read back into f.
func (f Filter) String() string {
	switch {
	case f.IsAll():
		return FilterAll
	case f.Type != "":
		return string(f.Type)
	}
	return f.Category
}

func (f Filter) Match(tx core.Transaction) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Category != "" && core.NormalizeCategory(tx.Category) != f.Category {
		return false
	}
	return true
}

// Apply returns the matching transactions in their original order.
func (f Filter) Apply(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// FilterBy is shorthand for ParseFilter(value).Apply(txs).
func FilterBy(txs []core.Transaction, value string) []core.Transaction {
	return ParseFilter(value).Apply(txs)
}

// Listing returns the filtered transactions in list order: incomes first,
// then expenses, each newest first.
func Listing(txs []core.Transaction, f Filter) []core.Transaction {
	out := f.Apply(txs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type == core.Income
		}
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}
