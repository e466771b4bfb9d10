package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestEncodeEmpty(t *testing.T) {
	blob, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(blob))
}

func TestEncodeShape(t *testing.T) {
	blob, err := Encode([]core.Transaction{{
		ID: "abc", Name: "Food", Amount: 200, Date: core.NewDate(2024, 1, 5), Type: core.Expense, Category: "food",
	}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"id":"abc","name":"Food","amount":200,"date":"2024-01-05T00:00:00Z","type":"expense","category":"food"}]`,
		string(blob))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		blob      string
		wantLen   int
		dropped   int
		malformed bool
	}{
		{"not json", `oops`, 0, 0, true},
		{"object not array", `{"id":"a"}`, 0, 0, true},
		{"empty array", `[]`, 0, 0, false},
		{"null", `null`, 0, 0, false},
		{"valid", `[{"id":"a","name":"x","amount":1,"date":"2024-01-01","type":"income","category":"work"}]`, 1, 0, false},
		{"negative amount dropped", `[{"id":"a","name":"x","amount":-1,"date":"2024-01-01","type":"income","category":"work"}]`, 0, 1, false},
		{"bad date dropped", `[{"id":"a","name":"x","amount":1,"date":"soon","type":"income"}]`, 0, 1, false},
		{"wrong element kind dropped", `[1, "two", {"id":"a","name":"x","amount":1,"date":"2024-01-01","type":"expense"}]`, 1, 2, false},
		{"duplicate id keeps first", `[
			{"id":"a","name":"x","amount":1,"date":"2024-01-01","type":"expense"},
			{"id":"a","name":"y","amount":2,"date":"2024-01-02","type":"expense"}
		]`, 1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, dropped, malformed := Decode([]byte(tt.blob))
			assert.Len(t, items, tt.wantLen)
			assert.Equal(t, tt.dropped, dropped)
			assert.Equal(t, tt.malformed, malformed)
		})
	}
}

func TestDecodeNormalizes(t *testing.T) {
	items, dropped, malformed := Decode([]byte(`[{"name":"  Lunch ","amount":9.5,"date":"2024-01-01T12:00:00.000Z","type":"expense","category":" Food "}]`))
	require.False(t, malformed)
	require.Zero(t, dropped)
	require.Len(t, items, 1)

	tx := items[0]
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Lunch", tx.Name)
	assert.Equal(t, "food", tx.Category)
	assert.Equal(t, "2024-01-01", tx.Date.String())
}

func TestDecodeMissingCategoryDefaults(t *testing.T) {
	items, _, _ := Decode([]byte(`[{"id":"a","name":"x","amount":1,"date":"2024-01-01","type":"income"}]`))
	require.Len(t, items, 1)
	assert.Equal(t, core.DefaultCategory, items[0].Category)
}
