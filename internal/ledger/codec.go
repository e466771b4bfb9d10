package ledger

import (
	"encoding/json"
	"strings"

	"fintrack/internal/core"
)

// Encode serializes the ledger as a JSON array. An empty ledger is "[]".
func Encode(items []core.Transaction) ([]byte, error) {
	if items == nil {
		items = []core.Transaction{}
	}
	return json.Marshal(items)
}

// Decode parses a persisted blob without ever failing. A blob that is not a
// JSON array is reported as malformed and yields no transactions. Elements
// that cannot be read or do not validate are dropped and counted; a missing
// id is replaced, categories are normalized and repeated ids keep their
// first occurrence.
func Decode(blob []byte) (items []core.Transaction, dropped int, malformed bool) {
	var raw []json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, 0, true
	}

	seen := make(map[string]struct{}, len(raw))
	items = make([]core.Transaction, 0, len(raw))
	for _, r := range raw {
		var tx core.Transaction
		if err := json.Unmarshal(r, &tx); err != nil {
			dropped++
			continue
		}
		tx.Name = strings.TrimSpace(tx.Name)
		tx.Category = core.NormalizeCategory(tx.Category)
		if strings.TrimSpace(tx.ID) == "" {
			tx.ID = core.NewID()
		}
		if _, dup := seen[tx.ID]; dup {
			dropped++
			continue
		}
		if err := tx.Validate(); err != nil {
			dropped++
			continue
		}
		seen[tx.ID] = struct{}{}
		items = append(items, tx)
	}
	return items, dropped, false
}
