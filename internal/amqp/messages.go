package amqp

import (
	"encoding/json"
	"time"
)

// Change kinds carried by LedgerEvent.
const (
	KindAdded    = "added"
	KindRemoved  = "removed"
	KindRestored = "restored"
	KindUpdated  = "updated"
	KindExpired  = "expired"
)

// LedgerEvent announces a committed ledger mutation. Consumers re-read the
// ledger for the full record; the event only names what changed.
type LedgerEvent struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Revision  uint64    `json:"revision"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind, id string, revision uint64) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		ID:        id,
		Revision:  revision,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
