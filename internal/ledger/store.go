// Package ledger owns the ordered collection of transactions and keeps the
// persisted copy in step with it. Every mutation rewrites the whole blob.
package ledger

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/kv"
	"fintrack/internal/log"
)

// Removed is what Remove hands back so the deletion can be undone.
type Removed struct {
	Transaction core.Transaction
	Index       int
}

type Option func(*Store)

// WithLogger sets the logger used for load warnings and mutation traces.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

// WithKey overrides the key the ledger blob is stored under.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	key      string
	items    []core.Transaction
	revision uint64
	logger   *log.Logger
}

// New returns an empty, unloaded store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		key:    kv.LedgerKey,
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and loads the persisted ledger.
func Open(ctx context.Context, store kv.Store, opts ...Option) (*Store, error) {
	s := New(store, opts...)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory ledger with the persisted one. A missing or
// unreadable blob yields an empty ledger; only a failing backend read is
// reported, as a *core.PersistenceError.
func (s *Store) Load(ctx context.Context) error {
	blob, err := s.kv.Get(ctx, s.key)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.ErrorContext(ctx, "Failed to read ledger", log.FieldError, err, log.FieldOperation, log.OpLoad)
		return &core.PersistenceError{Op: "read ledger", Err: err}
	}

	var items []core.Transaction
	if err == nil {
		var dropped int
		var malformed bool
		items, dropped, malformed = Decode(blob)
		if malformed {
			s.logger.WarnContext(ctx, "Persisted ledger is malformed, starting empty", log.FieldOperation, log.OpLoad)
		} else if dropped > 0 {
			s.logger.WarnContext(ctx, "Dropped unreadable transactions", log.FieldCount, dropped, log.FieldOperation, log.OpLoad)
		}
	}

	sortNewestFirst(items)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.revision++
	s.logger.InfoContext(ctx, "Ledger loaded", log.FieldCount, len(items), log.FieldOperation, log.OpLoad)
	return nil
}

// Add validates n, assigns an ID, appends it and persists. A validation
// failure leaves the ledger untouched. A persistence failure is returned
// together with the added transaction, which stays in memory.
func (s *Store) Add(ctx context.Context, n core.NewTransaction) (core.Transaction, error) {
	tx, err := n.Build()
	if err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, tx)
	s.revision++

	s.logger.DebugContext(ctx, "Transaction added", log.NewFields().
		WithTransaction(tx.ID, tx.Name, string(tx.Type), tx.Amount, tx.Category, tx.Date.String()).
		WithOperation(log.OpAdd).ToSlice()...)

	return tx, s.persistLocked(ctx)
}

// Remove deletes the transaction with the given id and reports where it sat.
func (s *Store) Remove(ctx context.Context, id string) (Removed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Removed{}, core.NotFound(id)
	}
	removed := Removed{Transaction: s.items[idx], Index: idx}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.revision++

	s.logger.DebugContext(ctx, "Transaction removed", log.FieldTxID, id, log.FieldIndex, idx, log.FieldOperation, log.OpRemove)
	return removed, s.persistLocked(ctx)
}

// RestoreAt re-inserts tx at index, clamped to the current bounds.
func (s *Store) RestoreAt(ctx context.Context, tx core.Transaction, index int) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(tx.ID) >= 0 {
		return &core.ValidationError{Field: "id", Err: core.ErrDuplicateID}
	}
	index = max(0, min(index, len(s.items)))
	s.items = append(s.items, core.Transaction{})
	copy(s.items[index+1:], s.items[index:])
	s.items[index] = tx
	s.revision++

	s.logger.DebugContext(ctx, "Transaction restored", log.FieldTxID, tx.ID, log.FieldIndex, index, log.FieldOperation, log.OpRestore)
	return s.persistLocked(ctx)
}

// Update changes one field of an existing transaction. The raw value goes
// through the same validation as Add; when it is rejected the previous value
// is kept and a *core.ValidationError is returned.
func (s *Store) Update(ctx context.Context, id string, field core.Field, raw string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return core.Transaction{}, core.NotFound(id)
	}

	tx := s.items[idx]
	switch field {
	case core.FieldName:
		name := strings.TrimSpace(raw)
		if err := core.ValidateName(name); err != nil {
			return tx, &core.ValidationError{Field: field, Err: err}
		}
		tx.Name = name
	case core.FieldAmount:
		amount, err := core.ParseAmount(raw)
		if err != nil {
			return tx, &core.ValidationError{Field: field, Err: err}
		}
		tx.Amount = amount
	case core.FieldDate:
		date, err := core.ParseDate(raw)
		if err == nil {
			err = date.Validate()
		}
		if err != nil {
			return tx, &core.ValidationError{Field: field, Err: err}
		}
		tx.Date = date
	case core.FieldCategory:
		tx.Category = core.NormalizeCategory(raw)
	default:
		return tx, &core.ValidationError{Field: field, Err: core.ErrUnknownField}
	}

	s.items[idx] = tx
	s.revision++

	s.logger.DebugContext(ctx, "Transaction updated", log.FieldTxID, id, log.FieldField, string(field), log.FieldOperation, log.OpUpdate)
	return tx, s.persistLocked(ctx)
}

// Persist sorts the ledger newest first and overwrites the stored blob.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	sortNewestFirst(s.items)

	blob, err := Encode(s.items)
	if err != nil {
		return &core.PersistenceError{Op: "encode ledger", Err: err}
	}
	if err := s.kv.Put(ctx, s.key, blob); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledger, keeping in-memory state",
			log.FieldError, err, log.FieldCount, len(s.items), log.FieldOperation, log.OpPersist)
		return &core.PersistenceError{Op: "write ledger", Err: err}
	}
	return nil
}

// Snapshot returns a copy of the ledger in its current order.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...)
}

// Versioned returns a snapshot together with the revision it was taken at.
func (s *Store) Versioned() ([]core.Transaction, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...), s.revision
}

// Get returns the transaction with the given id.
func (s *Store) Get(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.items[idx], true
	}
	return core.Transaction{}, false
}

// Len returns the number of transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Revision increases on every load and mutation.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// sortNewestFirst orders by date descending, keeping the relative order of
// transactions that share a date.
func sortNewestFirst(items []core.Transaction) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.After(items[j].Date.Time)
	})
}

func (s *Store) indexLocked(id string) int {
	for i, tx := range s.items {
		if tx.ID == id {
			return i
		}
	}
	return -1
}
