package core

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Income  Type = "income"
	Expense Type = "expense"

	DefaultCategory = "other"
)

const (
	FieldName     Field = "name"
	FieldAmount   Field = "amount"
	FieldDate     Field = "date"
	FieldCategory Field = "category"
	FieldType     Field = "type"
)

type (
	Type string

	// Field names an editable attribute of a Transaction.
	Field string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID       string  `json:"id"`
		Name     string  `json:"name"`
		Amount   float64 `json:"amount"` // always positive, see Signed
		Date     Date    `json:"date"`
		Type     Type    `json:"type"`
		Category string  `json:"category"`
	}

	// NewTransaction carries the user supplied fields of a transaction
	// that has not been assigned an ID yet.
	NewTransaction struct {
		Name     string
		Amount   float64
		Date     Date
		Type     Type
		Category string
	}
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day at UTC midnight
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp (with or without
// fractional seconds). The time of day is dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if y := d.Year(); y < 1 || y > 9999 {
		return ErrInvalidDate
	}
	return nil
}

// String returns the date as YYYY-MM-DD
func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t Type) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	}
	return ErrInvalidType
}

// ParseType maps user input to a Type. Anything other than "income" or
// "expense" (case-insensitive) is rejected.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// ParseField returns the editable field named by raw.
func ParseField(raw string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(raw))); f {
	case FieldName, FieldAmount, FieldDate, FieldCategory:
		return f, nil
	}
	return "", ErrUnknownField
}

// NormalizeCategory trims and lowercases a category, falling back to
// DefaultCategory when nothing is left.
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultCategory
	}
	return s
}

func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func ValidateCategory(category string) error {
	if category == "" || category != strings.ToLower(strings.TrimSpace(category)) {
		return ErrInvalidCategory
	}
	return nil
}

// Normalize returns a copy with trimmed name and normalized category.
func (n NewTransaction) Normalize() NewTransaction {
	n.Name = strings.TrimSpace(n.Name)
	n.Category = NormalizeCategory(n.Category)
	return n
}

func (n NewTransaction) Validate() error {
	if err := ValidateName(n.Name); err != nil {
		return &ValidationError{Field: FieldName, Err: err}
	}
	if err := ValidateAmount(n.Amount); err != nil {
		return &ValidationError{Field: FieldAmount, Err: err}
	}
	if err := n.Date.Validate(); err != nil {
		return &ValidationError{Field: FieldDate, Err: err}
	}
	if err := n.Type.Validate(); err != nil {
		return &ValidationError{Field: FieldType, Err: err}
	}
	if err := ValidateCategory(n.Category); err != nil {
		return &ValidationError{Field: FieldCategory, Err: err}
	}
	return nil
}

// Build normalizes and validates n, then assigns a fresh ID.
func (n NewTransaction) Build() (Transaction, error) {
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:       NewID(),
		Name:     n.Name,
		Amount:   n.Amount,
		Date:     n.Date,
		Type:     n.Type,
		Category: n.Category,
	}, nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrEmptyID}
	}
	return NewTransaction{
		Name:     t.Name,
		Amount:   t.Amount,
		Date:     t.Date,
		Type:     t.Type,
		Category: t.Category,
	}.Validate()
}

// Signed returns the amount with the sign implied by the type.
func (t Transaction) Signed() float64 {
	if t.Type == Income {
		return t.Amount
	}
	return -t.Amount
}

// NewID returns a new opaque transaction identifier.
func NewID() string {
	return uuid.NewString()
}
