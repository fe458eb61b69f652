package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the settlement state reported by bank sync.
type TransactionStatus string

// Transaction status constants.
const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TransactionType describes the direction of money movement.
type TransactionType string

// Transaction type constants.
const (
	TypeDebit    TransactionType = "debit"
	TypeCredit   TransactionType = "credit"
	TypeTransfer TransactionType = "transfer"
)

// Transaction represents a single bank transaction produced by the ingestion job.
type Transaction struct {
	Date             time.Time
	ID               string
	Description      string
	CounterpartyName string
	Reference        string
	AccountID        string
	Status           TransactionStatus
	Type             TransactionType
	Amount           decimal.Decimal
}

// CounterpartyKey is the case-folded form under which transactions from the
// same counterparty are grouped. Folding is Unicode-aware.
func CounterpartyKey(name string) string {
	return strings.ToLower(name)
}

// CounterpartyKey returns the grouping key of the transaction's counterparty.
func (t *Transaction) CounterpartyKey() string {
	return CounterpartyKey(t.CounterpartyName)
}

// SearchText is the lowercased description and counterparty joined by a space.
func (t *Transaction) SearchText() string {
	return strings.ToLower(t.Description + " " + t.CounterpartyName)
}
