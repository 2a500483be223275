package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of money movement.
type TransactionType string

const (
	Credit TransactionType = "Credit"
	Debit  TransactionType = "Debit"
)

// ParseTransactionType accepts "credit"/"debit" in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit":
		return Credit, nil
	case "debit":
		return Debit, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// TransactionStatus is the lifecycle state of a ledger transaction.
type TransactionStatus string

const (
	StatusApplied TransactionStatus = "applied"
	StatusDeleted TransactionStatus = "deleted"
)

// Provenance records where a transaction came from.
type Provenance string

const (
	ProvenanceAuto   Provenance = "auto"
	ProvenanceManual Provenance = "manual"
)

// Transaction is a ledger entry whose amount is reflected in the user's balance
// while its status is applied.
type Transaction struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"-"`
	MessageText string            `json:"-"`
	Fingerprint string            `json:"message_hash"`
	Type        TransactionType   `json:"transaction_type"`
	Amount      decimal.Decimal   `json:"amount"`
	Merchant    string            `json:"merchant_or_source"`
	Category    Category          `json:"category"`
	Status      TransactionStatus `json:"status"`
	Provenance  Provenance        `json:"provenance"`
	RawResponse string            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   *time.Time        `json:"deleted_at,omitempty"`
}

// Balance is the per-user running total.
type Balance struct {
	UserID         int64           `json:"-"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	TotalCredits   decimal.Decimal `json:"total_credits"`
	TotalDebits    decimal.Decimal `json:"total_debits"`
	Version        int64           `json:"-"`
	UpdatedAt      time.Time       `json:"last_updated"`
}

// Applied returns the balance after applying amount in direction t.
func (b Balance) Applied(t TransactionType, amount decimal.Decimal) Balance {
	switch t {
	case Credit:
		b.CurrentBalance = b.CurrentBalance.Add(amount)
		b.TotalCredits = b.TotalCredits.Add(amount)
	case Debit:
		b.CurrentBalance = b.CurrentBalance.Sub(amount)
		b.TotalDebits = b.TotalDebits.Add(amount)
	}
	return b
}

// Reversed is the exact inverse of Applied.
func (b Balance) Reversed(t TransactionType, amount decimal.Decimal) Balance {
	switch t {
	case Credit:
		b.CurrentBalance = b.CurrentBalance.Sub(amount)
		b.TotalCredits = b.TotalCredits.Sub(amount)
	case Debit:
		b.CurrentBalance = b.CurrentBalance.Add(amount)
		b.TotalDebits = b.TotalDebits.Sub(amount)
	}
	return b
}
