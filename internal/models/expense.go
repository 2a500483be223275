package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// API clients read amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Expense represents a manually entered expense record.
type Expense struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"-"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	Category     Category        `json:"category"`
	Date         time.Time       `json:"date"`
	AIClassified bool            `json:"ai_classified"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Income represents a manually entered income record.
type Income struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	Source    string          `json:"source"`
	Date      time.Time       `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

// User represents a user account.
type User struct {
	ID                      int64     `json:"id"`
	Username                string    `json:"username"`
	Email                   string    `json:"email"`
	PasswordHash            string    `json:"-"`
	PreferredCurrency       string    `json:"preferred_currency"`
	PreferredCurrencySymbol string    `json:"preferred_currency_symbol,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}
