// Package ledger turns bank alert messages into applied transactions and keeps
// each user's running balance consistent with them.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateMessage = errors.New("duplicate message")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("transaction not found")
	ErrAlreadyDeleted   = errors.New("transaction already deleted")
	ErrConcurrentUpdate = errors.New("concurrent balance update")
)

const (
	MinMessageLength = 10
	MaxMessageLength = 2000

	DefaultListLimit = 50
	MaxListLimit     = 100

	maxAttempts = 3
)

// Extraction is the structured reading of a message returned by an Extractor.
// Type and Category are unvalidated model output.
type Extraction struct {
	Type     string
	Amount   decimal.Decimal
	Merchant string
	Category string
	Raw      string
}

// Extractor reads a free-text bank alert into an Extraction.
type Extractor interface {
	ExtractTransaction(ctx context.Context, message string) (Extraction, error)
}

// Fingerprint identifies a message for duplicate detection. Surrounding
// whitespace is ignored; case is not.
func Fingerprint(message string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(message)))
	return hex.EncodeToString(sum[:])
}

// Candidate is a validated extraction ready to be applied.
type Candidate struct {
	Type     models.TransactionType
	Amount   decimal.Decimal
	Merchant string
	Category models.Category
}

// Validate checks an extraction and normalizes its category. Unknown
// categories become Other; a bad type or a non-positive amount is rejected.
func Validate(ext Extraction) (Candidate, error) {
	typ, err := models.ParseTransactionType(ext.Type)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !ext.Amount.IsPositive() {
		return Candidate{}, fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, ext.Amount)
	}
	merchant := strings.TrimSpace(ext.Merchant)
	if merchant == "" {
		merchant = "Unknown"
	}
	return Candidate{
		Type:     typ,
		Amount:   ext.Amount,
		Merchant: merchant,
		Category: models.NormalizeCategory(ext.Category),
	}, nil
}

// Engine applies, edits and deletes ledger transactions.
type Engine struct {
	db        *storage.DB
	extractor Extractor
}

// NewEngine creates an Engine. extractor may be nil if Submit is never used.
func NewEngine(db *storage.DB, extractor Extractor) *Engine {
	return &Engine{db: db, extractor: extractor}
}

// Submit ingests a raw message: it rejects duplicates, extracts and validates
// the transaction, then applies it.
func (e *Engine) Submit(ctx context.Context, userID int64, message string) (*models.Transaction, models.Balance, error) {
	log := logger.FromContext(ctx)

	text := strings.TrimSpace(message)
	if n := utf8.RuneCountInString(text); n < MinMessageLength || n > MaxMessageLength {
		return nil, models.Balance{}, fmt.Errorf("%w: message must be %d to %d characters",
			ErrValidation, MinMessageLength, MaxMessageLength)
	}

	fp := Fingerprint(text)
	seen, err := e.db.HasFingerprint(ctx, userID, fp)
	if err != nil {
		return nil, models.Balance{}, fmt.Errorf("check fingerprint: %w", err)
	}
	if seen {
		return nil, models.Balance{}, ErrDuplicateMessage
	}

	if e.extractor == nil {
		return nil, models.Balance{}, fmt.Errorf("%w: no extractor configured", ErrExtractionFailed)
	}
	ext, err := e.extractor.ExtractTransaction(ctx, text)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("extraction failed")
		return nil, models.Balance{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	cand, err := Validate(ext)
	if err != nil {
		return nil, models.Balance{}, err
	}

	txn := &models.Transaction{
		UserID:      userID,
		MessageText: text,
		Fingerprint: fp,
		Type:        cand.Type,
		Amount:      cand.Amount,
		Merchant:    cand.Merchant,
		Category:    cand.Category,
		Provenance:  models.ProvenanceAuto,
		RawResponse: ext.Raw,
	}
	bal, err := e.Apply(ctx, txn)
	if err != nil {
		return nil, models.Balance{}, err
	}

	log.Info().
		Int64("user_id", userID).
		Int64("transaction_id", txn.ID).
		Str("type", string(txn.Type)).
		Str("amount", txn.Amount.String()).
		Msg("transaction applied")
	return txn, bal, nil
}

// Apply persists txn as applied and adds its effect to the owner's balance.
// Both writes commit together or not at all.
func (e *Engine) Apply(ctx context.Context, txn *models.Transaction) (models.Balance, error) {
	var bal models.Balance
	err := e.retry(ctx, func(tx *storage.LedgerTx) error {
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		b, err := tx.Balance(ctx, txn.UserID)
		if err != nil {
			return err
		}
		bal, err = tx.CompareAndSwapBalance(ctx, b.Applied(txn.Type, txn.Amount))
		return err
	})
	return bal, err
}

// Record applies a manually entered transaction. It skips extraction and
// gets a fingerprint no message can produce, so it never collides with
// ingested alerts.
func (e *Engine) Record(ctx context.Context, userID int64, ext Extraction) (*models.Transaction, models.Balance, error) {
	cand, err := Validate(ext)
	if err != nil {
		return nil, models.Balance{}, err
	}
	txn := &models.Transaction{
		UserID:      userID,
		Fingerprint: Fingerprint("manual:" + uuid.NewString()),
		Type:        cand.Type,
		Amount:      cand.Amount,
		Merchant:    cand.Merchant,
		Category:    cand.Category,
		Provenance:  models.ProvenanceManual,
	}
	bal, err := e.Apply(ctx, txn)
	if err != nil {
		return nil, models.Balance{}, err
	}
	return txn, bal, nil
}

// EditParams holds the fields an edit may change. Nil fields are left alone.
type EditParams struct {
	Amount   *decimal.Decimal
	Category *string
	Merchant *string
}

// Edit changes an applied transaction. A new amount reverses the old effect
// and applies the new one under the stored type; metadata changes leave the
// balance untouched.
func (e *Engine) Edit(ctx context.Context, userID, id int64, p EditParams) (*models.Transaction, models.Balance, error) {
	if p.Amount != nil && !p.Amount.IsPositive() {
		return nil, models.Balance{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if p.Merchant != nil && strings.TrimSpace(*p.Merchant) == "" {
		return nil, models.Balance{}, fmt.Errorf("%w: merchant must not be empty", ErrValidation)
	}

	var (
		txn *models.Transaction
		bal models.Balance
	)
	err := e.retry(ctx, func(tx *storage.LedgerTx) error {
		var err error
		txn, err = appliedTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		oldAmount := txn.Amount
		if p.Amount != nil {
			txn.Amount = *p.Amount
		}
		if p.Category != nil {
			txn.Category = models.NormalizeCategory(*p.Category)
		}
		if p.Merchant != nil {
			txn.Merchant = strings.TrimSpace(*p.Merchant)
		}
		if err := tx.UpdateApplied(ctx, txn); err != nil {
			return err
		}

		b, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if txn.Amount.Equal(oldAmount) {
			bal = b
			return nil
		}
		bal, err = tx.CompareAndSwapBalance(ctx, b.Reversed(txn.Type, oldAmount).Applied(txn.Type, txn.Amount))
		return err
	})
	if err != nil {
		return nil, models.Balance{}, err
	}
	return txn, bal, nil
}

// Delete reverses an applied transaction and marks it deleted. The row is
// kept so its fingerprint still blocks the same message.
func (e *Engine) Delete(ctx context.Context, userID, id int64) (models.Balance, error) {
	var bal models.Balance
	err := e.retry(ctx, func(tx *storage.LedgerTx) error {
		txn, err := appliedTransaction(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.MarkDeleted(ctx, txn); err != nil {
			return err
		}
		b, err := tx.Balance(ctx, userID)
		if err != nil {
			return err
		}
		bal, err = tx.CompareAndSwapBalance(ctx, b.Reversed(txn.Type, txn.Amount))
		return err
	})
	return bal, err
}

// Balance returns the user's current balance snapshot.
func (e *Engine) Balance(ctx context.Context, userID int64) (models.Balance, error) {
	return e.db.GetBalance(ctx, userID)
}

// Page is one page of applied auto-detected transactions together with the
// limit and offset actually used.
type Page struct {
	Transactions []models.Transaction
	Total        int
	Limit        int
	Offset       int
}

// List returns applied auto-detected transactions, newest first, with the
// total match count. The limit defaults to DefaultListLimit and is capped at
// MaxListLimit.
func (e *Engine) List(ctx context.Context, userID int64, f storage.ListFilter) (Page, error) {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Category = ""
	f.Provenance = models.ProvenanceAuto

	txns, total, err := e.db.ListTransactions(ctx, userID, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Transactions: txns, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Audit compares the stored balance with totals recomputed from the ledger.
type Audit struct {
	Stored     models.Balance  `json:"stored"`
	Credits    decimal.Decimal `json:"ledger_credits"`
	Debits     decimal.Decimal `json:"ledger_debits"`
	Expected   decimal.Decimal `json:"expected_balance"`
	Applied    int             `json:"applied_transactions"`
	Consistent bool            `json:"consistent"`
}

// Verify recomputes the user's totals from applied transactions.
func (e *Engine) Verify(ctx context.Context, userID int64) (Audit, error) {
	stored, err := e.db.GetBalance(ctx, userID)
	if err != nil {
		return Audit{}, fmt.Errorf("get balance: %w", err)
	}
	txns, _, err := e.db.ListTransactions(ctx, userID, storage.ListFilter{})
	if err != nil {
		return Audit{}, fmt.Errorf("list transactions: %w", err)
	}

	a := Audit{Stored: stored, Applied: len(txns)}
	for _, t := range txns {
		switch t.Type {
		case models.Credit:
			a.Credits = a.Credits.Add(t.Amount)
		case models.Debit:
			a.Debits = a.Debits.Add(t.Amount)
		}
	}
	a.Expected = a.Credits.Sub(a.Debits)
	a.Consistent = a.Expected.Equal(stored.CurrentBalance) &&
		a.Credits.Equal(stored.TotalCredits) &&
		a.Debits.Equal(stored.TotalDebits)
	return a, nil
}

func appliedTransaction(ctx context.Context, tx *storage.LedgerTx, userID, id int64) (*models.Transaction, error) {
	txn, err := tx.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.StatusApplied {
		return nil, ErrAlreadyDeleted
	}
	return txn, nil
}

// retry runs fn in a ledger transaction, repeating it when the balance
// version moved underneath. Storage errors are mapped to ledger errors.
func (e *Engine) retry(ctx context.Context, fn func(*storage.LedgerTx) error) error {
	log := logger.FromContext(ctx)
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = e.db.InLedgerTx(ctx, fn)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		log.Debug().Int("attempt", attempt).Msg("balance version conflict")
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrDuplicate):
		return ErrDuplicateMessage
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return err
}
