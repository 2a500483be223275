package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerTx is a unit of work over ledger transactions and balances. Every
// write made through it commits or rolls back together.
type LedgerTx struct {
	tx *sql.Tx
}

// InLedgerTx runs fn inside a database transaction. The transaction commits
// if fn returns nil and rolls back otherwise.
func (db *DB) InLedgerTx(ctx context.Context, fn func(*LedgerTx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&LedgerTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Balance returns the user's balance row, creating a zero row first if the
// user has none.
func (t *LedgerTx) Balance(ctx context.Context, userID int64) (models.Balance, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO balances (user_id, current_balance, total_credits, total_debits, version, updated_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		userID, decimal.Zero, decimal.Zero, decimal.Zero, time.Now().UTC(),
	)
	if err != nil {
		return models.Balance{}, fmt.Errorf("init balance: %w", err)
	}
	b, err := scanBalance(t.tx.QueryRowContext(ctx, "SELECT "+balanceColumns+" FROM balances WHERE user_id = ?", userID))
	if err != nil {
		return models.Balance{}, fmt.Errorf("read balance: %w", err)
	}
	return b, nil
}

// CompareAndSwapBalance stores next if the stored version still equals
// next.Version, bumping the version. It returns ErrConflict otherwise.
func (t *LedgerTx) CompareAndSwapBalance(ctx context.Context, next models.Balance) (models.Balance, error) {
	next.UpdatedAt = time.Now().UTC()
	result, err := t.tx.ExecContext(ctx,
		`UPDATE balances
		SET current_balance = ?, total_credits = ?, total_debits = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		next.CurrentBalance, next.TotalCredits, next.TotalDebits, next.UpdatedAt, next.UserID, next.Version,
	)
	if err != nil {
		return models.Balance{}, fmt.Errorf("update balance: %w", err)
	}
	if err := expectOneRow(result, ErrConflict); err != nil {
		return models.Balance{}, err
	}
	next.Version++
	return next, nil
}

// InsertTransaction stores txn as applied and fills in its ID and timestamps.
// A fingerprint already used by the same user yields ErrDuplicate.
func (t *LedgerTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	now := time.Now().UTC()
	txn.Status = models.StatusApplied
	txn.CreatedAt = now
	txn.UpdatedAt = now

	result, err := t.tx.ExecContext(ctx,
		`INSERT INTO transactions
		(user_id, message_text, fingerprint, type, amount, merchant, category, status, provenance, raw_response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.UserID, txn.MessageText, txn.Fingerprint, string(txn.Type), txn.Amount, txn.Merchant,
		string(txn.Category), string(txn.Status), string(txn.Provenance), txn.RawResponse, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	txn.ID, err = result.LastInsertId()
	return err
}

// GetTransaction loads a transaction owned by userID regardless of status.
func (t *LedgerTx) GetTransaction(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	return getTransaction(ctx, t.tx, userID, id)
}

// UpdateApplied rewrites amount and metadata of an applied transaction.
// It returns ErrConflict if the row is no longer applied.
func (t *LedgerTx) UpdateApplied(ctx context.Context, txn *models.Transaction) error {
	txn.UpdatedAt = time.Now().UTC()
	result, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET amount = ?, merchant = ?, category = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'applied'`,
		txn.Amount, txn.Merchant, string(txn.Category), txn.UpdatedAt, txn.ID, txn.UserID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return expectOneRow(result, ErrConflict)
}

// MarkDeleted moves an applied transaction to the deleted state. The row and
// its fingerprint are kept. It returns ErrConflict if the row is not applied.
func (t *LedgerTx) MarkDeleted(ctx context.Context, txn *models.Transaction) error {
	now := time.Now().UTC()
	result, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET status = 'deleted', deleted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'applied'`,
		now, now, txn.ID, txn.UserID,
	)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := expectOneRow(result, ErrConflict); err != nil {
		return err
	}
	txn.Status = models.StatusDeleted
	txn.UpdatedAt = now
	txn.DeletedAt = &now
	return nil
}

// GetBalance returns the user's balance, or a zero balance if none exists yet.
func (db *DB) GetBalance(ctx context.Context, userID int64) (models.Balance, error) {
	b, err := scanBalance(db.conn.QueryRowContext(ctx, "SELECT "+balanceColumns+" FROM balances WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Balance{UserID: userID}, nil
	}
	return b, err
}

// HasFingerprint reports whether the user already submitted a message with
// this fingerprint, in any status.
func (db *DB) HasFingerprint(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM transactions WHERE user_id = ? AND fingerprint = ?)",
		userID, fingerprint,
	).Scan(&exists)
	return exists, err
}

// GetTransaction loads a transaction owned by userID regardless of status.
func (db *DB) GetTransaction(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	return getTransaction(ctx, db.conn, userID, id)
}

// ListTransactions returns the user's applied transactions created within the
// filter period, newest first, plus the total number of matches.
func (db *DB) ListTransactions(ctx context.Context, userID int64, f ListFilter) ([]models.Transaction, int, error) {
	where, args := f.whereClause("created_at", userID)
	where += " AND status = 'applied'"

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := f.pageClause(args)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions"+where+" ORDER BY created_at DESC, id DESC"+page,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *txn)
	}
	return txns, total, rows.Err()
}

// CountTransactions returns how many ledger rows the user has in any status.
func (db *DB) CountTransactions(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

const (
	balanceColumns     = "user_id, current_balance, total_credits, total_debits, version, updated_at"
	transactionColumns = `id, user_id, message_text, fingerprint, type, amount, merchant, category,
		status, provenance, raw_response, created_at, updated_at, deleted_at`
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTransaction(ctx context.Context, q queryer, userID, id int64) (*models.Transaction, error) {
	txn, err := scanTransaction(q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ? AND user_id = ?",
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return txn, err
}

func scanBalance(row rowScanner) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.CurrentBalance, &b.TotalCredits, &b.TotalDebits, &b.Version, &b.UpdatedAt)
	return b, err
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn                               models.Transaction
		typ, category, status, provenance string
		deletedAt                         sql.NullTime
	)
	err := row.Scan(&txn.ID, &txn.UserID, &txn.MessageText, &txn.Fingerprint, &typ, &txn.Amount, &txn.Merchant,
		&category, &status, &provenance, &txn.RawResponse, &txn.CreatedAt, &txn.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	txn.Type = models.TransactionType(typ)
	txn.Category = models.Category(category)
	txn.Status = models.TransactionStatus(status)
	txn.Provenance = models.Provenance(provenance)
	if deletedAt.Valid {
		txn.DeletedAt = &deletedAt.Time
	}
	return &txn, nil
}
