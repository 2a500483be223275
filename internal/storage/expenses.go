package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"expense-tracker/internal/models"
)

// ListFilter narrows list queries. Year and Month are optional; Month is only
// honored together with Year. A Limit of zero means no limit. Provenance only
// applies to ledger transactions.
type ListFilter struct {
	Year       int
	Month      int
	Category   string
	Provenance models.Provenance
	Limit      int
	Offset     int
}

// Period returns the half-open [start, end) UTC range selected by the filter.
func (f ListFilter) Period() (start, end time.Time, ok bool) {
	switch {
	case f.Year > 0 && f.Month >= 1 && f.Month <= 12:
		start = time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), true
	case f.Year > 0:
		start = time.Date(f.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), true
	}
	return time.Time{}, time.Time{}, false
}

// whereClause builds the WHERE clause shared by list and count queries.
func (f ListFilter) whereClause(dateColumn string, userID int64) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}
	if start, end, ok := f.Period(); ok {
		conds = append(conds, dateColumn+" >= ?", dateColumn+" < ?")
		args = append(args, start, end)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Provenance != "" {
		conds = append(conds, "provenance = ?")
		args = append(args, string(f.Provenance))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f ListFilter) pageClause(args []any) (string, []any) {
	if f.Limit <= 0 {
		return "", args
	}
	return " LIMIT ? OFFSET ?", append(args, f.Limit, f.Offset)
}

// CreateExpense inserts e and fills in its ID and CreatedAt.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.Date.IsZero() {
		e.Date = time.Now()
	}
	e.Date = e.Date.UTC()
	e.CreatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount, description, category, date, ai_classified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Amount, e.Description, string(e.Category), e.Date, e.AIClassified, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, err = result.LastInsertId()
	return err
}

const expenseColumns = "id, user_id, amount, description, category, date, ai_classified, created_at"

// GetExpense retrieves a single expense owned by userID.
func (db *DB) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpdateExpense updates an existing expense owned by e.UserID.
func (db *DB) UpdateExpense(ctx context.Context, e *models.Expense) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE expenses SET amount = ?, description = ?, category = ?, date = ?, ai_classified = ?
		WHERE id = ? AND user_id = ?`,
		e.Amount, e.Description, string(e.Category), e.Date.UTC(), e.AIClassified, e.ID, e.UserID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result, ErrNotFound)
}

// DeleteExpense removes an expense owned by userID.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(result, ErrNotFound)
}

// ListExpenses returns the user's expenses matching f, newest first, and the
// total number of matches ignoring pagination.
func (db *DB) ListExpenses(ctx context.Context, userID int64, f ListFilter) ([]models.Expense, int, error) {
	where, args := f.whereClause("date", userID)

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := f.pageClause(args)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses"+where+" ORDER BY date DESC, id DESC"+page,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		expenses = append(expenses, *e)
	}
	return expenses, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var e models.Expense
	var category string
	if err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Description, &category, &e.Date, &e.AIClassified, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Category = models.Category(category)
	return &e, nil
}

// CreateIncome inserts in and fills in its ID and CreatedAt.
func (db *DB) CreateIncome(ctx context.Context, in *models.Income) error {
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	in.Date = in.Date.UTC()
	in.CreatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO incomes (user_id, amount, source, date, created_at) VALUES (?, ?, ?, ?, ?)",
		in.UserID, in.Amount, in.Source, in.Date, in.CreatedAt,
	)
	if err != nil {
		return err
	}
	in.ID, err = result.LastInsertId()
	return err
}

const incomeColumns = "id, user_id, amount, source, date, created_at"

// GetIncome retrieves a single income record owned by userID.
func (db *DB) GetIncome(ctx context.Context, userID, id int64) (*models.Income, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+incomeColumns+" FROM incomes WHERE id = ? AND user_id = ?",
		id, userID,
	)
	in, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return in, err
}

// UpdateIncome updates an existing income record owned by in.UserID.
func (db *DB) UpdateIncome(ctx context.Context, in *models.Income) error {
	result, err := db.conn.ExecContext(ctx,
		"UPDATE incomes SET amount = ?, source = ?, date = ? WHERE id = ? AND user_id = ?",
		in.Amount, in.Source, in.Date.UTC(), in.ID, in.UserID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result, ErrNotFound)
}

// DeleteIncome removes an income record owned by userID.
func (db *DB) DeleteIncome(ctx context.Context, userID, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM incomes WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	return expectOneRow(result, ErrNotFound)
}

// ListIncomes returns the user's income records matching f, newest first.
// The Category field of f is ignored.
func (db *DB) ListIncomes(ctx context.Context, userID int64, f ListFilter) ([]models.Income, int, error) {
	f.Category = ""
	where, args := f.whereClause("date", userID)

	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM incomes"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := f.pageClause(args)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+incomeColumns+" FROM incomes"+where+" ORDER BY date DESC, id DESC"+page,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var incomes []models.Income
	for rows.Next() {
		in, err := scanIncome(rows)
		if err != nil {
			return nil, 0, err
		}
		incomes = append(incomes, *in)
	}
	return incomes, total, rows.Err()
}

func scanIncome(row rowScanner) (*models.Income, error) {
	var in models.Income
	if err := row.Scan(&in.ID, &in.UserID, &in.Amount, &in.Source, &in.Date, &in.CreatedAt); err != nil {
		return nil, err
	}
	return &in, nil
}
