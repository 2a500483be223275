// Package report builds monthly and yearly money summaries from manual
// expenses, manual incomes and applied ledger transactions.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
)

// CategoryTotal is spending in one category over a period.
type CategoryTotal struct {
	Category   models.Category `json:"category"`
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// Monthly is the summary for a single calendar month.
type Monthly struct {
	Year               int             `json:"year"`
	Month              int             `json:"month"`
	MonthName          string          `json:"month_name"`
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalExpenses      decimal.Decimal `json:"total_expenses"`
	Savings            decimal.Decimal `json:"savings"`
	ExpenseCount       int             `json:"expense_count"`
	IncomeCount        int             `json:"income_count"`
	ExpensesByCategory []CategoryTotal `json:"expenses_by_category"`
	PrevYear           int             `json:"prev_year"`
	PrevMonth          int             `json:"prev_month"`
	NextYear           int             `json:"next_year"`
	NextMonth          int             `json:"next_month"`
	IsCurrentMonth     bool            `json:"is_current_month"`
}

// MonthTotals is one row of a yearly breakdown.
type MonthTotals struct {
	Month    int             `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Savings  decimal.Decimal `json:"savings"`
}

// Yearly is the summary for a calendar year.
type Yearly struct {
	Year               int             `json:"year"`
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalExpenses      decimal.Decimal `json:"total_expenses"`
	Savings            decimal.Decimal `json:"savings"`
	ExpensesByCategory []CategoryTotal `json:"expenses_by_category"`
	Months             []MonthTotals   `json:"months"`
}

// Statistics compares automatically detected and manually entered activity.
type Statistics struct {
	Year               int             `json:"year"`
	Month              int             `json:"month"`
	AutoTransactions   int             `json:"total_auto_transactions"`
	ManualExpenses     int             `json:"total_manual_transactions"`
	AutoExpenseTotal   decimal.Decimal `json:"auto_expense_total"`
	ManualExpenseTotal decimal.Decimal `json:"manual_expense_total"`
	TotalIncome        decimal.Decimal `json:"total_income"`
	TotalExpenses      decimal.Decimal `json:"total_expenses"`
	Savings            decimal.Decimal `json:"savings"`
	TopCategories      []CategoryTotal `json:"top_categories"`
}

// Service computes reports from the database.
type Service struct {
	db  *storage.DB
	now func() time.Time
}

// New creates a report Service.
func New(db *storage.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type entryKind int

const (
	manualExpense entryKind = iota
	manualIncome
	autoDebit
	autoCredit
)

type entry struct {
	kind     entryKind
	at       time.Time
	amount   decimal.Decimal
	category models.Category
}

func (e entry) isExpense() bool { return e.kind == manualExpense || e.kind == autoDebit }

// entries loads everything that counts as income or spending in the period.
func (s *Service) entries(ctx context.Context, userID int64, f storage.ListFilter) ([]entry, error) {
	expenses, _, err := s.db.ListExpenses(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	incomes, _, err := s.db.ListIncomes(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	txns, _, err := s.db.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]entry, 0, len(expenses)+len(incomes)+len(txns))
	for _, e := range expenses {
		out = append(out, entry{kind: manualExpense, at: e.Date, amount: e.Amount, category: e.Category})
	}
	for _, in := range incomes {
		out = append(out, entry{kind: manualIncome, at: in.Date, amount: in.Amount})
	}
	for _, t := range txns {
		out = append(out, entry{kind: ledgerKind(t), at: t.CreatedAt, amount: t.Amount, category: t.Category})
	}
	return out, nil
}

// ledgerKind classifies a ledger row; manual entries count with manual activity.
func ledgerKind(t models.Transaction) entryKind {
	manual := t.Provenance == models.ProvenanceManual
	switch {
	case t.Type == models.Credit && manual:
		return manualIncome
	case t.Type == models.Credit:
		return autoCredit
	case manual:
		return manualExpense
	}
	return autoDebit
}

// Monthly summarizes one month. Spending includes applied ledger debits and
// income includes applied ledger credits.
func (s *Service) Monthly(ctx context.Context, userID int64, year, month int) (*Monthly, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d out of range", month)
	}
	entries, err := s.entries(ctx, userID, storage.ListFilter{Year: year, Month: month})
	if err != nil {
		return nil, err
	}

	m := &Monthly{
		Year:      year,
		Month:     month,
		MonthName: time.Month(month).String(),
	}
	for _, e := range entries {
		if e.isExpense() {
			m.TotalExpenses = m.TotalExpenses.Add(e.amount)
			m.ExpenseCount++
		} else {
			m.TotalIncome = m.TotalIncome.Add(e.amount)
			m.IncomeCount++
		}
	}
	m.Savings = m.TotalIncome.Sub(m.TotalExpenses)
	m.ExpensesByCategory = categoryTotals(entries)

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	prev, next := first.AddDate(0, -1, 0), first.AddDate(0, 1, 0)
	m.PrevYear, m.PrevMonth = prev.Year(), int(prev.Month())
	m.NextYear, m.NextMonth = next.Year(), int(next.Month())

	now := s.now().UTC()
	m.IsCurrentMonth = year == now.Year() && month == int(now.Month())
	return m, nil
}

// Yearly summarizes a year with a per-month breakdown.
func (s *Service) Yearly(ctx context.Context, userID int64, year int) (*Yearly, error) {
	entries, err := s.entries(ctx, userID, storage.ListFilter{Year: year})
	if err != nil {
		return nil, err
	}

	y := &Yearly{Year: year, Months: make([]MonthTotals, 12)}
	for i := range y.Months {
		y.Months[i].Month = i + 1
	}
	for _, e := range entries {
		row := &y.Months[int(e.at.UTC().Month())-1]
		if e.isExpense() {
			row.Expenses = row.Expenses.Add(e.amount)
			y.TotalExpenses = y.TotalExpenses.Add(e.amount)
		} else {
			row.Income = row.Income.Add(e.amount)
			y.TotalIncome = y.TotalIncome.Add(e.amount)
		}
	}
	for i := range y.Months {
		y.Months[i].Savings = y.Months[i].Income.Sub(y.Months[i].Expenses)
	}
	y.Savings = y.TotalIncome.Sub(y.TotalExpenses)
	y.ExpensesByCategory = categoryTotals(entries)
	return y, nil
}

// Statistics breaks a month's spending down by origin. A zero month covers
// the whole year; a zero year covers all time.
func (s *Service) Statistics(ctx context.Context, userID int64, year, month int) (*Statistics, error) {
	entries, err := s.entries(ctx, userID, storage.ListFilter{Year: year, Month: month})
	if err != nil {
		return nil, err
	}

	st := &Statistics{Year: year, Month: month}
	for _, e := range entries {
		switch e.kind {
		case manualExpense:
			st.ManualExpenses++
			st.ManualExpenseTotal = st.ManualExpenseTotal.Add(e.amount)
		case autoDebit:
			st.AutoTransactions++
			st.AutoExpenseTotal = st.AutoExpenseTotal.Add(e.amount)
		case autoCredit:
			st.AutoTransactions++
			st.TotalIncome = st.TotalIncome.Add(e.amount)
		case manualIncome:
			st.TotalIncome = st.TotalIncome.Add(e.amount)
		}
	}
	st.TotalExpenses = st.AutoExpenseTotal.Add(st.ManualExpenseTotal)
	st.Savings = st.TotalIncome.Sub(st.TotalExpenses)

	st.TopCategories = categoryTotals(entries)
	if len(st.TopCategories) > 3 {
		st.TopCategories = st.TopCategories[:3]
	}
	return st, nil
}

// categoryTotals groups spending by category, largest first.
func categoryTotals(entries []entry) []CategoryTotal {
	byCat := make(map[models.Category]*CategoryTotal)
	total := decimal.Zero
	for _, e := range entries {
		if !e.isExpense() {
			continue
		}
		ct, ok := byCat[e.category]
		if !ok {
			ct = &CategoryTotal{Category: e.category}
			byCat[e.category] = ct
		}
		ct.Total = ct.Total.Add(e.amount)
		ct.Count++
		total = total.Add(e.amount)
	}

	items := make([]CategoryTotal, 0, len(byCat))
	for _, ct := range byCat {
		if total.IsPositive() {
			ct.Percentage = ct.Total.Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		items = append(items, *ct)
	}
	sort.Slice(items, func(i, j int) bool {
		if c := items[i].Total.Cmp(items[j].Total); c != 0 {
			return c > 0
		}
		return items[i].Category < items[j].Category
	})
	return items
}
