package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
)

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty means now.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC(), nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

func positiveAmount(d *decimal.Decimal) error {
	if d == nil {
		return errors.New("amount is required")
	}
	if !d.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

type expenseRequest struct {
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Date        string           `json:"date"`
	AIClassify  bool             `json:"ai_classify"`
}

type expenseResponse struct {
	Success             bool            `json:"success"`
	Message             string          `json:"message"`
	Data                *models.Expense `json:"data"`
	Classified          bool            `json:"classified"`
	ClassificationError string          `json:"classification_error,omitempty"`
}

// AddExpense stores a manual expense. Without a category, or when asked to,
// it classifies the description first; a failed classification still saves
// the expense as Other.
func (h *Handlers) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := positiveAmount(req.Amount); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		WriteError(w, http.StatusBadRequest, "Description is required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	e := &models.Expense{
		UserID:      GetUserFromContext(r).ID,
		Amount:      *req.Amount,
		Description: desc,
		Date:        date,
	}
	resp := expenseResponse{Success: true, Message: "Expense added successfully", Data: e}

	if cat, ok := models.ParseCategory(req.Category); ok && !req.AIClassify {
		e.Category = cat
	} else {
		cat, err := h.classify(r, desc)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Warn().Err(err).Msg("expense classification failed")
			e.Category = models.CategoryOther
			resp.ClassificationError = "Automatic categorization is unavailable; the expense was saved as Other."
		} else {
			e.Category = cat
			e.AIClassified = true
			resp.Classified = true
		}
	}

	if err := h.db.CreateExpense(r.Context(), e); err != nil {
		internalError(w, r, "create expense", err)
		return
	}
	WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) classify(r *http.Request, description string) (models.Category, error) {
	if h.assistant == nil {
		return "", errors.New("no assistant configured")
	}
	return h.assistant.ClassifyExpense(r.Context(), description)
}

type listResponse struct {
	Success bool `json:"success"`
	Items   any  `json:"items"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
}

// ListExpenses lists manual expenses filtered by month, year and category.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := period(r)
	if err == nil {
		err = pagination(r, &f)
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c := r.URL.Query().Get("category"); c != "" {
		cat, ok := models.ParseCategory(c)
		if !ok {
			WriteError(w, http.StatusBadRequest, "Unknown category")
			return
		}
		f.Category = string(cat)
	}

	expenses, total, err := h.db.ListExpenses(r.Context(), GetUserFromContext(r).ID, f)
	if err != nil {
		internalError(w, r, "list expenses", err)
		return
	}
	if expenses == nil {
		expenses = []models.Expense{}
	}
	WriteJSON(w, http.StatusOK, listResponse{Success: true, Items: expenses, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetExpense returns one expense.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid expense id")
		return
	}
	e, err := h.db.GetExpense(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		writeStorageError(w, r, "Expense not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: e})
}

// UpdateExpense changes an expense. Omitted fields keep their value.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid expense id")
		return
	}
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := h.db.GetExpense(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		writeStorageError(w, r, "Expense not found", err)
		return
	}
	if req.Amount != nil {
		if err := positiveAmount(req.Amount); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		e.Amount = *req.Amount
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		e.Description = d
	}
	if req.Category != "" {
		cat, ok := models.ParseCategory(req.Category)
		if !ok {
			WriteError(w, http.StatusBadRequest, "Unknown category")
			return
		}
		e.Category = cat
		e.AIClassified = false
	}
	if req.Date != "" {
		if e.Date, err = parseDate(req.Date); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.db.UpdateExpense(r.Context(), e); err != nil {
		writeStorageError(w, r, "Expense not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Expense updated", Data: e})
}

// DeleteExpense removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid expense id")
		return
	}
	if err := h.db.DeleteExpense(r.Context(), GetUserFromContext(r).ID, id); err != nil {
		writeStorageError(w, r, "Expense not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Expense deleted"})
}

type classifyRequest struct {
	Description string `json:"description"`
}

// ClassifyExpense suggests a category for a description without saving.
func (h *Handlers) ClassifyExpense(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		WriteError(w, http.StatusBadRequest, "Description is required")
		return
	}

	cat, err := h.classify(r, desc)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("expense classification failed")
		WriteError(w, http.StatusBadGateway, "Automatic categorization is unavailable")
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: map[string]models.Category{"category": cat}})
}

func writeStorageError(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, http.StatusNotFound, notFound)
		return
	}
	internalError(w, r, "storage", err)
}
