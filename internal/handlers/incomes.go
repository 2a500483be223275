package handlers

import (
	"net/http"
	"strings"

	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

type incomeRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Source string           `json:"source"`
	Date   string           `json:"date"`
}

// AddIncome stores a manual income record.
func (h *Handlers) AddIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := positiveAmount(req.Amount); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		WriteError(w, http.StatusBadRequest, "Source is required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := &models.Income{
		UserID: GetUserFromContext(r).ID,
		Amount: *req.Amount,
		Source: source,
		Date:   date,
	}
	if err := h.db.CreateIncome(r.Context(), in); err != nil {
		internalError(w, r, "create income", err)
		return
	}
	WriteJSON(w, http.StatusCreated, Response{Success: true, Message: "Income added successfully", Data: in})
}

// ListIncomes lists manual incomes filtered by month and year.
func (h *Handlers) ListIncomes(w http.ResponseWriter, r *http.Request) {
	f, err := period(r)
	if err == nil {
		err = pagination(r, &f)
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	incomes, total, err := h.db.ListIncomes(r.Context(), GetUserFromContext(r).ID, f)
	if err != nil {
		internalError(w, r, "list incomes", err)
		return
	}
	if incomes == nil {
		incomes = []models.Income{}
	}
	WriteJSON(w, http.StatusOK, listResponse{Success: true, Items: incomes, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// GetIncome returns one income record.
func (h *Handlers) GetIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid income id")
		return
	}
	in, err := h.db.GetIncome(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		writeStorageError(w, r, "Income not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: in})
}

// UpdateIncome changes an income record. Omitted fields keep their value.
func (h *Handlers) UpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid income id")
		return
	}
	var req incomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	in, err := h.db.GetIncome(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		writeStorageError(w, r, "Income not found", err)
		return
	}
	if req.Amount != nil {
		if err := positiveAmount(req.Amount); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Amount = *req.Amount
	}
	if s := strings.TrimSpace(req.Source); s != "" {
		in.Source = s
	}
	if req.Date != "" {
		if in.Date, err = parseDate(req.Date); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.db.UpdateIncome(r.Context(), in); err != nil {
		writeStorageError(w, r, "Income not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Income updated", Data: in})
}

// DeleteIncome removes an income record.
func (h *Handlers) DeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid income id")
		return
	}
	if err := h.db.DeleteIncome(r.Context(), GetUserFromContext(r).ID, id); err != nil {
		writeStorageError(w, r, "Income not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: "Income deleted"})
}
