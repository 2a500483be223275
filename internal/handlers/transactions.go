package handlers

import (
	"errors"
	"net/http"
	"strings"

	"expense-tracker/internal/ledger"
	"expense-tracker/internal/logger"
	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

// BalanceResponse is the balance snapshot returned after every ledger change.
type BalanceResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message"`
	Transaction *models.Transaction `json:"data,omitempty"`
	Balance     models.Balance      `json:"balance"`
}

// writeLedgerError maps ledger failures to status codes. Upstream detail is
// logged, never returned.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, ledger.ErrDuplicateMessage):
		WriteError(w, http.StatusConflict, "This transaction message has already been processed")
	case errors.Is(err, ledger.ErrValidation):
		WriteError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, ledger.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Transaction not found")
	case errors.Is(err, ledger.ErrAlreadyDeleted):
		WriteError(w, http.StatusConflict, "Transaction has already been deleted")
	case errors.Is(err, ledger.ErrExtractionFailed):
		log.Warn().Err(err).Msg("extraction failed")
		WriteError(w, http.StatusBadGateway, "Could not read the transaction message. Please try again later.")
	case errors.Is(err, ledger.ErrConcurrentUpdate):
		log.Warn().Err(err).Msg("balance update conflict")
		WriteError(w, http.StatusConflict, "Balance was updated concurrently. Please retry.")
	default:
		internalError(w, r, "ledger operation", err)
	}
}

// validationMessage returns the part of a validation error meant for users.
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ledger.ErrValidation.Error()+": ")
}

type uploadMessageRequest struct {
	Message string `json:"message"`
}

// UploadMessage ingests a bank alert and applies it to the balance.
func (h *Handlers) UploadMessage(w http.ResponseWriter, r *http.Request) {
	var req uploadMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := GetUserFromContext(r)
	txn, bal, err := h.engine.Submit(r.Context(), user.ID, req.Message)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, BalanceResponse{
		Success:     true,
		Message:     "Transaction processed successfully",
		Transaction: txn,
		Balance:     bal,
	})
}

type transactionList struct {
	Success      bool                 `json:"success"`
	Transactions []models.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// ListTransactions lists applied auto-detected transactions.
func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := period(r)
	if err == nil {
		err = pagination(r, &f)
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.engine.List(r.Context(), GetUserFromContext(r).ID, f)
	if err != nil {
		internalError(w, r, "list transactions", err)
		return
	}
	txns := page.Transactions
	if txns == nil {
		txns = []models.Transaction{}
	}
	WriteJSON(w, http.StatusOK, transactionList{
		Success:      true,
		Transactions: txns,
		Total:        page.Total,
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
}

type updateTransactionRequest struct {
	Amount   *decimal.Decimal `json:"amount"`
	Category *string          `json:"category"`
	Merchant *string          `json:"merchant_or_source"`
}

// UpdateTransaction edits amount or metadata of an applied transaction.
func (h *Handlers) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	var req updateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount == nil && req.Category == nil && req.Merchant == nil {
		WriteError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	txn, bal, err := h.engine.Edit(r.Context(), GetUserFromContext(r).ID, id, ledger.EditParams{
		Amount:   req.Amount,
		Category: req.Category,
		Merchant: req.Merchant,
	})
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, BalanceResponse{
		Success:     true,
		Message:     "Transaction updated",
		Transaction: txn,
		Balance:     bal,
	})
}

// DeleteTransaction reverses and deletes a transaction.
func (h *Handlers) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}
	bal, err := h.engine.Delete(r.Context(), GetUserFromContext(r).ID, id)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, BalanceResponse{
		Success: true,
		Message: "Transaction deleted",
		Balance: bal,
	})
}

// CurrentBalance returns the balance snapshot.
func (h *Handlers) CurrentBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.engine.Balance(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		internalError(w, r, "get balance", err)
		return
	}
	WriteJSON(w, http.StatusOK, BalanceResponse{Success: true, Message: "OK", Balance: bal})
}

// VerifyBalance recomputes the balance from the ledger.
func (h *Handlers) VerifyBalance(w http.ResponseWriter, r *http.Request) {
	audit, err := h.engine.Verify(r.Context(), GetUserFromContext(r).ID)
	if err != nil {
		internalError(w, r, "verify balance", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: audit})
}

// BalanceStatistics compares auto-detected and manual activity.
func (h *Handlers) BalanceStatistics(w http.ResponseWriter, r *http.Request) {
	year, month, err := requiredPeriod(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := h.reports.Statistics(r.Context(), GetUserFromContext(r).ID, year, month)
	if err != nil {
		internalError(w, r, "balance statistics", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: stats})
}
