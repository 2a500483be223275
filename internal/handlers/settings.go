package handlers

import (
	"net/http"
	"strings"

	"expense-tracker/internal/currency"
)

// Currencies lists the supported currencies. It needs no session.
func (h *Handlers) Currencies(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: currency.List()})
}

type currencySettings struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Current      string          `json:"current_currency"`
	Info         currency.Info   `json:"currency_info"`
	CustomSymbol string          `json:"custom_symbol,omitempty"`
	Available    []currency.Info `json:"available_currencies"`
}

// GetCurrency returns the user's currency preference.
func (h *Handlers) GetCurrency(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	info, _ := currency.Lookup(user.PreferredCurrency)
	WriteJSON(w, http.StatusOK, currencySettings{
		Success:      true,
		Current:      user.PreferredCurrency,
		Info:         info,
		CustomSymbol: user.PreferredCurrencySymbol,
		Available:    currency.List(),
	})
}

type currencyRequest struct {
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`
}

// UpdateCurrency changes the user's currency preference.
func (h *Handlers) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Currency code is required")
		return
	}
	info, ok := currency.Lookup(code)
	if !ok {
		WriteError(w, http.StatusBadRequest, "Unsupported currency: "+code)
		return
	}
	symbol := strings.TrimSpace(req.Symbol)
	if len(symbol) > 10 {
		symbol = symbol[:10]
	}

	user := GetUserFromContext(r)
	if err := h.db.UpdateUserCurrency(r.Context(), user.ID, code, symbol); err != nil {
		writeStorageError(w, r, "User not found", err)
		return
	}
	WriteJSON(w, http.StatusOK, currencySettings{
		Success:      true,
		Message:      "Currency updated to " + info.Name,
		Current:      code,
		Info:         info,
		CustomSymbol: symbol,
		Available:    currency.List(),
	})
}
