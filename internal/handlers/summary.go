package handlers

import (
	"net/http"
	"strconv"
	"time"

	"expense-tracker/internal/currency"
	"expense-tracker/internal/logger"
)

// MonthlySummary returns income, spending and savings for a month, defaulting
// to the current one.
func (h *Handlers) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := requiredPeriod(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.reports.Monthly(r.Context(), GetUserFromContext(r).ID, year, month)
	if err != nil {
		internalError(w, r, "monthly summary", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: m})
}

// YearlySummary returns a year's totals with a per-month breakdown.
func (h *Handlers) YearlySummary(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			WriteError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		year = y
	}
	y, err := h.reports.Yearly(r.Context(), GetUserFromContext(r).ID, year)
	if err != nil {
		internalError(w, r, "yearly summary", err)
		return
	}
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: y})
}

type insightsResponse struct {
	Success  bool   `json:"success"`
	Insights string `json:"insights"`
	Summary  any    `json:"summary"`
}

// AIInsights asks the assistant to comment on a month's spending.
func (h *Handlers) AIInsights(w http.ResponseWriter, r *http.Request) {
	year, month, err := requiredPeriod(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := GetUserFromContext(r)
	m, err := h.reports.Monthly(r.Context(), user.ID, year, month)
	if err != nil {
		internalError(w, r, "monthly summary", err)
		return
	}
	if m.ExpenseCount == 0 && m.IncomeCount == 0 {
		WriteJSON(w, http.StatusOK, insightsResponse{
			Success:  true,
			Insights: "No transactions recorded for this month yet.",
			Summary:  m,
		})
		return
	}
	if h.assistant == nil {
		WriteError(w, http.StatusServiceUnavailable, "AI insights are not configured")
		return
	}

	payload := map[string]any{
		"month":                m.MonthName,
		"year":                 m.Year,
		"currency":             user.PreferredCurrency,
		"total_income":         currency.Format(m.TotalIncome, user.PreferredCurrency),
		"total_expenses":       currency.Format(m.TotalExpenses, user.PreferredCurrency),
		"savings":              currency.Format(m.Savings, user.PreferredCurrency),
		"expense_count":        m.ExpenseCount,
		"expenses_by_category": m.ExpensesByCategory,
	}
	text, err := h.assistant.MonthlyInsights(r.Context(), payload)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("insights generation failed")
		WriteError(w, http.StatusBadGateway, "Could not generate insights. Please try again later.")
		return
	}
	WriteJSON(w, http.StatusOK, insightsResponse{Success: true, Insights: text, Summary: m})
}
