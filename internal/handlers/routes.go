package handlers

import (
	"net/http"
	"time"
)

// Routes registers every API endpoint on a new mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Public
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/settings/currencies", h.Currencies)

	// Authenticated
	protected := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.AuthMiddleware(fn))
	}
	protected("GET /api/auth/me", h.Me)

	protected("POST /api/transactions/upload-message", h.UploadMessage)
	protected("GET /api/transactions/auto", h.ListTransactions)
	protected("PUT /api/transactions/{id}", h.UpdateTransaction)
	protected("DELETE /api/transactions/{id}", h.DeleteTransaction)

	protected("GET /api/balance/current", h.CurrentBalance)
	protected("GET /api/balance/statistics", h.BalanceStatistics)
	protected("GET /api/balance/verify", h.VerifyBalance)

	protected("POST /api/expenses/add", h.AddExpense)
	protected("POST /api/expenses/classify", h.ClassifyExpense)
	protected("GET /api/expenses/list", h.ListExpenses)
	protected("GET /api/expenses/{id}", h.GetExpense)
	protected("PUT /api/expenses/{id}", h.UpdateExpense)
	protected("DELETE /api/expenses/{id}", h.DeleteExpense)

	protected("POST /api/incomes/add", h.AddIncome)
	protected("GET /api/incomes/list", h.ListIncomes)
	protected("GET /api/incomes/{id}", h.GetIncome)
	protected("PUT /api/incomes/{id}", h.UpdateIncome)
	protected("DELETE /api/incomes/{id}", h.DeleteIncome)

	protected("GET /api/summary/monthly", h.MonthlySummary)
	protected("GET /api/summary/yearly", h.YearlySummary)
	protected("GET /api/summary/ai-insights", h.AIInsights)

	protected("GET /api/settings/currency", h.GetCurrency)
	protected("PUT /api/settings/currency", h.UpdateCurrency)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})

	return mux
}
