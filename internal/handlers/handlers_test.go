package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"expense-tracker/internal/auth"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeExtractor struct {
	replies map[string]ledger.Extraction
	err     error
}

func (f *fakeExtractor) ExtractTransaction(ctx context.Context, message string) (ledger.Extraction, error) {
	if f.err != nil {
		return ledger.Extraction{}, f.err
	}
	ext, ok := f.replies[message]
	if !ok {
		return ledger.Extraction{}, errors.New("upstream said: 500 internal model failure")
	}
	return ext, nil
}

type fakeAssistant struct {
	category models.Category
	err      error
	insights string
}

func (f *fakeAssistant) ClassifyExpense(ctx context.Context, description string) (models.Category, error) {
	return f.category, f.err
}

func (f *fakeAssistant) MonthlyInsights(ctx context.Context, data any) (string, error) {
	return f.insights, f.err
}

type APITestSuite struct {
	suite.Suite
	db        *storage.DB
	ext       *fakeExtractor
	assistant *fakeAssistant
	mux       http.Handler
	cookie    *http.Cookie
}

func (suite *APITestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db

	suite.ext = &fakeExtractor{replies: map[string]ledger.Extraction{
		"₹50000 salary credited": {Type: "Credit", Amount: decimal.NewFromInt(50000), Merchant: "Employer", Category: "Other"},
		"₹2500 debited at Amazon": {Type: "Debit", Amount: decimal.NewFromInt(2500), Merchant: "Amazon", Category: "Shopping"},
	}}
	suite.assistant = &fakeAssistant{category: models.CategoryFood, insights: "Spend less on snacks."}

	h := NewHandlers(db, ledger.NewEngine(db, suite.ext), suite.assistant, false)
	suite.mux = h.Routes()

	hash, err := auth.HashPassword("secret123")
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), db.CreateUser(context.Background(), &models.User{Username: "alice", PasswordHash: hash}))

	rec := suite.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "secret123"})
	require.Equal(suite.T(), http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			suite.cookie = c
		}
	}
	require.NotNil(suite.T(), suite.cookie, "login must set a session cookie")
}

func (suite *APITestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *APITestSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if suite.cookie != nil {
		req.AddCookie(suite.cookie)
	}
	rec := httptest.NewRecorder()
	suite.mux.ServeHTTP(rec, req)
	return rec
}

type balanceBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID       int64  `json:"id"`
		Category string `json:"category"`
	} `json:"data"`
	Balance struct {
		CurrentBalance decimal.Decimal `json:"current_balance"`
		TotalCredits   decimal.Decimal `json:"total_credits"`
		TotalDebits    decimal.Decimal `json:"total_debits"`
	} `json:"balance"`
}

func (suite *APITestSuite) decodeBalance(rec *httptest.ResponseRecorder) balanceBody {
	var b balanceBody
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func (suite *APITestSuite) TestRequiresAuth() {
	suite.cookie = nil
	rec := suite.do(http.MethodGet, "/api/balance/current", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"success":false`)

	suite.cookie = &http.Cookie{Name: SessionCookieName, Value: "bogus"}
	rec = suite.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *APITestSuite) TestMe() {
	rec := suite.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"username":"alice"`)
	assert.NotContains(suite.T(), rec.Body.String(), "secret123")
}

func (suite *APITestSuite) TestRegister() {
	suite.cookie = nil
	rec := suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "hunter22", "confirm_password": "hunter22",
	})
	assert.Equal(suite.T(), http.StatusCreated, rec.Code, rec.Body.String())

	rec = suite.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "bob", "password": "hunter22"})
	assert.Equal(suite.T(), http.StatusConflict, rec.Code)

	rec = suite.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "bo", "password": "hunter22"})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)

	rec = suite.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "carol", "password": "hunter22", "preferred_currency": "XYZ",
	})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *APITestSuite) TestLoginWrongPassword() {
	suite.cookie = nil
	rec := suite.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *APITestSuite) TestLogout() {
	rec := suite.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)

	rec = suite.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *APITestSuite) TestMessageScenario() {
	rec := suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "₹50000 salary credited"})
	require.Equal(suite.T(), http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(suite.T(), "50000", suite.decodeBalance(rec).Balance.CurrentBalance.String())

	rec = suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "₹2500 debited at Amazon"})
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	debit := suite.decodeBalance(rec)
	assert.Equal(suite.T(), "47500", debit.Balance.CurrentBalance.String())
	assert.Equal(suite.T(), "Shopping", debit.Data.Category)

	path := fmt.Sprintf("/api/transactions/%d", debit.Data.ID)
	rec = suite.do(http.MethodPut, path, map[string]any{"amount": 3000})
	require.Equal(suite.T(), http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(suite.T(), "47000", suite.decodeBalance(rec).Balance.CurrentBalance.String())

	rec = suite.do(http.MethodDelete, path, nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Equal(suite.T(), "50000", suite.decodeBalance(rec).Balance.CurrentBalance.String())

	rec = suite.do(http.MethodDelete, path, nil)
	assert.Equal(suite.T(), http.StatusConflict, rec.Code)

	rec = suite.do(http.MethodGet, "/api/transactions/auto", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	var list struct {
		Transactions []json.RawMessage `json:"transactions"`
		Total        int               `json:"total"`
		Limit        int               `json:"limit"`
	}
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(suite.T(), 1, list.Total)
	assert.Equal(suite.T(), ledger.DefaultListLimit, list.Limit)

	rec = suite.do(http.MethodGet, "/api/transactions/auto?limit=5000", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(suite.T(), ledger.MaxListLimit, list.Limit)

	rec = suite.do(http.MethodGet, "/api/balance/verify", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"consistent":true`)
}

func (suite *APITestSuite) TestUploadErrors() {
	rec := suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "₹2500 debited at Amazon"})
	require.Equal(suite.T(), http.StatusOK, rec.Code)

	rec = suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "₹2500 debited at Amazon"})
	assert.Equal(suite.T(), http.StatusConflict, rec.Code)

	rec = suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "hi"})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)

	rec = suite.do(http.MethodPost, "/api/transactions/upload-message", map[string]string{"message": "an alert nobody can read"})
	assert.Equal(suite.T(), http.StatusBadGateway, rec.Code)
	assert.NotContains(suite.T(), rec.Body.String(), "upstream said", "upstream detail must not leak")

	rec = suite.do(http.MethodPut, "/api/transactions/999", map[string]any{"amount": 10})
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)

	rec = suite.do(http.MethodPut, "/api/transactions/abc", map[string]any{"amount": 10})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *APITestSuite) TestAddExpenseClassification() {
	rec := suite.do(http.MethodPost, "/api/expenses/add", map[string]any{"amount": 250, "description": "Lunch at cafe"})
	require.Equal(suite.T(), http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Data       models.Expense `json:"data"`
		Classified bool           `json:"classified"`
	}
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(suite.T(), body.Classified)
	assert.True(suite.T(), body.Data.AIClassified)
	assert.Equal(suite.T(), models.CategoryFood, body.Data.Category)

	suite.assistant.err = errors.New("model timeout")
	rec = suite.do(http.MethodPost, "/api/expenses/add", map[string]any{"amount": "99.90", "description": "Mystery purchase"})
	require.Equal(suite.T(), http.StatusCreated, rec.Code, "classification failure must not block the expense")
	assert.Contains(suite.T(), rec.Body.String(), `"classified":false`)
	assert.Contains(suite.T(), rec.Body.String(), "classification_error")
	assert.Contains(suite.T(), rec.Body.String(), `"category":"Other"`)

	rec = suite.do(http.MethodPost, "/api/expenses/add", map[string]any{"amount": 10, "description": "Bus", "category": "travel"})
	require.Equal(suite.T(), http.StatusCreated, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"category":"Travel"`)

	rec = suite.do(http.MethodPost, "/api/expenses/add", map[string]any{"amount": 0, "description": "Nothing"})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *APITestSuite) TestExpenseCRUD() {
	rec := suite.do(http.MethodPost, "/api/expenses/add", map[string]any{
		"amount": 120, "description": "Pharmacy", "category": "Health", "date": "2025-03-10",
	})
	require.Equal(suite.T(), http.StatusCreated, rec.Code)
	var created struct {
		Data models.Expense `json:"data"`
	}
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &created))
	path := fmt.Sprintf("/api/expenses/%d", created.Data.ID)

	rec = suite.do(http.MethodPut, path, map[string]any{"amount": 150})
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"amount":150`)

	rec = suite.do(http.MethodGet, "/api/expenses/list?month=3&year=2025&category=health", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"total":1`)

	rec = suite.do(http.MethodGet, "/api/expenses/list?month=13", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)

	rec = suite.do(http.MethodDelete, path, nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)

	rec = suite.do(http.MethodGet, path, nil)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *APITestSuite) TestIncomeAndSummary() {
	rec := suite.do(http.MethodPost, "/api/incomes/add", map[string]any{"amount": 5000, "source": "Salary", "date": "2025-03-01"})
	require.Equal(suite.T(), http.StatusCreated, rec.Code, rec.Body.String())
	rec = suite.do(http.MethodPost, "/api/expenses/add", map[string]any{
		"amount": 1000, "description": "Groceries", "category": "Food", "date": "2025-03-02",
	})
	require.Equal(suite.T(), http.StatusCreated, rec.Code)

	rec = suite.do(http.MethodGet, "/api/summary/monthly?month=3&year=2025", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"savings":4000`)

	rec = suite.do(http.MethodGet, "/api/summary/yearly?year=2025", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"total_income":5000`)

	rec = suite.do(http.MethodGet, "/api/summary/ai-insights?month=3&year=2025", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "Spend less on snacks.")

	suite.assistant.err = errors.New("quota exceeded")
	rec = suite.do(http.MethodGet, "/api/summary/ai-insights?month=3&year=2025", nil)
	assert.Equal(suite.T(), http.StatusBadGateway, rec.Code)
	assert.NotContains(suite.T(), rec.Body.String(), "quota")

	rec = suite.do(http.MethodGet, "/api/balance/statistics?month=3&year=2025", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"total_manual_transactions":1`)
}

func (suite *APITestSuite) TestCurrencySettings() {
	rec := suite.do(http.MethodGet, "/api/settings/currency", nil)
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"current_currency":"INR"`)

	rec = suite.do(http.MethodPut, "/api/settings/currency", map[string]string{"currency": "usd"})
	require.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"current_currency":"USD"`)

	rec = suite.do(http.MethodPut, "/api/settings/currency", map[string]string{"currency": "ZZZ"})
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)

	suite.cookie = nil
	rec = suite.do(http.MethodGet, "/api/settings/currencies", nil)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *APITestSuite) TestHealth() {
	rec := suite.do(http.MethodGet, "/health", nil)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "healthy")
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
