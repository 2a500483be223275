// Package llm talks to a hosted language model to read bank alerts, classify
// expense descriptions and write monthly spending insights.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"expense-tracker/internal/config"
	"expense-tracker/internal/ledger"
	"expense-tracker/internal/models"

	"github.com/shopspring/decimal"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty model response")

// Prompt is a single system + user exchange. JSON asks the backend for a
// JSON-only reply where it supports that.
type Prompt struct {
	System string
	User   string
	JSON   bool
}

// Completer sends a prompt to a model backend and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Service builds prompts, enforces the call timeout and parses replies.
type Service struct {
	completer Completer
	timeout   time.Duration
}

// NewService wraps a Completer. A zero timeout disables the per-call limit.
func NewService(c Completer, timeout time.Duration) *Service {
	return &Service{completer: c, timeout: timeout}
}

// New creates a Service for the configured provider.
func New(ctx context.Context, cfg config.LLMConfig) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is not set")
	}

	var (
		c   Completer
		err error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Endpoint)
	case config.ProviderOpenAI, "":
		c = NewOpenAI(cfg.APIKey, cfg.Model, cfg.Endpoint)
	default:
		err = fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewService(c, cfg.Timeout), nil
}

func (s *Service) complete(ctx context.Context, p Prompt) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	reply, err := s.completer.Complete(ctx, p)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}

// extractionReply mirrors the JSON object the model is asked to return.
type extractionReply struct {
	TransactionType  string          `json:"transaction_type"`
	Amount           json.RawMessage `json:"amount"`
	MerchantOrSource *string         `json:"merchant_or_source"`
	ExpenseCategory  *string         `json:"expense_category"`
}

func (r extractionReply) missing() string {
	switch {
	case r.TransactionType == "":
		return "transaction_type"
	case len(r.Amount) == 0 || string(r.Amount) == "null":
		return "amount"
	case r.MerchantOrSource == nil:
		return "merchant_or_source"
	case r.ExpenseCategory == nil:
		return "expense_category"
	}
	return ""
}

// ExtractTransaction reads a bank alert into a ledger.Extraction. It fails
// when the reply is not JSON, misses a field or carries an unreadable amount.
func (s *Service) ExtractTransaction(ctx context.Context, message string) (ledger.Extraction, error) {
	raw, err := s.complete(ctx, Prompt{
		System: extractionSystemPrompt(),
		User:   extractionUserPrompt(message),
		JSON:   true,
	})
	if err != nil {
		return ledger.Extraction{}, fmt.Errorf("extract transaction: %w", err)
	}

	var reply extractionReply
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &reply); err != nil {
		return ledger.Extraction{}, fmt.Errorf("extract transaction: decode reply: %w", err)
	}
	if field := reply.missing(); field != "" {
		return ledger.Extraction{}, fmt.Errorf("extract transaction: reply is missing %q", field)
	}

	amount, err := replyAmount(reply.Amount)
	if err != nil {
		return ledger.Extraction{}, fmt.Errorf("extract transaction: %w", err)
	}

	return ledger.Extraction{
		Type:     reply.TransactionType,
		Amount:   amount,
		Merchant: *reply.MerchantOrSource,
		Category: *reply.ExpenseCategory,
		Raw:      raw,
	}, nil
}

// ClassifyExpense maps a free-text expense description to a category. Replies
// outside the allowed set become Other.
func (s *Service) ClassifyExpense(ctx context.Context, description string) (models.Category, error) {
	reply, err := s.complete(ctx, Prompt{
		System: "You are a financial categorization expert. Return only the category name.",
		User:   classifyPrompt(description),
	})
	if err != nil {
		return "", fmt.Errorf("classify expense: %w", err)
	}
	return models.CategoryFromReply(reply), nil
}

// MonthlyInsights asks the model for a short narrative about a month's
// spending. data is sent to the model as indented JSON.
func (s *Service) MonthlyInsights(ctx context.Context, data any) (string, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("monthly insights: encode data: %w", err)
	}
	reply, err := s.complete(ctx, Prompt{
		System: "You are a helpful personal finance advisor providing actionable insights based on spending data.",
		User:   insightsPrompt(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("monthly insights: %w", err)
	}
	return reply, nil
}

// replyAmount reads the amount field, which may be a JSON number (exponent
// form included) or a string such as "₹2,500".
func replyAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var quoted string
	if json.Unmarshal(raw, &quoted) == nil {
		return parseAmount(quoted)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %s: %w", raw, err)
	}
	return d, nil
}

// parseAmount accepts plain numbers as well as strings carrying currency
// symbols, codes and thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	text := strings.ReplaceAll(s, ",", "")
	start := strings.IndexFunc(text, isDigit)
	if start == -1 {
		return decimal.Zero, fmt.Errorf("amount %q has no digits", s)
	}
	end := start
	for end < len(text) && (isDigit(rune(text[end])) || text[end] == '.') {
		end++
	}
	if end < len(text) && (text[end] == 'e' || text[end] == 'E') {
		return decimal.Zero, fmt.Errorf("amount %q has an exponent", s)
	}
	num := strings.TrimSuffix(text[start:end], ".")
	if start > 0 && text[start-1] == '-' {
		num = "-" + num
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, err)
	}
	return d, nil
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
