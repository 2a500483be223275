package llm

import (
	"fmt"
	"strings"

	"expense-tracker/internal/models"
)

func categoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func extractionSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a financial transaction parser.\n\n")
	b.WriteString("Extract the following details from the message below:\n")
	b.WriteString("- transaction_type: Credit or Debit\n")
	b.WriteString("- amount (number only)\n")
	b.WriteString("- merchant_or_source\n")
	b.WriteString("- expense_category (" + categoryList() + ")\n\n")
	b.WriteString("Return the output strictly in JSON format only, no other text.\n")
	b.WriteString("Do NOT wrap the response in code fences.")
	return b.String()
}

func extractionUserPrompt(message string) string {
	return fmt.Sprintf(`Transaction Message:
%s

Return ONLY valid JSON in this format:
{
  "transaction_type": "Debit",
  "amount": 2500,
  "merchant_or_source": "Amazon",
  "expense_category": "Shopping"
}`, message)
}

func classifyPrompt(description string) string {
	return fmt.Sprintf(`You are an intelligent finance assistant.
Classify the following expense into one category only:
%s.

Expense description: %s

Return only the category name.`, categoryList(), description)
}

func insightsPrompt(data string) string {
	return fmt.Sprintf(`You are a personal finance advisor.

Based on the user's monthly expense data below, generate:
1. Total spending summary
2. Top 3 spending categories
3. Spending behavior analysis
4. 3 personalized money-saving tips

Expense Data:
%s

Keep the response concise, practical, and user-friendly.`, data)
}
