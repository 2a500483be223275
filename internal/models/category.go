package models

import "strings"

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTravel        Category = "Travel"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryOther         Category = "Other"
)

// Categories lists the allowed categories in display order.
var Categories = []Category{
	CategoryFood,
	CategoryTravel,
	CategoryShopping,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealth,
	CategoryOther,
}

// ParseCategory matches s against the allowed set, ignoring case and
// surrounding whitespace.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// NormalizeCategory returns the matching category or CategoryOther.
func NormalizeCategory(s string) Category {
	if c, ok := ParseCategory(s); ok {
		return c
	}
	return CategoryOther
}

// CategoryFromReply extracts a category from a free-form model reply such as
// "Category: Food." Falls back to CategoryOther.
func CategoryFromReply(reply string) Category {
	if c, ok := ParseCategory(strings.Trim(reply, " \t\r\n.\"'`")); ok {
		return c
	}
	lower := strings.ToLower(reply)
	for _, c := range Categories {
		if strings.Contains(lower, strings.ToLower(string(c))) {
			return c
		}
	}
	return CategoryOther
}
