package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AmountPatterns describes the amounts a rule recognizes.
type AmountPatterns struct {
	MinAmount    *decimal.Decimal  `json:"minAmount,omitempty"`
	MaxAmount    *decimal.Decimal  `json:"maxAmount,omitempty"`
	ExactAmounts []decimal.Decimal `json:"exactAmounts,omitempty"`
}

// MatchesExact reports whether amount equals one of the exact amounts.
func (p *AmountPatterns) MatchesExact(amount decimal.Decimal) bool {
	for _, exact := range p.ExactAmounts {
		if exact.Equal(amount) {
			return true
		}
	}
	return false
}

// MatchesRange reports whether amount lies within [MinAmount, MaxAmount].
// Both bounds must be present.
func (p *AmountPatterns) MatchesRange(amount decimal.Decimal) bool {
	if p.MinAmount == nil || p.MaxAmount == nil {
		return false
	}
	return amount.GreaterThanOrEqual(*p.MinAmount) && amount.LessThanOrEqual(*p.MaxAmount)
}

// Rule is a persisted categorization heuristic mapped to a category.
type Rule struct {
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	LastUsed         *time.Time      `json:"lastUsed,omitempty"`
	AmountPatterns   *AmountPatterns `json:"amountPatterns,omitempty"`
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	CategoryID       string          `json:"categoryId"`
	SubcategoryID    string          `json:"subcategoryId,omitempty"`
	Keywords         []string        `json:"keywords"`
	MerchantPatterns []string        `json:"merchantPatterns"`
	ConfidenceScore  float64         `json:"confidenceScore"`
	SuccessRate      float64         `json:"successRate"`
	MatchCount       int             `json:"matchCount"`
	IsActive         bool            `json:"isActive"`
}

// DefaultSuccessRate is the starting success rate of a new rule.
const DefaultSuccessRate = 0.5

// Validate ensures the rule has valid data. Merchant patterns are checked separately
// because compiling them is the pattern package's concern.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}

	if r.CategoryID == "" {
		return fmt.Errorf("category is required")
	}

	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score must be between 0 and 1, got %.2f", r.ConfidenceScore)
	}

	if p := r.AmountPatterns; p != nil && p.MinAmount != nil && p.MaxAmount != nil && p.MinAmount.GreaterThan(*p.MaxAmount) {
		return fmt.Errorf("amount min must be less than or equal to amount max")
	}

	return nil
}

// HasAnyKeyword reports whether one of the rule's keywords equals one of words, ignoring case.
func (r *Rule) HasAnyKeyword(words map[string]bool) bool {
	for _, kw := range r.Keywords {
		if words[strings.ToLower(kw)] {
			return true
		}
	}
	return false
}
