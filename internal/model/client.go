package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a business client as exposed by the client directory.
type Client struct {
	CustomFields map[string]string
	ID           string
	Name         string
	BusinessName string
	BankAccount  string
}

// DisplayName prefers the business name.
func (c *Client) DisplayName() string {
	if c.BusinessName != "" {
		return c.BusinessName
	}
	return c.Name
}

// PatternType selects what a client matching pattern tests.
type PatternType string

// Pattern type constants.
const (
	PatternAmountRange PatternType = "amount_range"
	PatternDescription PatternType = "description"
	PatternReference   PatternType = "reference"
)

// DefaultPatternConfidence is used when a pattern is created without a confidence.
const DefaultPatternConfidence = 0.8

// ClientMatchingPattern is a learned or manual hint that a transaction belongs to a client.
type ClientMatchingPattern struct {
	CreatedAt   time.Time
	AmountMin   *decimal.Decimal
	AmountMax   *decimal.Decimal
	ID          string
	ClientID    string
	PatternType PatternType
	Pattern     string
	Confidence  float64
	MatchCount  int
	IsActive    bool
}

// Validate ensures the pattern has valid data.
func (p *ClientMatchingPattern) Validate() error {
	if p.ClientID == "" {
		return fmt.Errorf("client is required")
	}

	switch p.PatternType {
	case PatternAmountRange:
		if p.AmountMin == nil || p.AmountMax == nil {
			return fmt.Errorf("amount range patterns need both amount min and amount max")
		}
		if p.AmountMin.GreaterThan(*p.AmountMax) {
			return fmt.Errorf("amount min must be less than or equal to amount max")
		}
	case PatternDescription, PatternReference:
		if p.Pattern == "" {
			return fmt.Errorf("%s patterns need a pattern", p.PatternType)
		}
	default:
		return fmt.Errorf("invalid pattern type %q", p.PatternType)
	}

	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}

	return nil
}

// MatchType records which strategy linked a transaction to a client.
type MatchType string

// Match type constants.
const (
	MatchReference MatchType = "reference"
	MatchFuzzy     MatchType = "fuzzy"
	MatchPattern   MatchType = "pattern"
	MatchManual    MatchType = "manual"
)

// ClientTransactionLink attaches a transaction to a client.
type ClientTransactionLink struct {
	MatchedAt        time.Time
	ID               string
	TransactionID    string
	ClientID         string
	MatchType        MatchType
	MatchedBy        string
	PreviousLinkID   string
	Notes            string
	MatchConfidence  float64
	IsManualOverride bool
}
