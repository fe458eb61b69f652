package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		rule    Rule
		wantErr bool
	}{
		{
			name:    "valid rule",
			rule:    Rule{Name: "Streaming", CategoryID: "cat-1", ConfidenceScore: 0.9},
			wantErr: false,
		},
		{
			name:    "missing name",
			rule:    Rule{CategoryID: "cat-1"},
			wantErr: true,
			errMsg:  "rule name is required",
		},
		{
			name:    "missing category",
			rule:    Rule{Name: "Streaming"},
			wantErr: true,
			errMsg:  "category is required",
		},
		{
			name:    "confidence too high",
			rule:    Rule{Name: "Streaming", CategoryID: "cat-1", ConfidenceScore: 1.5},
			wantErr: true,
			errMsg:  "confidence score must be between 0 and 1, got 1.50",
		},
		{
			name: "inverted amount range",
			rule: Rule{
				Name:            "Rent",
				CategoryID:      "cat-1",
				ConfidenceScore: 0.8,
				AmountPatterns: &AmountPatterns{
					MinAmount: decPtr("500"),
					MaxAmount: decPtr("100"),
				},
			},
			wantErr: true,
			errMsg:  "amount min must be less than or equal to amount max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() error = nil, want error containing %q", tt.errMsg)
				} else if tt.errMsg != "" && err.Error() != tt.errMsg {
					t.Errorf("Validate() error = %v, want %v", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestAmountPatterns_Matches(t *testing.T) {
	patterns := AmountPatterns{
		ExactAmounts: []decimal.Decimal{decimal.RequireFromString("-15.99")},
		MinAmount:    decPtr("100"),
		MaxAmount:    decPtr("200"),
	}

	tests := []struct {
		name      string
		amount    string
		wantExact bool
		wantRange bool
	}{
		{name: "exact amount", amount: "-15.99", wantExact: true},
		{name: "exact amount with trailing zero", amount: "-15.990", wantExact: true},
		{name: "lower bound inclusive", amount: "100", wantRange: true},
		{name: "upper bound inclusive", amount: "200.00", wantRange: true},
		{name: "outside range", amount: "200.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			if got := patterns.MatchesExact(amount); got != tt.wantExact {
				t.Errorf("MatchesExact(%s) = %v, want %v", tt.amount, got, tt.wantExact)
			}
			if got := patterns.MatchesRange(amount); got != tt.wantRange {
				t.Errorf("MatchesRange(%s) = %v, want %v", tt.amount, got, tt.wantRange)
			}
		})
	}
}

func TestAmountPatterns_RangeNeedsBothBounds(t *testing.T) {
	patterns := AmountPatterns{MinAmount: decPtr("10")}
	if patterns.MatchesRange(decimal.NewFromInt(50)) {
		t.Error("MatchesRange() with only a minimum = true, want false")
	}
}

func TestRule_HasAnyKeyword(t *testing.T) {
	rule := Rule{Keywords: []string{"Netflix", "Subscription"}}
	words := map[string]bool{"subscription": true, "recurring": true}

	if !rule.HasAnyKeyword(words) {
		t.Error("HasAnyKeyword() = false, want true")
	}

	rule.Keywords = []string{"groceries"}
	if rule.HasAnyKeyword(words) {
		t.Error("HasAnyKeyword() = true, want false")
	}
}

func TestClientMatchingPattern_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pattern ClientMatchingPattern
		wantErr bool
	}{
		{
			name:    "valid amount range",
			pattern: ClientMatchingPattern{ClientID: "c1", PatternType: PatternAmountRange, AmountMin: decPtr("10"), AmountMax: decPtr("20"), Confidence: 0.8},
		},
		{
			name:    "amount range without max",
			pattern: ClientMatchingPattern{ClientID: "c1", PatternType: PatternAmountRange, AmountMin: decPtr("10"), Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "valid description",
			pattern: ClientMatchingPattern{ClientID: "c1", PatternType: PatternDescription, Pattern: "acme", Confidence: 0.8},
		},
		{
			name:    "reference without pattern",
			pattern: ClientMatchingPattern{ClientID: "c1", PatternType: PatternReference, Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "unknown type",
			pattern: ClientMatchingPattern{ClientID: "c1", PatternType: "weekday", Confidence: 0.8},
			wantErr: true,
		},
		{
			name:    "missing client",
			pattern: ClientMatchingPattern{PatternType: PatternDescription, Pattern: "acme"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetectorResult(t *testing.T) {
	none := NoResult()
	if none.Ok() {
		t.Error("NoResult().Ok() = true, want false")
	}

	found := Found(DetectorKeyword, CategorizationResult{CategoryID: "cat", Confidence: 0.6})
	if !found.Ok() || found.Result.CategoryID != "cat" {
		t.Errorf("Found() = %+v, want ok result for cat", found)
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
