// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"
)

// Method records how a categorization was produced.
type Method string

// Categorization method constants.
const (
	MethodManual    Method = "manual"
	MethodPattern   Method = "ai_pattern"
	MethodKeyword   Method = "ai_keyword"
	MethodAmount    Method = "ai_amount"
	MethodFrequency Method = "ai_frequency"
	MethodAuto      Method = "ai_auto"
	MethodSuggested Method = "ai_suggested"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodManual, MethodPattern, MethodKeyword, MethodAmount,
		MethodFrequency, MethodAuto, MethodSuggested:
		return true
	}
	return false
}

// IsAI reports whether the method is one of the engine's own methods.
func (m Method) IsAI() bool {
	return m.Valid() && m != MethodManual
}

// CategorizationResult is the engine's best guess for one transaction.
type CategorizationResult struct {
	CategoryID    string
	SubcategoryID string
	Method        Method
	RuleID        string
	Reasoning     string
	Confidence    float64
}

// Categorization is the persisted categorization of a transaction. There is at most
// one per transaction.
type Categorization struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	UserConfirmed     *bool
	ID                string
	TransactionID     string
	CategoryID        string
	SubcategoryID     string
	Method            Method
	RuleID            string
	Reasoning         string
	UserCategoryID    string
	UserSubcategoryID string
	ConfidenceScore   float64
}

// NewCategorization builds the row persisted for an engine result.
func NewCategorization(transactionID string, result CategorizationResult) Categorization {
	return Categorization{
		TransactionID:   transactionID,
		CategoryID:      result.CategoryID,
		SubcategoryID:   result.SubcategoryID,
		Method:          result.Method,
		RuleID:          result.RuleID,
		Reasoning:       result.Reasoning,
		ConfidenceScore: result.Confidence,
	}
}

// Validate ensures the categorization has valid data.
func (c *Categorization) Validate() error {
	if c.TransactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if c.CategoryID == "" {
		return fmt.Errorf("category is required")
	}
	if !c.Method.Valid() {
		return fmt.Errorf("invalid categorization method %q", c.Method)
	}
	if c.ConfidenceScore < 0 || c.ConfidenceScore > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %.2f", c.ConfidenceScore)
	}
	return nil
}

// Detector identifies one of the four categorization heuristics.
type Detector string

// Detector constants. DetectorNone marks the absence of a result.
const (
	DetectorNone      Detector = "none"
	DetectorPattern   Detector = "pattern"
	DetectorKeyword   Detector = "keyword"
	DetectorAmount    Detector = "amount"
	DetectorFrequency Detector = "frequency"
)

// DetectorResult is the outcome of running one detector. Result is nil exactly when
// Detector is DetectorNone.
type DetectorResult struct {
	Result   *CategorizationResult
	Detector Detector
}

// NoResult is the empty detector outcome.
func NoResult() DetectorResult {
	return DetectorResult{Detector: DetectorNone}
}

// Found wraps a detector's result.
func Found(d Detector, r CategorizationResult) DetectorResult {
	return DetectorResult{Detector: d, Result: &r}
}

// Ok reports whether the detector produced a result.
func (d DetectorResult) Ok() bool {
	return d.Detector != DetectorNone && d.Result != nil
}

// Feedback is a user's verdict on a categorization.
type Feedback struct {
	TransactionID          string `json:"transactionId"`
	ActualCategoryID       string `json:"actualCategoryId"`
	ActualSubcategoryID    string `json:"actualSubcategoryId,omitempty"`
	PredictedCategoryID    string `json:"predictedCategoryId,omitempty"`
	PredictedSubcategoryID string `json:"predictedSubcategoryId,omitempty"`
	WasCorrect             bool   `json:"wasCorrect"`
}

// Validate ensures the feedback names a transaction and the actual category.
func (f *Feedback) Validate() error {
	if f.TransactionID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if f.ActualCategoryID == "" {
		return fmt.Errorf("actual category is required")
	}
	return nil
}
