package model

import (
	"fmt"
	"sort"
)

// PotentialMatch is one candidate client for a transaction.
type PotentialMatch struct {
	ClientID   string
	ClientName string
	MatchType  MatchType
	Reason     string
	PatternID  string
	Confidence float64
}

// Validate ensures the PotentialMatch has valid data.
func (m *PotentialMatch) Validate() error {
	if m.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}

	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", m.Confidence)
	}

	return nil
}

// PotentialMatches is a slice of PotentialMatch ranked by confidence.
type PotentialMatches []PotentialMatch

// Sort orders matches by confidence, highest first. Equal confidences keep their
// relative order.
func (m PotentialMatches) Sort() {
	sort.SliceStable(m, func(i, j int) bool {
		return m[i].Confidence > m[j].Confidence
	})
}

// Top returns the highest-confidence match, or nil if empty.
func (m PotentialMatches) Top() *PotentialMatch {
	if len(m) == 0 {
		return nil
	}
	m.Sort()
	return &m[0]
}

// TopN returns the N highest-confidence matches.
func (m PotentialMatches) TopN(n int) PotentialMatches {
	if n <= 0 {
		return PotentialMatches{}
	}

	m.Sort()

	if n > len(m) {
		n = len(m)
	}

	result := make(PotentialMatches, n)
	copy(result, m[:n])
	return result
}

// AboveThreshold returns all matches with confidence at or above the threshold.
func (m PotentialMatches) AboveThreshold(threshold float64) PotentialMatches {
	m.Sort()

	var result PotentialMatches
	for _, match := range m {
		if match.Confidence >= threshold {
			result = append(result, match)
		}
	}
	return result
}
