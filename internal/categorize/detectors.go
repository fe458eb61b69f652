package categorize

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Confidence ceilings and multipliers of the four detectors.
const (
	merchantBoost       = 1.1
	merchantCeiling     = 0.98
	keywordCeiling      = 0.9
	keywordFloor        = 0.5
	exactAmountFactor   = 0.85
	amountRangeFactor   = 0.7
	frequencyConfidence = 0.75
	minPriorOccurrences = 2
)

// matchMerchant returns the first rule, in rank order, with a merchant pattern
// matching the counterparty or the description.
func (rs *RuleSet) matchMerchant(txn model.Transaction) model.DetectorResult {
	for _, cr := range rs.rules {
		for _, p := range cr.patterns {
			if !p.re.MatchString(txn.CounterpartyName) && !p.re.MatchString(txn.Description) {
				continue
			}
			return model.Found(model.DetectorPattern, model.CategorizationResult{
				CategoryID:    cr.rule.CategoryID,
				SubcategoryID: cr.rule.SubcategoryID,
				Method:        model.MethodPattern,
				RuleID:        cr.rule.ID,
				Reasoning:     "Matched merchant pattern: " + p.source,
				Confidence:    math.Min(cr.rule.ConfidenceScore*merchantBoost, merchantCeiling),
			})
		}
	}
	return model.NoResult()
}

// matchKeywords picks the rule with the most keywords found in the transaction
// text. The earlier ranked rule keeps a tie.
func (rs *RuleSet) matchKeywords(txn model.Transaction) model.DetectorResult {
	text := txn.SearchText()

	var (
		best    *compiledRule
		matched []string
	)
	for i := range rs.rules {
		cr := &rs.rules[i]
		if len(cr.keywords) == 0 {
			continue
		}

		var hits []string
		for _, kw := range cr.keywords {
			if strings.Contains(text, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > len(matched) {
			best, matched = cr, hits
		}
	}

	if best == nil {
		return model.NoResult()
	}

	ratio := float64(len(matched)) / float64(len(best.keywords))
	confidence := math.Min(best.rule.ConfidenceScore*ratio, keywordCeiling)
	if confidence <= keywordFloor {
		return model.NoResult()
	}

	return model.Found(model.DetectorKeyword, model.CategorizationResult{
		CategoryID:    best.rule.CategoryID,
		SubcategoryID: best.rule.SubcategoryID,
		Method:        model.MethodKeyword,
		RuleID:        best.rule.ID,
		Reasoning:     "Matched keywords: " + strings.Join(matched, ", "),
		Confidence:    confidence,
	})
}

// matchAmount returns the first rule whose exact amounts contain the transaction
// amount, or whose amount range includes it.
func (rs *RuleSet) matchAmount(txn model.Transaction) model.DetectorResult {
	for _, cr := range rs.rules {
		p := cr.rule.AmountPatterns
		if p == nil {
			continue
		}

		result := model.CategorizationResult{
			CategoryID:    cr.rule.CategoryID,
			SubcategoryID: cr.rule.SubcategoryID,
			Method:        model.MethodAmount,
			RuleID:        cr.rule.ID,
		}

		switch {
		case p.MatchesExact(txn.Amount):
			result.Confidence = cr.rule.ConfidenceScore * exactAmountFactor
			result.Reasoning = "Matched exact amount: " + txn.Amount.String()
		case p.MatchesRange(txn.Amount):
			result.Confidence = cr.rule.ConfidenceScore * amountRangeFactor
			result.Reasoning = fmt.Sprintf("Amount in range: %s - %s", p.MinAmount, p.MaxAmount)
		default:
			continue
		}
		return model.Found(model.DetectorAmount, result)
	}
	return model.NoResult()
}

// matchFrequency flags transactions that recur on a fixed cadence and assigns
// them to the first rule tagged for recurring payments. prior holds the earlier
// transactions from the same counterparty and account.
func (rs *RuleSet) matchFrequency(txn model.Transaction, prior []model.Transaction) model.DetectorResult {
	if rs.recurring == nil || len(prior) < minPriorOccurrences {
		return model.NoResult()
	}

	dates := make([]time.Time, 0, len(prior)+1)
	dates = append(dates, txn.Date)
	for _, p := range prior {
		dates = append(dates, p.Date)
	}

	cadence := DetectCadence(dates)
	if cadence == CadenceNone {
		return model.NoResult()
	}

	return model.Found(model.DetectorFrequency, model.CategorizationResult{
		CategoryID:    rs.recurring.CategoryID,
		SubcategoryID: rs.recurring.SubcategoryID,
		Method:        model.MethodFrequency,
		RuleID:        rs.recurring.ID,
		Reasoning:     fmt.Sprintf("Recurring %s transaction pattern detected (%d similar transactions)", cadence, len(prior)),
		Confidence:    frequencyConfidence,
	})
}

// selectBest returns the highest-confidence result. Ties keep the earlier detector.
func selectBest(results []model.DetectorResult) *model.CategorizationResult {
	var best *model.CategorizationResult
	for _, r := range results {
		if !r.Ok() {
			continue
		}
		if best == nil || r.Result.Confidence > best.Confidence {
			best = r.Result
		}
	}
	return best
}
