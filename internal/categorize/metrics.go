package categorize

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

const (
	topRuleLimit   = 5
	topRuleMinUses = 5
)

// PerformanceMetrics summarizes how well the engine's predictions held up
// against user verdicts.
type PerformanceMetrics struct {
	TopRules           []service.RuleUsage
	Suggestions        []string
	TotalPredictions   int
	CorrectPredictions int
	// Accuracy is a percentage between 0 and 100.
	Accuracy float64
}

// PerformanceMetrics computes prediction accuracy, the best performing rules and
// suggestions for improving the rule catalog.
func (l *Learner) PerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	stats, err := l.store.GetPredictionStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction stats: %w", err)
	}

	top, err := l.store.ListTopRules(ctx, topRuleMinUses, topRuleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top rules: %w", err)
	}

	rules, err := l.store.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	m := &PerformanceMetrics{
		TotalPredictions:   stats.Total,
		CorrectPredictions: stats.Correct,
		TopRules:           top,
	}
	if stats.Total > 0 {
		m.Accuracy = float64(stats.Correct) / float64(stats.Total) * 100
	}

	if m.Accuracy < 70 {
		m.Suggestions = append(m.Suggestions,
			"Consider adding more specific rules for common merchants",
			"Review and update keyword patterns for better matching")
	}
	if len(top) < topRuleLimit {
		m.Suggestions = append(m.Suggestions, "Create more rules to cover common transaction patterns")
	}
	if m.Accuracy > 90 {
		m.Suggestions = append(m.Suggestions, "Excellent performance! Consider expanding to more nuanced categorization")
	}
	for _, r := range rules {
		if r.SuccessRate < model.DefaultSuccessRate {
			m.Suggestions = append(m.Suggestions,
				fmt.Sprintf("Review rule %q: success rate %.2f is below %.2f", r.Name, r.SuccessRate, model.DefaultSuccessRate))
		}
	}

	return m, nil
}
