package categorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

const (
	// feedbackStep is the success rate change applied per feedback event.
	feedbackStep = 0.01
	// learnedRuleConfidence is the starting confidence of a rule learned from a correction.
	learnedRuleConfidence = 0.6
)

// LearnerStore is the persistence the feedback loop reads and writes.
type LearnerStore interface {
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetCategorization(ctx context.Context, transactionID string) (*model.Categorization, error)
	RecordCategorizationFeedback(ctx context.Context, fb model.Feedback) error
	GetPredictionStats(ctx context.Context) (service.PredictionStats, error)
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	RecordRuleFeedback(ctx context.Context, id string, delta float64, usedAt time.Time) error
	ListTopRules(ctx context.Context, minUses, limit int) ([]service.RuleUsage, error)
}

// Refiner adjusts existing rules after a feedback event.
type Refiner interface {
	Refine(ctx context.Context, fb model.Feedback) error
}

// NoopRefiner leaves the rule catalog untouched.
type NoopRefiner struct{}

// Refine implements Refiner.
func (NoopRefiner) Refine(context.Context, model.Feedback) error {
	return nil
}

// Learner applies user feedback to the rule catalog.
type Learner struct {
	store   LearnerStore
	refiner Refiner
	now     func() time.Time
}

// NewLearner creates a feedback learner. A nil refiner is replaced by NoopRefiner.
func NewLearner(store LearnerStore, refiner Refiner) *Learner {
	if refiner == nil {
		refiner = NoopRefiner{}
	}
	return &Learner{
		store:   store,
		refiner: refiner,
		now:     time.Now,
	}
}

// SetClock replaces the clock used for a rule's last used time.
func (l *Learner) SetClock(now func() time.Time) {
	l.now = now
}

// ProcessFeedback records the user's verdict on a categorization. The rule that
// produced it gains one match and its success rate moves by 0.01 toward the
// verdict. An incorrect prediction also teaches a new rule for the actual category.
func (l *Learner) ProcessFeedback(ctx context.Context, fb model.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidFeedback, err)
	}

	if err := l.updateRuleStats(ctx, fb); err != nil {
		return err
	}

	if !fb.WasCorrect && fb.PredictedCategoryID != "" {
		if err := l.learnRule(ctx, fb); err != nil {
			common.LogError(err, "Failed to create learned rule", common.Fields{
				"transaction": fb.TransactionID,
				"category":    fb.ActualCategoryID,
			})
		}
	}

	if err := l.refiner.Refine(ctx, fb); err != nil {
		return fmt.Errorf("failed to refine rules: %w", err)
	}
	return nil
}

// BatchProcessFeedback applies feedback items in order. A failed item is logged
// and skipped; the returned error joins every failure. Only cancellation stops
// the batch early.
func (l *Learner) BatchProcessFeedback(ctx context.Context, items []model.Feedback) error {
	var errs []error
	for i, fb := range items {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		if err := l.ProcessFeedback(ctx, fb); err != nil {
			common.LogError(err, "Failed to process feedback", common.Fields{
				"index":       i,
				"transaction": fb.TransactionID,
			})
			errs = append(errs, fmt.Errorf("feedback %d for transaction %s: %w", i, fb.TransactionID, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Learner) updateRuleStats(ctx context.Context, fb model.Feedback) error {
	c, err := l.store.GetCategorization(ctx, fb.TransactionID)
	if errors.Is(err, common.ErrNotFound) {
		slog.Debug("No categorization for feedback", "transaction", fb.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get categorization: %w", err)
	}

	if c.RuleID != "" {
		delta := -feedbackStep
		if fb.WasCorrect {
			delta = feedbackStep
		}
		if err := l.store.RecordRuleFeedback(ctx, c.RuleID, delta, l.now()); err != nil {
			return fmt.Errorf("failed to update rule statistics: %w", err)
		}
	}

	if err := l.store.RecordCategorizationFeedback(ctx, fb); err != nil {
		return fmt.Errorf("failed to record verdict: %w", err)
	}
	return nil
}

func (l *Learner) learnRule(ctx context.Context, fb model.Feedback) error {
	txn, err := l.store.GetTransaction(ctx, fb.TransactionID)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get transaction: %w", err)
	}

	counterparty := txn.CounterpartyName
	if counterparty == "" {
		counterparty = "Unknown"
	}

	rule := &model.Rule{
		Name:            "Learned: " + counterparty,
		Description:     "Auto-generated rule from user feedback",
		Keywords:        ExtractKeywords(txn.Description, txn.CounterpartyName),
		CategoryID:      fb.ActualCategoryID,
		SubcategoryID:   fb.ActualSubcategoryID,
		ConfidenceScore: learnedRuleConfidence,
		SuccessRate:     model.DefaultSuccessRate,
		IsActive:        true,
	}
	if err := l.store.CreateRule(ctx, rule); err != nil {
		return err
	}

	slog.Info("Learned rule from correction",
		"rule", rule.ID,
		"name", rule.Name,
		"keywords", rule.Keywords)
	return nil
}
