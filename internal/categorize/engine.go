// Package categorize infers the category of bank transactions from the rule
// catalog and learns from the user's corrections.
package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
)

// EngineStore is the persistence the categorization engine reads and writes.
type EngineStore interface {
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	ListUncategorizedTransactions(ctx context.Context, ids []string, limit int) ([]model.Transaction, error)
	ListCounterpartyHistory(ctx context.Context, counterparty, accountID, excludeID string, since time.Time) ([]model.Transaction, error)
	ListConfirmedSince(ctx context.Context, since time.Time) ([]model.Transaction, error)
	SaveCategorization(ctx context.Context, c *model.Categorization) error
	SaveCategorizations(ctx context.Context, cs []model.Categorization) error
}

// historyLookup returns the earlier transactions the frequency detector compares against.
type historyLookup func(ctx context.Context, txn model.Transaction) ([]model.Transaction, error)

// Engine runs the four detectors against the rule catalog.
type Engine struct {
	store    EngineStore
	patterns *pattern.Cache
	now      func() time.Time
	config   Config
}

// NewEngine creates a categorization engine with the default configuration.
func NewEngine(store EngineStore) *Engine {
	return NewEngineWithConfig(store, DefaultConfig())
}

// NewEngineWithConfig creates a categorization engine with custom configuration.
func NewEngineWithConfig(store EngineStore, config Config) *Engine {
	return &Engine{
		store:    store,
		patterns: pattern.NewCache(),
		now:      time.Now,
		config:   config.withDefaults(),
	}
}

// SetClock replaces the clock that anchors the frequency lookback window.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Categorize returns the best categorization for txn, or nil when no detector
// produced a result. Detector failures are logged and never returned; an error
// means the rule catalog could not be loaded.
func (e *Engine) Categorize(ctx context.Context, txn model.Transaction) (*model.CategorizationResult, error) {
	rules, err := e.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	since := e.lookbackStart()
	lookup := func(ctx context.Context, txn model.Transaction) ([]model.Transaction, error) {
		if txn.CounterpartyName == "" {
			return nil, nil
		}
		return e.store.ListCounterpartyHistory(ctx, txn.CounterpartyName, txn.AccountID, txn.ID, since)
	}

	return e.evaluate(ctx, rules, txn, lookup), nil
}

// CategorizeAndSave categorizes txn and upserts the result. Nothing is written
// when no detector produced a result.
func (e *Engine) CategorizeAndSave(ctx context.Context, txn model.Transaction) (*model.CategorizationResult, error) {
	result, err := e.Categorize(ctx, txn)
	if err != nil || result == nil {
		return result, err
	}

	c := model.NewCategorization(txn.ID, *result)
	if err := e.store.SaveCategorization(ctx, &c); err != nil {
		return nil, fmt.Errorf("failed to save categorization: %w", err)
	}
	return result, nil
}

func (e *Engine) loadRules(ctx context.Context) (*RuleSet, error) {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return NewRuleSet(rules, e.patterns), nil
}

func (e *Engine) lookbackStart() time.Time {
	return e.now().AddDate(0, -e.config.LookbackMonths, 0)
}

func (e *Engine) evaluate(ctx context.Context, rules *RuleSet, txn model.Transaction, history historyLookup) *model.CategorizationResult {
	results := []model.DetectorResult{
		rules.matchMerchant(txn),
		rules.matchKeywords(txn),
		rules.matchAmount(txn),
		e.frequency(ctx, rules, txn, history),
	}

	best := selectBest(results)
	if best != nil {
		slog.Debug("Categorized transaction",
			"transaction", txn.ID,
			"method", best.Method,
			"confidence", best.Confidence,
			"rule", best.RuleID)
	}
	return best
}

func (e *Engine) frequency(ctx context.Context, rules *RuleSet, txn model.Transaction, history historyLookup) model.DetectorResult {
	if rules.recurring == nil {
		return model.NoResult()
	}

	prior, err := history(ctx, txn)
	if err != nil {
		slog.Warn("Frequency detector failed",
			"transaction", txn.ID,
			"error", err)
		return model.NoResult()
	}
	return rules.matchFrequency(txn, prior)
}
