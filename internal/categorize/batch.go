package categorize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ProgressFunc is called after each transaction of a batch run is evaluated.
type ProgressFunc func(done, total int)

// BatchCategorize categorizes confirmed transactions that have no categorization
// yet. When ids is empty every eligible transaction is considered, up to the
// configured batch limit. The rule catalog and the counterparty history are read
// once, and all results are written in a single database transaction.
func (e *Engine) BatchCategorize(ctx context.Context, ids []string, progress ProgressFunc) (map[string]model.CategorizationResult, error) {
	startTime := time.Now()

	limit := 0
	if len(ids) == 0 {
		limit = e.config.BatchLimit
	}

	transactions, err := e.store.ListUncategorizedTransactions(ctx, ids, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	results := make(map[string]model.CategorizationResult, len(transactions))
	if len(transactions) == 0 {
		slog.Info("No transactions to categorize")
		return results, nil
	}

	rules, err := e.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	since := e.lookbackStart()
	confirmed, err := e.store.ListConfirmedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}
	index := NewHistoryIndex(confirmed, since)
	lookup := func(_ context.Context, txn model.Transaction) ([]model.Transaction, error) {
		return index.Prior(txn), nil
	}

	slog.Info("Starting batch categorization",
		"transactions", len(transactions),
		"rules", rules.Len())

	categorizations := make([]model.Categorization, 0, len(transactions))
	for i, txn := range transactions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if result := e.evaluate(ctx, rules, txn, lookup); result != nil {
			results[txn.ID] = *result
			categorizations = append(categorizations, model.NewCategorization(txn.ID, *result))
		}

		if progress != nil {
			progress(i+1, len(transactions))
		}
	}

	if err := e.store.SaveCategorizations(ctx, categorizations); err != nil {
		return nil, fmt.Errorf("failed to save categorizations: %w", err)
	}

	slog.Info("Batch categorization complete",
		"processed", len(transactions),
		"categorized", len(categorizations),
		"duration", time.Since(startTime))

	return results, nil
}
