package categorize

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(store *memStore) *Engine {
	engine := NewEngine(store)
	engine.SetClock(func() time.Time { return testNow })
	return engine
}

func netflixRule() model.Rule {
	return model.Rule{
		ID:               "rule-netflix",
		Name:             "Netflix",
		MerchantPatterns: []string{"netflix"},
		Keywords:         []string{"netflix", "subscription"},
		CategoryID:       "cat-entertainment",
		ConfidenceScore:  0.9,
	}
}

func TestEngine_CategorizeNetflix(t *testing.T) {
	store := newMemStore()
	store.addRule(netflixRule())
	engine := newTestEngine(store)

	result, err := engine.Categorize(context.Background(), netflixTransaction())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.MethodPattern, result.Method)
	assert.Equal(t, 0.98, result.Confidence)
	assert.Equal(t, "cat-entertainment", result.CategoryID)
}

func TestEngine_CategorizeIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addRule(netflixRule())
	store.addRule(model.Rule{
		Name:            "Streaming amount",
		AmountPatterns:  &model.AmountPatterns{MinAmount: decPtr("-20"), MaxAmount: decPtr("-10")},
		CategoryID:      "cat-entertainment",
		ConfidenceScore: 0.7,
	})
	engine := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.Categorize(ctx, netflixTransaction())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := engine.Categorize(ctx, netflixTransaction())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_CategorizeNoMatch(t *testing.T) {
	store := newMemStore()
	store.addRule(model.Rule{Name: "Rent", Keywords: []string{"rent"}, CategoryID: "cat-housing", ConfidenceScore: 0.9})
	engine := newTestEngine(store)

	result, err := engine.Categorize(context.Background(), netflixTransaction())
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEngine_CategorizeRuleStoreFailure(t *testing.T) {
	store := newMemStore()
	store.rulesErr = errStoreDown
	engine := newTestEngine(store)

	_, err := engine.Categorize(context.Background(), netflixTransaction())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestEngine_FrequencyDetector(t *testing.T) {
	tests := []struct {
		name       string
		gaps       []int
		wantResult bool
	}{
		{name: "monthly series", gaps: []int{30, 31, 29}, wantResult: true},
		{name: "one out-of-window gap", gaps: []int{30, 30, 10}, wantResult: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			store.addRule(model.Rule{Name: "Subscriptions", Keywords: []string{"subscription"}, CategoryID: "cat-subs", ConfidenceScore: 0.5})

			start := testNow.AddDate(0, 0, -sum(tt.gaps))
			dates := datesWithGaps(start, tt.gaps...)
			for i, d := range dates[:len(dates)-1] {
				store.transactions = append(store.transactions, txnAt(fmt.Sprintf("prior-%d", i), "Spotify", "-9.99", d))
			}
			current := txnAt("current", "SPOTIFY", "-9.99", dates[len(dates)-1])
			store.transactions = append(store.transactions, current)

			result, err := newTestEngine(store).Categorize(context.Background(), current)
			require.NoError(t, err)
			if !tt.wantResult {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, model.MethodFrequency, result.Method)
			assert.Equal(t, 0.75, result.Confidence)
			assert.Equal(t, "cat-subs", result.CategoryID)
		})
	}
}

func TestEngine_FrequencyLookbackWindow(t *testing.T) {
	store := newMemStore()
	store.addRule(model.Rule{Name: "Subscriptions", Keywords: []string{"monthly"}, CategoryID: "cat-subs", ConfidenceScore: 0.5})

	// Only one prior transaction falls inside the three month window.
	current := txnAt("current", "Gym", "-40", testNow)
	store.transactions = []model.Transaction{
		txnAt("old", "Gym", "-40", testNow.AddDate(0, 0, -120)),
		txnAt("older", "Gym", "-40", testNow.AddDate(0, 0, -150)),
		txnAt("recent", "Gym", "-40", testNow.AddDate(0, 0, -30)),
		current,
	}

	result, err := newTestEngine(store).Categorize(context.Background(), current)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestEngine_DetectorFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.addRule(netflixRule())
	store.historyErr = errStoreDown
	engine := newTestEngine(store)

	result, err := engine.Categorize(context.Background(), netflixTransaction())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, model.MethodPattern, result.Method)
	assert.Equal(t, 1, store.historyCalls)
}

func TestEngine_CategorizeAndSave(t *testing.T) {
	store := newMemStore()
	store.addRule(netflixRule())
	engine := newTestEngine(store)
	ctx := context.Background()
	txn := netflixTransaction()

	for i := 0; i < 2; i++ {
		result, err := engine.CategorizeAndSave(ctx, txn)
		require.NoError(t, err)
		require.NotNil(t, result)
	}

	require.Len(t, store.categorizations, 1)
	saved := store.categorizations[txn.ID]
	assert.Equal(t, "rule-netflix", saved.RuleID)
	assert.Equal(t, model.MethodPattern, saved.Method)

	other := txnAt("txn-rent", "Landlord", "-1200", testNow)
	result, err := engine.CategorizeAndSave(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, store.categorizations, 1)
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
