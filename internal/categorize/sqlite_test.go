package categorize_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/categorize"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/testutil"
	"github.com/Veraticus/the-books-must-balance/internal/testutil/categories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankTxn(id, description, counterparty, amount string) model.Transaction {
	return model.Transaction{
		ID:               id,
		Date:             time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC),
		Description:      description,
		CounterpartyName: counterparty,
		AccountID:        "acc-1",
		Status:           model.StatusConfirmed,
		Type:             model.TypeDebit,
		Amount:           decimal.RequireFromString(amount),
	}
}

func TestSQLite_CategorizeAndLearn(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDBWithBuilder(t, func(b categories.Builder) categories.Builder {
		return b.WithSubcategory(categories.CategoryFoodDining, "Coffee").
			WithCategory(categories.CategoryGroceries)
	})
	dining := db.MustGetCategory(categories.CategoryFoodDining)
	groceries := db.MustGetCategory(categories.CategoryGroceries)

	rule := &model.Rule{
		Name:             "Coffee shops",
		CategoryID:       dining,
		SubcategoryID:    dining + "-coffee",
		MerchantPatterns: []string{"(?i)starbucks"},
		ConfidenceScore:  0.8,
		SuccessRate:      model.DefaultSuccessRate,
		IsActive:         true,
	}
	require.NoError(t, db.Storage.CreateRule(ctx, rule))

	db.SaveTransactions(
		bankTxn("t-coffee", "STARBUCKS STORE 1234", "Starbucks", "-4.50"),
		bankTxn("t-market", "WHOLE FOODS MARKET", "Whole Foods", "-82.10"),
	)

	engine := categorize.NewEngine(db.Storage)
	results, err := engine.BatchCategorize(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dining, results["t-coffee"].CategoryID)
	assert.Equal(t, model.MethodPattern, results["t-coffee"].Method)

	stored, err := db.Storage.GetCategorization(ctx, "t-coffee")
	require.NoError(t, err)
	assert.Equal(t, dining+"-coffee", stored.SubcategoryID)
	assert.Equal(t, rule.ID, stored.RuleID)

	again, err := engine.BatchCategorize(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, again, "categorized transactions are not revisited")

	learner := categorize.NewLearner(db.Storage, nil)
	require.NoError(t, learner.ProcessFeedback(ctx, model.Feedback{
		TransactionID:       "t-coffee",
		ActualCategoryID:    groceries,
		PredictedCategoryID: dining,
	}))

	updated, err := db.Storage.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MatchCount)
	assert.InDelta(t, 0.49, updated.SuccessRate, 1e-9)

	rules, err := db.Storage.ListRules(ctx)
	require.NoError(t, err)
	var learned *model.Rule
	for i := range rules {
		if rules[i].Name == "Learned: Starbucks" {
			learned = &rules[i]
		}
	}
	require.NotNil(t, learned, "a correction teaches a rule")
	assert.Equal(t, groceries, learned.CategoryID)
	assert.Contains(t, learned.Keywords, "starbucks")

	metrics, err := learner.PerformanceMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalPredictions)
	assert.Equal(t, 0, metrics.CorrectPredictions)
}

func TestSQLite_FrequencyPathsAgreeOnUnicodeCounterparty(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDBWithBuilder(t, func(b categories.Builder) categories.Builder {
		return b.WithCategory(categories.CategoryUtilities)
	})
	utilities := db.MustGetCategory(categories.CategoryUtilities)

	require.NoError(t, db.Storage.CreateRule(ctx, &model.Rule{
		Name:            "Recurring bills",
		Keywords:        []string{"monthly"},
		CategoryID:      utilities,
		ConfidenceScore: 0.8,
		SuccessRate:     model.DefaultSuccessRate,
		IsActive:        true,
	}))

	feb := bankTxn("t-feb", "DIRECT DEBIT", "ÉLECTRICITÉ ÖSTERREICH", "-80")
	feb.Date = time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	mar := bankTxn("t-mar", "DIRECT DEBIT", "électricité österreich", "-80")
	mar.Date = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	apr := bankTxn("t-apr", "DIRECT DEBIT", "Électricité Österreich", "-80")
	db.SaveTransactions(feb, mar, apr)

	engine := categorize.NewEngine(db.Storage)
	engine.SetClock(func() time.Time { return time.Date(2024, 4, 21, 0, 0, 0, 0, time.UTC) })

	single, err := engine.Categorize(ctx, apr)
	require.NoError(t, err)
	require.NotNil(t, single)
	assert.Equal(t, model.MethodFrequency, single.Method)
	assert.InDelta(t, 0.75, single.Confidence, 1e-9)

	batch, err := engine.BatchCategorize(ctx, []string{"t-apr"}, nil)
	require.NoError(t, err)
	require.Contains(t, batch, "t-apr")
	assert.Equal(t, single.Method, batch["t-apr"].Method)
	assert.Equal(t, single.CategoryID, batch["t-apr"].CategoryID)
	assert.InDelta(t, single.Confidence, batch["t-apr"].Confidence, 1e-9)
}
