package storage

import (
	"context"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_LinksNewestFirst(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	saveTestTransactions(t, store, testTransaction("txn-1", "Acme", "250", 0))
	first := createTestClient(t, store, model.Client{Name: "First"})
	second := createTestClient(t, store, model.Client{Name: "Second"})

	auto := &model.ClientTransactionLink{
		TransactionID:   "txn-1",
		ClientID:        first.ID,
		MatchType:       model.MatchFuzzy,
		MatchConfidence: 0.9,
		MatchedBy:       "system",
		MatchedAt:       testBaseTime,
	}
	require.NoError(t, store.CreateLink(ctx, auto))

	override := &model.ClientTransactionLink{
		TransactionID:    "txn-1",
		ClientID:         second.ID,
		MatchType:        model.MatchManual,
		MatchConfidence:  1,
		MatchedBy:        "alice",
		MatchedAt:        testBaseTime.AddDate(0, 0, 1),
		IsManualOverride: true,
		PreviousLinkID:   auto.ID,
		Notes:            "wrong client",
	}
	require.NoError(t, store.CreateLink(ctx, override))

	links, err := store.GetLinksForTransaction(ctx, "txn-1")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, override.ID, links[0].ID)
	assert.Equal(t, auto.ID, links[0].PreviousLinkID)
	assert.True(t, links[0].IsManualOverride)
	assert.Equal(t, "wrong client", links[0].Notes)
	assert.Equal(t, auto.ID, links[1].ID)

	got, err := store.GetLink(ctx, auto.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MatchFuzzy, got.MatchType)
	assert.True(t, got.MatchedAt.Equal(testBaseTime))
}

func TestSQLiteStorage_CreateLinksIsAtomic(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	saveTestTransactions(t, store,
		testTransaction("txn-1", "Acme", "250", 0),
		testTransaction("txn-2", "Acme", "250", 1),
	)
	client := createTestClient(t, store, model.Client{Name: "Acme"})

	links := []model.ClientTransactionLink{
		{TransactionID: "txn-1", ClientID: client.ID, MatchType: model.MatchPattern, MatchConfidence: 0.9, MatchedBy: "system"},
		{TransactionID: "txn-2", ClientID: client.ID, MatchType: model.MatchPattern, MatchConfidence: 0.9, MatchedBy: "system"},
	}
	err := store.CreateLinks(ctx, links, []string{"missing-pattern"})
	require.ErrorIs(t, err, common.ErrNotFound)

	count, err := store.CountUnlinkedTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "links must roll back with the failed pattern update")
}

func TestSQLiteStorage_DeleteLink(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	saveTestTransactions(t, store, testTransaction("txn-1", "Acme", "250", 0))
	client := createTestClient(t, store, model.Client{Name: "Acme"})

	link := &model.ClientTransactionLink{
		TransactionID:   "txn-1",
		ClientID:        client.ID,
		MatchType:       model.MatchReference,
		MatchConfidence: 0.95,
		MatchedBy:       "system",
	}
	require.NoError(t, store.CreateLink(ctx, link))
	require.NoError(t, store.DeleteLink(ctx, link.ID))

	_, err := store.GetLink(ctx, link.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.DeleteLink(ctx, link.ID), common.ErrNotFound)
}

func TestSQLiteStorage_ListClientLinks(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	pending := testTransaction("txn-pending", "Acme", "50", 2)
	pending.Status = model.StatusPending
	saveTestTransactions(t, store,
		testTransaction("txn-1", "Acme", "100", 0),
		testTransaction("txn-2", "Acme", "300", 1),
		pending,
	)
	client := createTestClient(t, store, model.Client{Name: "Acme"})
	other := createTestClient(t, store, model.Client{Name: "Other"})

	require.NoError(t, store.CreateLinks(ctx, []model.ClientTransactionLink{
		{TransactionID: "txn-1", ClientID: client.ID, MatchType: model.MatchReference, MatchConfidence: 0.95, MatchedBy: "system"},
		{TransactionID: "txn-2", ClientID: client.ID, MatchType: model.MatchFuzzy, MatchConfidence: 0.6, MatchedBy: "system"},
		{TransactionID: "txn-pending", ClientID: client.ID, MatchType: model.MatchManual, MatchConfidence: 1, MatchedBy: "bob"},
		{TransactionID: "txn-1", ClientID: other.ID, MatchType: model.MatchManual, MatchConfidence: 1, MatchedBy: "bob"},
	}, nil))

	linked, err := store.ListClientLinks(ctx, client.ID)
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "txn-2", linked[0].Transaction.ID)
	assert.Equal(t, "300", linked[0].Transaction.Amount.String())
	assert.Equal(t, model.MatchFuzzy, linked[0].Link.MatchType)
	assert.Equal(t, "txn-1", linked[1].Transaction.ID)
}
