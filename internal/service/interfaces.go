// Package service defines the store contracts the engines depend on.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Status    model.TransactionStatus
	Limit     int
	Offset    int
}

// TransactionFeed reads and writes the transaction rows produced by bank sync.
type TransactionFeed interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)

	// ListUncategorizedTransactions returns confirmed transactions without a
	// categorization, restricted to ids when ids is non-empty.
	ListUncategorizedTransactions(ctx context.Context, ids []string, limit int) ([]model.Transaction, error)
	// ListCounterpartyHistory returns confirmed transactions on accountID whose
	// counterparty equals counterparty ignoring case, dated on or after since,
	// excluding excludeID.
	ListCounterpartyHistory(ctx context.Context, counterparty, accountID, excludeID string, since time.Time) ([]model.Transaction, error)
	// ListConfirmedSince returns every confirmed transaction dated on or after since.
	ListConfirmedSince(ctx context.Context, since time.Time) ([]model.Transaction, error)
	// ListUnlinkedTransactions returns confirmed transactions with no client link,
	// newest first, restricted to ids when ids is non-empty.
	ListUnlinkedTransactions(ctx context.Context, ids []string, limit, offset int) ([]model.Transaction, error)
	CountUnlinkedTransactions(ctx context.Context) (int, error)
}

// RuleStore is the persistent catalog of categorization rules.
type RuleStore interface {
	// ListActiveRules returns active rules ordered by confidence then success rate, both descending.
	ListActiveRules(ctx context.Context) ([]model.Rule, error)
	ListRules(ctx context.Context) ([]model.Rule, error)
	GetRule(ctx context.Context, id string) (*model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeactivateRule(ctx context.Context, id string) error
	// RecordRuleFeedback atomically adds one to the match count, adds delta to the
	// success rate and sets last used.
	RecordRuleFeedback(ctx context.Context, id string, delta float64, usedAt time.Time) error
	// ListTopRules returns up to limit active rules that produced more than
	// minUses categorizations, ordered by success rate then match count.
	ListTopRules(ctx context.Context, minUses, limit int) ([]RuleUsage, error)
}

// RuleUsage is a rule together with how many categorizations reference it.
type RuleUsage struct {
	Rule            model.Rule
	Categorizations int
}

// PredictionStats counts engine categorizations that received a user verdict.
type PredictionStats struct {
	Total   int
	Correct int
}

// CategorizationStore persists at most one categorization per transaction.
type CategorizationStore interface {
	GetCategorization(ctx context.Context, transactionID string) (*model.Categorization, error)
	SaveCategorization(ctx context.Context, c *model.Categorization) error
	// SaveCategorizations upserts all rows in a single database transaction.
	SaveCategorizations(ctx context.Context, cs []model.Categorization) error
	RecordCategorizationFeedback(ctx context.Context, fb model.Feedback) error
	GetPredictionStats(ctx context.Context) (PredictionStats, error)
}

// CategoryCatalog is the read-mostly category reference data.
type CategoryCatalog interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	GetSubcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error)
	CreateSubcategory(ctx context.Context, sub *model.Subcategory) error
}

// ClientDirectory is the read side of the client directory used by matching.
type ClientDirectory interface {
	GetClient(ctx context.Context, id string) (*model.Client, error)
	// FindClientsByReference returns clients whose reference or payment_reference
	// custom field, or bank account, equals ref.
	FindClientsByReference(ctx context.Context, ref string) ([]model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	ListActiveMatchingPatterns(ctx context.Context) ([]model.ClientMatchingPattern, error)
}

// ClientStore adds the write side of the client directory.
type ClientStore interface {
	ClientDirectory
	CreateClient(ctx context.Context, client *model.Client) error
	CreateMatchingPattern(ctx context.Context, pattern *model.ClientMatchingPattern) error
	GetMatchingPattern(ctx context.Context, id string) (*model.ClientMatchingPattern, error)
	UpdateMatchingPattern(ctx context.Context, pattern *model.ClientMatchingPattern) error
	// DeactivateMatchingPattern keeps the row but stops it from matching.
	DeactivateMatchingPattern(ctx context.Context, id string) error
	// ListMatchingPatterns returns the client's patterns, most used first.
	ListMatchingPatterns(ctx context.Context, clientID string) ([]model.ClientMatchingPattern, error)
}

// LinkedTransaction is a client link joined with its transaction.
type LinkedTransaction struct {
	Link        model.ClientTransactionLink
	Transaction model.Transaction
}

// LinkStore persists client transaction links.
type LinkStore interface {
	GetLink(ctx context.Context, id string) (*model.ClientTransactionLink, error)
	// GetLinksForTransaction returns the transaction's links, newest first.
	GetLinksForTransaction(ctx context.Context, transactionID string) ([]model.ClientTransactionLink, error)
	CreateLink(ctx context.Context, link *model.ClientTransactionLink) error
	// CreateLinks inserts links and increments the match count of each pattern in
	// patternIDs, all in one database transaction. A pattern listed twice is
	// incremented twice.
	CreateLinks(ctx context.Context, links []model.ClientTransactionLink, patternIDs []string) error
	DeleteLink(ctx context.Context, id string) error
	// ListClientLinks returns the client's links to confirmed transactions.
	ListClientLinks(ctx context.Context, clientID string) ([]LinkedTransaction, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionFeed
	RuleStore
	CategorizationStore
	CategoryCatalog
	ClientStore
	LinkStore

	Migrate(ctx context.Context) error
	Close() error
}
