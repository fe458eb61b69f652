package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

const (
	systemUser       = "system"
	manualConfidence = 1.0
)

// Store is the persistence the matching service reads and writes.
type Store interface {
	Directory
	GetClient(ctx context.Context, id string) (*model.Client, error)
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	ListUnlinkedTransactions(ctx context.Context, ids []string, limit, offset int) ([]model.Transaction, error)
	CountUnlinkedTransactions(ctx context.Context) (int, error)
	GetLink(ctx context.Context, id string) (*model.ClientTransactionLink, error)
	GetLinksForTransaction(ctx context.Context, transactionID string) ([]model.ClientTransactionLink, error)
	CreateLink(ctx context.Context, link *model.ClientTransactionLink) error
	CreateLinks(ctx context.Context, links []model.ClientTransactionLink, patternIDs []string) error
	DeleteLink(ctx context.Context, id string) error
	ListClientLinks(ctx context.Context, clientID string) ([]service.LinkedTransaction, error)
	CreateMatchingPattern(ctx context.Context, p *model.ClientMatchingPattern) error
	GetMatchingPattern(ctx context.Context, id string) (*model.ClientMatchingPattern, error)
	UpdateMatchingPattern(ctx context.Context, p *model.ClientMatchingPattern) error
	DeactivateMatchingPattern(ctx context.Context, id string) error
	ListMatchingPatterns(ctx context.Context, clientID string) ([]model.ClientMatchingPattern, error)
}

// ProgressFunc is called after each transaction of an automatic run is matched.
type ProgressFunc func(done, total int)

// AutoMatch is one link created by an automatic run.
type AutoMatch struct {
	TransactionID string
	ClientID      string
	MatchType     model.MatchType
	Confidence    float64
}

// AutoMatchResult summarizes an automatic run.
type AutoMatchResult struct {
	Results   []AutoMatch
	Matched   int
	Processed int
}

// UnlinkedTransaction is a transaction without a client link and its candidates.
type UnlinkedTransaction struct {
	PotentialMatches model.PotentialMatches
	Transaction      model.Transaction
}

// UnlinkedPage is one page of unlinked transactions.
type UnlinkedPage struct {
	Transactions []UnlinkedTransaction
	Total        int
}

// Service links transactions to clients, automatically or by hand.
type Service struct {
	store    Store
	patterns *pattern.Cache
	now      func() time.Time
	config   Config
}

// NewService creates a matching service with the given configuration.
func NewService(store Store, config Config) *Service {
	return &Service{
		store:    store,
		patterns: pattern.NewCache(),
		now:      time.Now,
		config:   config.withDefaults(),
	}
}

// SetClock replaces the clock used to stamp new links.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Suggest returns the potential clients of a single transaction, querying the
// directory live.
func (s *Service) Suggest(ctx context.Context, transactionID string) (model.PotentialMatches, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return newMatcher(s.store, s.config, s.patterns).FindPotentialMatches(ctx, *txn)
}

// RunAutoMatching links unlinked confirmed transactions to their best candidate
// when its confidence reaches the auto-apply threshold. At most the configured
// number of transactions is processed per run, whether or not ids narrows the
// candidates. All links are written in one database transaction.
func (s *Service) RunAutoMatching(ctx context.Context, ids []string, progress ProgressFunc) (*AutoMatchResult, error) {
	startTime := time.Now()

	transactions, err := s.store.ListUnlinkedTransactions(ctx, ids, s.config.AutoLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get unlinked transactions: %w", err)
	}

	result := &AutoMatchResult{}
	if len(transactions) == 0 {
		slog.Info("No transactions to match")
		return result, nil
	}

	snapshot, err := LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	matcher := newMatcher(snapshot, s.config, s.patterns)

	var (
		links      []model.ClientTransactionLink
		patternIDs []string
		matchedAt  = s.now()
	)
	for i, txn := range transactions {
		matches, err := matcher.FindPotentialMatches(ctx, txn)
		if err != nil {
			return nil, err
		}
		result.Processed++

		if best := matches.Top(); best != nil && best.Confidence >= s.config.AutoApplyThreshold {
			links = append(links, model.ClientTransactionLink{
				TransactionID:   txn.ID,
				ClientID:        best.ClientID,
				MatchType:       best.MatchType,
				MatchConfidence: best.Confidence,
				MatchedBy:       systemUser,
				MatchedAt:       matchedAt,
				Notes:           best.Reason,
			})
			if best.PatternID != "" {
				patternIDs = append(patternIDs, best.PatternID)
			}
			result.Results = append(result.Results, AutoMatch{
				TransactionID: txn.ID,
				ClientID:      best.ClientID,
				MatchType:     best.MatchType,
				Confidence:    best.Confidence,
			})
		}

		if progress != nil {
			progress(i+1, len(transactions))
		}
	}

	if err := s.store.CreateLinks(ctx, links, patternIDs); err != nil {
		return nil, fmt.Errorf("failed to save links: %w", err)
	}
	result.Matched = len(links)

	for _, m := range result.Results {
		slog.Info("Auto-matched transaction",
			"transaction", m.TransactionID,
			"client", m.ClientID,
			"type", m.MatchType,
			"confidence", m.Confidence)
	}
	slog.Info("Automatic matching complete",
		"processed", result.Processed,
		"matched", result.Matched,
		"duration", time.Since(startTime))

	return result, nil
}

// LinkTransaction links a transaction to a client by hand. Any confidence is
// accepted. When the transaction already has a link the new one references the
// newest previous link and is marked as an override; the previous row is kept.
func (s *Service) LinkTransaction(ctx context.Context, transactionID, clientID, userID, notes string) (*model.ClientTransactionLink, error) {
	if _, err := s.store.GetTransaction(ctx, transactionID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetLinksForTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing links: %w", err)
	}

	link := &model.ClientTransactionLink{
		TransactionID:   transactionID,
		ClientID:        clientID,
		MatchType:       model.MatchManual,
		MatchConfidence: manualConfidence,
		MatchedBy:       userID,
		MatchedAt:       s.now(),
		Notes:           notes,
	}
	if len(existing) > 0 {
		link.PreviousLinkID = existing[0].ID
		link.IsManualOverride = true
	}

	if err := s.store.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to link transaction: %w", err)
	}

	slog.Info("Transaction manually linked to client",
		"transaction", transactionID,
		"client", clientID,
		"user", userID,
		"override", link.IsManualOverride)
	return link, nil
}

// UnlinkTransaction deletes a link outright. Only the log records who removed it and why.
func (s *Service) UnlinkTransaction(ctx context.Context, linkID, userID, reason string) error {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLink(ctx, linkID); err != nil {
		return fmt.Errorf("failed to unlink transaction: %w", err)
	}

	slog.Info("Transaction unlinked from client",
		"link", linkID,
		"transaction", link.TransactionID,
		"client", link.ClientID,
		"user", userID,
		"reason", reason)
	return nil
}

// UnlinkedTransactions returns a page of unlinked confirmed transactions, newest
// first, each with its potential matches.
func (s *Service) UnlinkedTransactions(ctx context.Context, limit, offset int) (*UnlinkedPage, error) {
	total, err := s.store.CountUnlinkedTransactions(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.ListUnlinkedTransactions(ctx, nil, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get unlinked transactions: %w", err)
	}

	page := &UnlinkedPage{Total: total}
	if len(transactions) == 0 {
		return page, nil
	}

	snapshot, err := LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	matcher := newMatcher(snapshot, s.config, s.patterns)

	page.Transactions = make([]UnlinkedTransaction, 0, len(transactions))
	for _, txn := range transactions {
		matches, err := matcher.FindPotentialMatches(ctx, txn)
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, UnlinkedTransaction{
			Transaction:      txn,
			PotentialMatches: matches,
		})
	}
	return page, nil
}

// CreateMatchingPattern stores a new active pattern for a client. A zero
// confidence is replaced by the default.
func (s *Service) CreateMatchingPattern(ctx context.Context, p *model.ClientMatchingPattern) error {
	if p.Confidence == 0 {
		p.Confidence = model.DefaultPatternConfidence
	}
	p.IsActive = true
	return s.store.CreateMatchingPattern(ctx, p)
}

// UpdateMatchingPattern applies edit to a stored pattern and saves it. edit
// receives the current pattern and may change anything but its ID and client.
func (s *Service) UpdateMatchingPattern(ctx context.Context, id string, edit func(*model.ClientMatchingPattern)) (*model.ClientMatchingPattern, error) {
	p, err := s.store.GetMatchingPattern(ctx, id)
	if err != nil {
		return nil, err
	}
	clientID := p.ClientID
	edit(p)
	p.ID, p.ClientID = id, clientID

	if err := s.store.UpdateMatchingPattern(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("Updated client matching pattern",
		"id", p.ID,
		"client", p.ClientID,
		"active", p.IsActive)
	return p, nil
}

// DeactivateMatchingPattern stops a pattern from producing candidates.
func (s *Service) DeactivateMatchingPattern(ctx context.Context, id string) error {
	return s.store.DeactivateMatchingPattern(ctx, id)
}

// ClientMatchingPatterns returns a client's patterns, most used first.
func (s *Service) ClientMatchingPatterns(ctx context.Context, clientID string) ([]model.ClientMatchingPattern, error) {
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListMatchingPatterns(ctx, clientID)
}

// ClientSummary aggregates the transactions linked to one client.
type ClientSummary struct {
	FirstTransaction  time.Time
	LastTransaction   time.Time
	MatchCounts       map[model.MatchType]int
	ClientID          string
	ClientName        string
	TotalAmount       decimal.Decimal
	AverageAmount     decimal.Decimal
	Transactions      int
	Links             int
	LowConfidence     int
	HighConfidence    int
	AverageConfidence float64
}

const (
	lowConfidenceBelow = 0.7
	highConfidenceFrom = 0.9
)

// ClientSummary summarizes the client's links to confirmed transactions. Amounts
// and dates count each transaction once; match statistics count every link.
func (s *Service) ClientSummary(ctx context.Context, clientID string) (*ClientSummary, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	linked, err := s.store.ListClientLinks(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client links: %w", err)
	}

	summary := &ClientSummary{
		ClientID:    client.ID,
		ClientName:  client.DisplayName(),
		MatchCounts: make(map[model.MatchType]int),
		Links:       len(linked),
	}

	seen := make(map[string]bool)
	var confidence float64
	for _, lt := range linked {
		summary.MatchCounts[lt.Link.MatchType]++
		confidence += lt.Link.MatchConfidence
		switch {
		case lt.Link.MatchConfidence < lowConfidenceBelow:
			summary.LowConfidence++
		case lt.Link.MatchConfidence >= highConfidenceFrom:
			summary.HighConfidence++
		}

		txn := lt.Transaction
		if seen[txn.ID] {
			continue
		}
		seen[txn.ID] = true
		summary.Transactions++
		summary.TotalAmount = summary.TotalAmount.Add(txn.Amount)
		if summary.FirstTransaction.IsZero() || txn.Date.Before(summary.FirstTransaction) {
			summary.FirstTransaction = txn.Date
		}
		if txn.Date.After(summary.LastTransaction) {
			summary.LastTransaction = txn.Date
		}
	}

	if summary.Links > 0 {
		summary.AverageConfidence = confidence / float64(summary.Links)
	}
	if summary.Transactions > 0 {
		summary.AverageAmount = summary.TotalAmount.Div(decimal.NewFromInt(int64(summary.Transactions)))
	}
	return summary, nil
}
