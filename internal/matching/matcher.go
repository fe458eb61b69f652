// Package matching suggests which client a bank transaction belongs to and
// records the links between transactions and clients.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
)

const referenceConfidence = 0.95

// Directory is the read side of the client directory the matcher searches.
type Directory interface {
	FindClientsByReference(ctx context.Context, ref string) ([]model.Client, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	ListActiveMatchingPatterns(ctx context.Context) ([]model.ClientMatchingPattern, error)
}

// Matcher runs the tiered client search. A tier is only consulted when every
// earlier tier came back empty.
type Matcher struct {
	dir      Directory
	patterns *pattern.Cache
	config   Config
}

// NewMatcher creates a matcher over dir.
func NewMatcher(dir Directory, config Config) *Matcher {
	return newMatcher(dir, config.withDefaults(), pattern.NewCache())
}

func newMatcher(dir Directory, config Config, patterns *pattern.Cache) *Matcher {
	return &Matcher{dir: dir, patterns: patterns, config: config}
}

// FindPotentialMatches returns candidate clients for txn, most confident first.
// A failing tier is logged and treated as empty. The error is only set when ctx
// is done.
func (m *Matcher) FindPotentialMatches(ctx context.Context, txn model.Transaction) (model.PotentialMatches, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tiers := []struct {
		name string
		run  func(context.Context, model.Transaction) (model.PotentialMatches, error)
	}{
		{"reference", m.byReference},
		{"fuzzy", m.byName},
		{"pattern", m.byPattern},
	}

	for _, tier := range tiers {
		matches, err := tier.run(ctx, txn)
		if err != nil {
			slog.Warn("Client matching tier failed",
				"tier", tier.name,
				"transaction", txn.ID,
				"error", err)
			continue
		}
		if len(matches) > 0 {
			matches.Sort()
			return matches, nil
		}
	}
	return nil, nil
}

func (m *Matcher) byReference(ctx context.Context, txn model.Transaction) (model.PotentialMatches, error) {
	if txn.Reference == "" {
		return nil, nil
	}

	clients, err := m.dir.FindClientsByReference(ctx, txn.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to find clients by reference: %w", err)
	}

	matches := make(model.PotentialMatches, 0, len(clients))
	for i := range clients {
		matches = append(matches, model.PotentialMatch{
			ClientID:   clients[i].ID,
			ClientName: clients[i].DisplayName(),
			MatchType:  model.MatchReference,
			Reason:     "Reference match",
			Confidence: referenceConfidence,
		})
	}
	return matches, nil
}

type scoredClient struct {
	client   model.Client
	score    float64
	distance int
}

func (m *Matcher) byName(ctx context.Context, txn model.Transaction) (model.PotentialMatches, error) {
	if txn.CounterpartyName == "" {
		return nil, nil
	}

	clients, err := m.dir.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	var scored []scoredClient
	for _, client := range clients {
		score := Similarity(txn.CounterpartyName, client.Name)
		if client.BusinessName != "" {
			score = max(score, Similarity(txn.CounterpartyName, client.BusinessName))
		}
		if score <= m.config.FuzzyMinScore {
			continue
		}
		scored = append(scored, scoredClient{
			client:   client,
			score:    score,
			distance: editDistance(txn.CounterpartyName, client.DisplayName()),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].distance != scored[j].distance {
			return scored[i].distance < scored[j].distance
		}
		return scored[i].client.ID < scored[j].client.ID
	})
	if len(scored) > m.config.FuzzyLimit {
		scored = scored[:m.config.FuzzyLimit]
	}

	matches := make(model.PotentialMatches, 0, len(scored))
	for _, s := range scored {
		matches = append(matches, model.PotentialMatch{
			ClientID:   s.client.ID,
			ClientName: s.client.DisplayName(),
			MatchType:  model.MatchFuzzy,
			Reason:     fmt.Sprintf("Name similarity: %.0f%%", s.score*100),
			Confidence: s.score,
		})
	}
	return matches, nil
}

func (m *Matcher) byPattern(ctx context.Context, txn model.Transaction) (model.PotentialMatches, error) {
	patterns, err := m.dir.ListActiveMatchingPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list matching patterns: %w", err)
	}

	var hits []model.ClientMatchingPattern
	for _, p := range patterns {
		if m.patternMatches(p, txn) {
			hits = append(hits, p)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	clients, err := m.dir.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	byID := make(map[string]model.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	matches := make(model.PotentialMatches, 0, len(hits))
	for _, p := range hits {
		client, ok := byID[p.ClientID]
		if !ok {
			continue
		}
		matches = append(matches, model.PotentialMatch{
			ClientID:   client.ID,
			ClientName: client.DisplayName(),
			MatchType:  model.MatchPattern,
			Reason:     fmt.Sprintf("Pattern match: %s", p.PatternType),
			PatternID:  p.ID,
			Confidence: p.Confidence,
		})
	}
	return matches, nil
}

func (m *Matcher) patternMatches(p model.ClientMatchingPattern, txn model.Transaction) bool {
	var text string
	switch p.PatternType {
	case model.PatternAmountRange:
		if p.AmountMin == nil || p.AmountMax == nil {
			return false
		}
		return txn.Amount.GreaterThanOrEqual(*p.AmountMin) && txn.Amount.LessThanOrEqual(*p.AmountMax)
	case model.PatternDescription:
		text = txn.Description
	case model.PatternReference:
		text = txn.Reference
	default:
		return false
	}
	if text == "" {
		return false
	}

	ok, err := m.patterns.MatchString(p.Pattern, text)
	if err != nil {
		slog.Warn("Skipping invalid client matching pattern",
			"pattern", p.ID,
			"error", err)
		return false
	}
	return ok
}
