package categorize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2024, 4, 20, 12, 0, 0, 0, time.UTC)

type ruleFeedbackCall struct {
	usedAt time.Time
	id     string
	delta  float64
}

// memStore is an in-memory fake of the stores the engine and learner use.
type memStore struct {
	categorizations map[string]model.Categorization
	rulesErr        error
	historyErr      error
	createRuleErr   error
	verdicts        []model.Feedback
	ruleFeedback    []ruleFeedbackCall
	rules           []model.Rule
	transactions    []model.Transaction
	historyCalls    int
	confirmedCalls  int
	saveBatchCalls  int
}

func newMemStore() *memStore {
	return &memStore{categorizations: make(map[string]model.Categorization)}
}

func (m *memStore) addRule(rule model.Rule) {
	if rule.ID == "" {
		rule.ID = "rule-" + rule.Name
	}
	rule.IsActive = true
	m.rules = append(m.rules, rule)
}

func (m *memStore) ListActiveRules(_ context.Context) ([]model.Rule, error) {
	if m.rulesErr != nil {
		return nil, m.rulesErr
	}
	var active []model.Rule
	for _, r := range m.rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func (m *memStore) ListUncategorizedTransactions(_ context.Context, ids []string, limit int) ([]model.Transaction, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var out []model.Transaction
	for _, txn := range m.transactions {
		if txn.Status != model.StatusConfirmed {
			continue
		}
		if _, done := m.categorizations[txn.ID]; done {
			continue
		}
		if len(ids) > 0 && !wanted[txn.ID] {
			continue
		}
		out = append(out, txn)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListCounterpartyHistory(_ context.Context, counterparty, accountID, excludeID string, since time.Time) ([]model.Transaction, error) {
	m.historyCalls++
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	var out []model.Transaction
	for _, txn := range m.transactions {
		if txn.Status == model.StatusConfirmed &&
			strings.EqualFold(txn.CounterpartyName, counterparty) &&
			txn.AccountID == accountID &&
			txn.ID != excludeID &&
			!txn.Date.Before(since) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memStore) ListConfirmedSince(_ context.Context, since time.Time) ([]model.Transaction, error) {
	m.confirmedCalls++
	var out []model.Transaction
	for _, txn := range m.transactions {
		if txn.Status == model.StatusConfirmed && !txn.Date.Before(since) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memStore) SaveCategorization(_ context.Context, c *model.Categorization) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.categorizations[c.TransactionID] = *c
	return nil
}

func (m *memStore) SaveCategorizations(ctx context.Context, cs []model.Categorization) error {
	m.saveBatchCalls++
	for i := range cs {
		if err := m.SaveCategorization(ctx, &cs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	for _, txn := range m.transactions {
		if txn.ID == id {
			t := txn
			return &t, nil
		}
	}
	return nil, common.NotFoundError("transaction", id)
}

func (m *memStore) GetCategorization(_ context.Context, transactionID string) (*model.Categorization, error) {
	c, ok := m.categorizations[transactionID]
	if !ok {
		return nil, common.NotFoundError("categorization for transaction", transactionID)
	}
	return &c, nil
}

func (m *memStore) RecordCategorizationFeedback(_ context.Context, fb model.Feedback) error {
	c, ok := m.categorizations[fb.TransactionID]
	if !ok {
		return common.NotFoundError("categorization for transaction", fb.TransactionID)
	}
	confirmed := fb.WasCorrect
	c.UserConfirmed = &confirmed
	c.UserCategoryID = fb.ActualCategoryID
	m.categorizations[fb.TransactionID] = c
	m.verdicts = append(m.verdicts, fb)
	return nil
}

func (m *memStore) GetPredictionStats(_ context.Context) (service.PredictionStats, error) {
	var stats service.PredictionStats
	for _, c := range m.categorizations {
		if c.Method == model.MethodManual || c.UserConfirmed == nil {
			continue
		}
		stats.Total++
		if *c.UserConfirmed {
			stats.Correct++
		}
	}
	return stats, nil
}

func (m *memStore) CreateRule(_ context.Context, rule *model.Rule) error {
	if m.createRuleErr != nil {
		return m.createRuleErr
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.ID = fmt.Sprintf("learned-%d", len(m.rules))
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *memStore) RecordRuleFeedback(_ context.Context, id string, delta float64, usedAt time.Time) error {
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules[i].MatchCount++
			m.rules[i].SuccessRate += delta
			used := usedAt
			m.rules[i].LastUsed = &used
			m.ruleFeedback = append(m.ruleFeedback, ruleFeedbackCall{id: id, delta: delta, usedAt: usedAt})
			return nil
		}
	}
	return common.NotFoundError("rule", id)
}

func (m *memStore) ListTopRules(_ context.Context, minUses, limit int) ([]service.RuleUsage, error) {
	var usages []service.RuleUsage
	for _, r := range m.rules {
		if !r.IsActive {
			continue
		}
		uses := 0
		for _, c := range m.categorizations {
			if c.RuleID == r.ID {
				uses++
			}
		}
		if uses > minUses {
			usages = append(usages, service.RuleUsage{Rule: r, Categorizations: uses})
		}
	}
	sort.SliceStable(usages, func(i, j int) bool {
		return usages[i].Rule.SuccessRate > usages[j].Rule.SuccessRate
	})
	if len(usages) > limit {
		usages = usages[:limit]
	}
	return usages, nil
}

func (m *memStore) rule(id string) model.Rule {
	for _, r := range m.rules {
		if r.ID == id {
			return r
		}
	}
	return model.Rule{}
}

var errStoreDown = errors.New("store unavailable")

func txnAt(id, counterparty, amount string, date time.Time) model.Transaction {
	return model.Transaction{
		ID:               id,
		Date:             date,
		Description:      strings.ToUpper(counterparty),
		CounterpartyName: counterparty,
		Amount:           decimal.RequireFromString(amount),
		AccountID:        "acc1",
		Status:           model.StatusConfirmed,
		Type:             model.TypeDebit,
	}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
