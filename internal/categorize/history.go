package categorize

import (
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

type historyKey struct {
	accountID    string
	counterparty string
}

func keyFor(txn model.Transaction) historyKey {
	return historyKey{accountID: txn.AccountID, counterparty: txn.CounterpartyKey()}
}

// HistoryIndex groups confirmed transactions by account and counterparty so a
// batch run can answer frequency lookups without a query per transaction.
type HistoryIndex struct {
	since time.Time
	byKey map[historyKey][]model.Transaction
}

// NewHistoryIndex indexes the confirmed transactions dated on or after since.
func NewHistoryIndex(transactions []model.Transaction, since time.Time) *HistoryIndex {
	h := &HistoryIndex{since: since, byKey: make(map[historyKey][]model.Transaction)}
	for _, txn := range transactions {
		if txn.Status != model.StatusConfirmed || txn.Date.Before(since) || txn.CounterpartyName == "" {
			continue
		}
		key := keyFor(txn)
		h.byKey[key] = append(h.byKey[key], txn)
	}
	return h
}

// Prior returns the indexed transactions that share txn's account and
// counterparty, ignoring case, excluding txn itself.
func (h *HistoryIndex) Prior(txn model.Transaction) []model.Transaction {
	if txn.CounterpartyName == "" {
		return nil
	}
	candidates := h.byKey[keyFor(txn)]
	prior := make([]model.Transaction, 0, len(candidates))
	for _, c := range candidates {
		if c.ID != txn.ID {
			prior = append(prior, c)
		}
	}
	return prior
}
