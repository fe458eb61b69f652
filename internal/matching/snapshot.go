package matching

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Snapshot is an in-memory copy of the client directory. Batch runs load it once
// and match every transaction against it.
type Snapshot struct {
	clients  []model.Client
	patterns []model.ClientMatchingPattern
}

// LoadSnapshot reads the clients and active matching patterns from dir.
func LoadSnapshot(ctx context.Context, dir Directory) (*Snapshot, error) {
	clients, err := dir.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	patterns, err := dir.ListActiveMatchingPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load matching patterns: %w", err)
	}
	return &Snapshot{clients: clients, patterns: patterns}, nil
}

// FindClientsByReference returns clients whose reference or payment_reference
// custom field, or bank account, equals ref.
func (s *Snapshot) FindClientsByReference(_ context.Context, ref string) ([]model.Client, error) {
	if ref == "" {
		return nil, nil
	}

	var found []model.Client
	for _, c := range s.clients {
		if c.CustomFields["reference"] == ref || c.CustomFields["payment_reference"] == ref || c.BankAccount == ref {
			found = append(found, c)
		}
	}
	return found, nil
}

// ListClients returns the loaded clients.
func (s *Snapshot) ListClients(_ context.Context) ([]model.Client, error) {
	return s.clients, nil
}

// ListActiveMatchingPatterns returns the loaded patterns.
func (s *Snapshot) ListActiveMatchingPatterns(_ context.Context) ([]model.ClientMatchingPattern, error) {
	return s.patterns, nil
}
