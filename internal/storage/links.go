package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

const linkColumns = `l.id, l.transaction_id, l.client_id, l.match_type, l.match_confidence,
	l.matched_by, l.matched_at, l.is_manual_override, l.previous_link_id, l.notes`

// GetLink retrieves a client link by ID.
func (s *SQLiteStorage) GetLink(ctx context.Context, id string) (*model.ClientTransactionLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	link, err := scanLink(s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM client_transaction_links l WHERE l.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("link", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return link, nil
}

// GetLinksForTransaction returns all links of a transaction, newest first.
func (s *SQLiteStorage) GetLinksForTransaction(ctx context.Context, transactionID string) ([]model.ClientTransactionLink, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM client_transaction_links l
		WHERE l.transaction_id = ?
		ORDER BY l.matched_at DESC, l.rowid DESC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []model.ClientTransactionLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}
	return links, nil
}

// CreateLink inserts one client link. An empty ID is assigned.
func (s *SQLiteStorage) CreateLink(ctx context.Context, link *model.ClientTransactionLink) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.createLinkTx(ctx, tx, link)
	})
}

// CreateLinks inserts links and bumps pattern match counts in one database transaction.
func (s *SQLiteStorage) CreateLinks(ctx context.Context, links []model.ClientTransactionLink, patternIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(links) == 0 && len(patternIDs) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range links {
			if err := s.createLinkTx(ctx, tx, &links[i]); err != nil {
				return err
			}
		}
		for _, id := range patternIDs {
			result, err := tx.ExecContext(ctx, `
				UPDATE client_matching_patterns SET match_count = match_count + 1 WHERE id = ?`, id)
			if err != nil {
				return fmt.Errorf("failed to increment pattern match count: %w", err)
			}
			if err := requireAffected(result, "matching pattern", id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) createLinkTx(ctx context.Context, tx *sql.Tx, link *model.ClientTransactionLink) error {
	if err := validateLink(link); err != nil {
		return err
	}

	if link.ID == "" {
		link.ID = newID()
	}
	if link.MatchedAt.IsZero() {
		link.MatchedAt = s.now()
	}
	link.MatchedAt = link.MatchedAt.UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO client_transaction_links (
			id, transaction_id, client_id, match_type, match_confidence,
			matched_by, matched_at, is_manual_override, previous_link_id, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.TransactionID,
		link.ClientID,
		string(link.MatchType),
		link.MatchConfidence,
		link.MatchedBy,
		link.MatchedAt,
		link.IsManualOverride,
		nullString(link.PreviousLinkID),
		link.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to create link for transaction %s: %w", link.TransactionID, err)
	}
	return nil
}

// DeleteLink removes a link row outright.
func (s *SQLiteStorage) DeleteLink(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM client_transaction_links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return requireAffected(result, "link", id)
}

// ListClientLinks returns a client's links joined with their confirmed transactions.
func (s *SQLiteStorage) ListClientLinks(ctx context.Context, clientID string) ([]service.LinkedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(clientID, "clientID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`, `+transactionColumns+`
		FROM client_transaction_links l
		JOIN transactions t ON t.id = l.transaction_id
		WHERE l.client_id = ? AND t.status = 'confirmed'
		ORDER BY t.date DESC, l.rowid DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query client links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var linked []service.LinkedTransaction
	for rows.Next() {
		var (
			lt                     service.LinkedTransaction
			matchType, status, typ string
			previous               sql.NullString
		)
		err := rows.Scan(
			&lt.Link.ID,
			&lt.Link.TransactionID,
			&lt.Link.ClientID,
			&matchType,
			&lt.Link.MatchConfidence,
			&lt.Link.MatchedBy,
			&lt.Link.MatchedAt,
			&lt.Link.IsManualOverride,
			&previous,
			&lt.Link.Notes,
			&lt.Transaction.ID,
			&lt.Transaction.Date,
			&lt.Transaction.Description,
			&lt.Transaction.CounterpartyName,
			&lt.Transaction.Reference,
			&lt.Transaction.Amount,
			&lt.Transaction.AccountID,
			&status,
			&typ,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client link: %w", err)
		}
		lt.Link.MatchType = model.MatchType(matchType)
		lt.Link.PreviousLinkID = previous.String
		lt.Link.MatchedAt = lt.Link.MatchedAt.UTC()
		lt.Transaction.Date = lt.Transaction.Date.UTC()
		lt.Transaction.Status = model.TransactionStatus(status)
		lt.Transaction.Type = model.TransactionType(typ)
		linked = append(linked, lt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating client links: %w", err)
	}
	return linked, nil
}

func scanLink(row rowScanner) (*model.ClientTransactionLink, error) {
	var (
		link      model.ClientTransactionLink
		matchType string
		previous  sql.NullString
	)
	err := row.Scan(
		&link.ID,
		&link.TransactionID,
		&link.ClientID,
		&matchType,
		&link.MatchConfidence,
		&link.MatchedBy,
		&link.MatchedAt,
		&link.IsManualOverride,
		&previous,
		&link.Notes,
	)
	if err != nil {
		return nil, err
	}
	link.MatchType = model.MatchType(matchType)
	link.PreviousLinkID = previous.String
	link.MatchedAt = link.MatchedAt.UTC()
	return &link, nil
}
