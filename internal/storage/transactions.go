package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

const transactionColumns = `t.id, t.date, t.description, t.counterparty_name, t.reference,
	t.amount, t.account_id, t.status, t.type`

// SaveTransactions upserts transactions. Rows already present are updated so a
// later sync can move a pending transaction to confirmed.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.saveTransactionsTx(ctx, tx, transactions)
	})
}

func (s *SQLiteStorage) saveTransactionsTx(ctx context.Context, tx *sql.Tx, transactions []model.Transaction) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, date, description, counterparty_name, counterparty_key, reference,
			amount, account_id, status, type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			description = excluded.description,
			counterparty_name = excluded.counterparty_name,
			counterparty_key = excluded.counterparty_key,
			reference = excluded.reference,
			amount = excluded.amount,
			account_id = excluded.account_id,
			status = excluded.status,
			type = excluded.type
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		_, err = stmt.ExecContext(ctx,
			txn.ID,
			txn.Date.UTC(),
			txn.Description,
			txn.CounterpartyName,
			txn.CounterpartyKey(),
			txn.Reference,
			txn.Amount.String(),
			txn.AccountID,
			string(txn.Status),
			string(txn.Type),
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}

	return nil
}

// GetTransaction retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions retrieves transactions matching the filter, newest first.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.StartDate != nil {
		where = append(where, "t.date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "t.date <= ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions t`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY t.date DESC, t.id"
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	return s.queryTransactions(ctx, s.db, query, args...)
}

// ListUncategorizedTransactions returns confirmed transactions without a categorization.
func (s *SQLiteStorage) ListUncategorizedTransactions(ctx context.Context, ids []string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.status = 'confirmed'
		  AND NOT EXISTS (SELECT 1 FROM categorizations c WHERE c.transaction_id = t.id)`
	var args []any
	if len(ids) > 0 {
		clause, arg, err := idFilter(ids)
		if err != nil {
			return nil, err
		}
		query += clause
		args = append(args, arg)
	}
	query += " ORDER BY t.date, t.id"
	query, args = paginate(query, args, limit, 0)

	return s.queryTransactions(ctx, s.db, query, args...)
}

// ListCounterpartyHistory returns prior confirmed transactions from the same
// counterparty on the same account. Names are compared by model.CounterpartyKey.
func (s *SQLiteStorage) ListCounterpartyHistory(ctx context.Context, counterparty, accountID, excludeID string, since time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(counterparty, "counterparty"); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx, s.db, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.status = 'confirmed'
		  AND t.account_id = ?
		  AND t.counterparty_key = ?
		  AND t.id != ?
		  AND t.date >= ?
		ORDER BY t.date`,
		accountID, model.CounterpartyKey(counterparty), excludeID, since.UTC())
}

// ListConfirmedSince returns all confirmed transactions dated on or after since.
func (s *SQLiteStorage) ListConfirmedSince(ctx context.Context, since time.Time) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryTransactions(ctx, s.db, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.status = 'confirmed' AND t.date >= ?
		ORDER BY t.date`, since.UTC())
}

// ListUnlinkedTransactions returns confirmed transactions that have no client link.
func (s *SQLiteStorage) ListUnlinkedTransactions(ctx context.Context, ids []string, limit, offset int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.status = 'confirmed'
		  AND NOT EXISTS (SELECT 1 FROM client_transaction_links l WHERE l.transaction_id = t.id)`
	var args []any
	if len(ids) > 0 {
		clause, arg, err := idFilter(ids)
		if err != nil {
			return nil, err
		}
		query += clause
		args = append(args, arg)
	}
	query += " ORDER BY t.date DESC, t.id"
	query, args = paginate(query, args, limit, offset)

	return s.queryTransactions(ctx, s.db, query, args...)
}

// CountUnlinkedTransactions counts confirmed transactions that have no client link.
func (s *SQLiteStorage) CountUnlinkedTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transactions t
		WHERE t.status = 'confirmed'
		  AND NOT EXISTS (SELECT 1 FROM client_transaction_links l WHERE l.transaction_id = t.id)
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unlinked transactions: %w", err)
	}
	return count, nil
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn            model.Transaction
		status, txType string
	)
	err := row.Scan(
		&txn.ID,
		&txn.Date,
		&txn.Description,
		&txn.CounterpartyName,
		&txn.Reference,
		&txn.Amount,
		&txn.AccountID,
		&status,
		&txType,
	)
	if err != nil {
		return nil, err
	}
	txn.Date = txn.Date.UTC()
	txn.Status = model.TransactionStatus(status)
	txn.Type = model.TransactionType(txType)
	return &txn, nil
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, q queryable, query string, args ...any) ([]model.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}
