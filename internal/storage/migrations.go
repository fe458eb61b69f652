package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Categories and transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL UNIQUE,
					type TEXT NOT NULL CHECK (type IN ('income', 'expense', 'transfer')),
					color TEXT NOT NULL DEFAULT '',
					icon TEXT NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS subcategories (
					id TEXT PRIMARY KEY,
					category_id TEXT NOT NULL REFERENCES categories(id),
					name TEXT NOT NULL,
					UNIQUE (category_id, name)
				)`,
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					date DATETIME NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					counterparty_name TEXT NOT NULL DEFAULT '',
					reference TEXT NOT NULL DEFAULT '',
					amount TEXT NOT NULL,
					account_id TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'failed', 'cancelled')),
					type TEXT NOT NULL CHECK (type IN ('debit', 'credit', 'transfer')),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_status ON transactions(status)`,
				`CREATE INDEX idx_transactions_counterparty ON transactions(account_id, counterparty_name COLLATE NOCASE)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Categorization rules and categorizations",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					keywords TEXT NOT NULL DEFAULT '[]',
					merchant_patterns TEXT NOT NULL DEFAULT '[]',
					amount_patterns TEXT,
					category_id TEXT NOT NULL,
					subcategory_id TEXT,
					confidence_score REAL NOT NULL,
					match_count INTEGER NOT NULL DEFAULT 0,
					success_rate REAL NOT NULL DEFAULT 0.5,
					last_used DATETIME,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rules_ranking ON rules(is_active, confidence_score DESC, success_rate DESC)`,

				`CREATE TABLE IF NOT EXISTS categorizations (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions(id),
					category_id TEXT NOT NULL,
					subcategory_id TEXT,
					method TEXT NOT NULL,
					confidence_score REAL NOT NULL,
					rule_id TEXT,
					reasoning TEXT NOT NULL DEFAULT '',
					user_confirmed BOOLEAN,
					user_category_id TEXT,
					user_subcategory_id TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_categorizations_rule ON categorizations(rule_id)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Client directory and matching patterns",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					business_name TEXT NOT NULL DEFAULT '',
					bank_account TEXT NOT NULL DEFAULT '',
					custom_fields TEXT NOT NULL DEFAULT '{}',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_clients_bank_account ON clients(bank_account)`,

				`CREATE TABLE IF NOT EXISTS client_matching_patterns (
					id TEXT PRIMARY KEY,
					client_id TEXT NOT NULL REFERENCES clients(id),
					pattern_type TEXT NOT NULL CHECK (pattern_type IN ('amount_range', 'description', 'reference')),
					pattern TEXT NOT NULL DEFAULT '',
					amount_min TEXT,
					amount_max TEXT,
					confidence REAL NOT NULL DEFAULT 0.8,
					match_count INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_client_patterns_client ON client_matching_patterns(client_id)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Client transaction links",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS client_transaction_links (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL REFERENCES transactions(id),
					client_id TEXT NOT NULL REFERENCES clients(id),
					match_type TEXT NOT NULL CHECK (match_type IN ('reference', 'fuzzy', 'pattern', 'manual')),
					match_confidence REAL NOT NULL,
					matched_by TEXT NOT NULL,
					matched_at DATETIME NOT NULL,
					is_manual_override BOOLEAN NOT NULL DEFAULT 0,
					previous_link_id TEXT,
					notes TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_links_transaction ON client_transaction_links(transaction_id, matched_at DESC)`,
				`CREATE INDEX idx_links_client ON client_transaction_links(client_id)`,
			})
		},
	},
	{
		Version:     5,
		Description: "Unicode counterparty key for frequency lookups",
		Up: func(tx *sql.Tx) error {
			if err := execAll(tx, []string{
				`ALTER TABLE transactions ADD COLUMN counterparty_key TEXT NOT NULL DEFAULT ''`,
				`DROP INDEX IF EXISTS idx_transactions_counterparty`,
				`CREATE INDEX idx_transactions_counterparty ON transactions(account_id, counterparty_key)`,
			}); err != nil {
				return err
			}
			return backfillCounterpartyKeys(tx)
		},
	},
}

// backfillCounterpartyKeys folds existing counterparty names in Go, because
// SQLite's lower() only folds ASCII.
func backfillCounterpartyKeys(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT id, counterparty_name FROM transactions WHERE counterparty_name != ''`)
	if err != nil {
		return fmt.Errorf("failed to read counterparties: %w", err)
	}
	keys := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan counterparty: %w", err)
		}
		keys[id] = model.CounterpartyKey(name)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, key := range keys {
		if _, err := tx.Exec(`UPDATE transactions SET counterparty_key = ? WHERE id = ?`, key, id); err != nil {
			return fmt.Errorf("failed to backfill counterparty key: %w", err)
		}
	}
	return nil
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion returns the schema version recorded in the database file.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
