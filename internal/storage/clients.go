package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/shopspring/decimal"
)

const clientColumns = `id, name, business_name, bank_account, custom_fields`

const patternColumns = `id, client_id, pattern_type, pattern, amount_min, amount_max,
	confidence, match_count, is_active, created_at`

// CreateClient adds a client to the directory. An empty ID is assigned.
func (s *SQLiteStorage) CreateClient(ctx context.Context, client *model.Client) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateClient(client); err != nil {
		return err
	}

	if client.ID == "" {
		client.ID = newID()
	}
	fields := client.CustomFields
	if fields == nil {
		fields = map[string]string{}
	}
	customFields, err := marshalJSON(fields)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		client.ID, client.Name, client.BusinessName, client.BankAccount, customFields)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	slog.Info("Created client", "id", client.ID, "name", client.DisplayName())
	return nil
}

// GetClient retrieves a client by ID.
func (s *SQLiteStorage) GetClient(ctx context.Context, id string) (*model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	client, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("client", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// FindClientsByReference returns every client whose stored payment reference or
// bank account equals ref exactly.
func (s *SQLiteStorage) FindClientsByReference(ctx context.Context, ref string) ([]model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ref, "ref"); err != nil {
		return nil, err
	}

	return s.queryClients(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE json_extract(custom_fields, '$.reference') = ?
		   OR json_extract(custom_fields, '$.payment_reference') = ?
		   OR bank_account = ?
		ORDER BY name, id`, ref, ref, ref)
}

// ListClients returns the whole client directory.
func (s *SQLiteStorage) ListClients(ctx context.Context) ([]model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryClients(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
}

// CreateMatchingPattern validates and stores a client matching pattern.
func (s *SQLiteStorage) CreateMatchingPattern(ctx context.Context, p *model.ClientMatchingPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidPattern, err)
	}
	if p.PatternType != model.PatternAmountRange {
		if _, err := s.patterns.Compile(p.Pattern); err != nil {
			return err
		}
	}
	if _, err := s.GetClient(ctx, p.ClientID); err != nil {
		return err
	}

	if p.ID == "" {
		p.ID = newID()
	}
	p.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_matching_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.ClientID,
		string(p.PatternType),
		p.Pattern,
		decimalValue(p.AmountMin),
		decimalValue(p.AmountMax),
		p.Confidence,
		p.MatchCount,
		p.IsActive,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create matching pattern: %w", err)
	}

	slog.Info("Created client matching pattern",
		"id", p.ID,
		"client", p.ClientID,
		"type", p.PatternType,
		"confidence", p.Confidence)
	return nil
}

// GetMatchingPattern retrieves a client matching pattern by ID.
func (s *SQLiteStorage) GetMatchingPattern(ctx context.Context, id string) (*model.ClientMatchingPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	patterns, err := s.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM client_matching_patterns
		WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, common.NotFoundError("matching pattern", id)
	}
	return &patterns[0], nil
}

// UpdateMatchingPattern rewrites a pattern's definition, confidence and active
// flag. The owning client, match count and creation time are kept.
func (s *SQLiteStorage) UpdateMatchingPattern(ctx context.Context, p *model.ClientMatchingPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if err := validateString(p.ID, "id"); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidPattern, err)
	}
	if p.PatternType != model.PatternAmountRange {
		if _, err := s.patterns.Compile(p.Pattern); err != nil {
			return err
		}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE client_matching_patterns SET
			pattern_type = ?,
			pattern = ?,
			amount_min = ?,
			amount_max = ?,
			confidence = ?,
			is_active = ?
		WHERE id = ?`,
		string(p.PatternType),
		p.Pattern,
		decimalValue(p.AmountMin),
		decimalValue(p.AmountMax),
		p.Confidence,
		p.IsActive,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update matching pattern: %w", err)
	}
	return requireAffected(result, "matching pattern", p.ID)
}

// DeactivateMatchingPattern stops a pattern from matching. The row is kept so
// its match count survives.
func (s *SQLiteStorage) DeactivateMatchingPattern(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE client_matching_patterns SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate matching pattern: %w", err)
	}
	if err := requireAffected(result, "matching pattern", id); err != nil {
		return err
	}

	slog.Info("Deactivated client matching pattern", "id", id)
	return nil
}

// ListActiveMatchingPatterns returns all active patterns, most confident first.
func (s *SQLiteStorage) ListActiveMatchingPatterns(ctx context.Context) ([]model.ClientMatchingPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM client_matching_patterns
		WHERE is_active = 1
		ORDER BY confidence DESC, created_at, id`)
}

// ListMatchingPatterns returns a client's patterns, most used first.
func (s *SQLiteStorage) ListMatchingPatterns(ctx context.Context, clientID string) ([]model.ClientMatchingPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(clientID, "clientID"); err != nil {
		return nil, err
	}
	return s.queryPatterns(ctx, `
		SELECT `+patternColumns+`
		FROM client_matching_patterns
		WHERE client_id = ?
		ORDER BY match_count DESC, created_at DESC, id`, clientID)
}

func (s *SQLiteStorage) queryClients(ctx context.Context, query string, args ...any) ([]model.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []model.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

func scanClient(row rowScanner) (*model.Client, error) {
	var (
		client       model.Client
		customFields sql.NullString
	)
	if err := row.Scan(&client.ID, &client.Name, &client.BusinessName, &client.BankAccount, &customFields); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(customFields, &client.CustomFields); err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *SQLiteStorage) queryPatterns(ctx context.Context, query string, args ...any) ([]model.ClientMatchingPattern, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.ClientMatchingPattern
	for rows.Next() {
		var (
			p                    model.ClientMatchingPattern
			patternType          string
			amountMin, amountMax decimal.NullDecimal
		)
		err := rows.Scan(
			&p.ID,
			&p.ClientID,
			&patternType,
			&p.Pattern,
			&amountMin,
			&amountMax,
			&p.Confidence,
			&p.MatchCount,
			&p.IsActive,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan matching pattern: %w", err)
		}
		p.PatternType = model.PatternType(patternType)
		p.AmountMin = decimalPtr(amountMin)
		p.AmountMax = decimalPtr(amountMax)
		p.CreatedAt = p.CreatedAt.UTC()
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matching patterns: %w", err)
	}
	return patterns, nil
}

func decimalValue(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
