package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

const ruleColumns = `id, name, description, keywords, merchant_patterns, amount_patterns,
	category_id, subcategory_id, confidence_score, match_count, success_rate,
	last_used, is_active, created_at, updated_at`

// ListActiveRules returns active rules ranked by confidence, then success rate.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		WHERE is_active = 1
		ORDER BY confidence_score DESC, success_rate DESC, created_at, id`)
}

// ListRules returns every rule, including deactivated ones.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	return s.queryRules(ctx, `
		SELECT `+ruleColumns+`
		FROM rules
		ORDER BY is_active DESC, confidence_score DESC, success_rate DESC, created_at, id`)
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id string) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("rule", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// CreateRule validates and inserts a new rule. Merchant patterns must compile.
// An empty ID is assigned and timestamps are set.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if _, err := s.GetCategory(ctx, rule.CategoryID); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRule, err)
	}

	now := s.now()
	if rule.ID == "" {
		rule.ID = newID()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now

	cols, err := ruleValues(rule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, cols...)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	slog.Info("Created rule",
		"id", rule.ID,
		"name", rule.Name,
		"category", rule.CategoryID,
		"confidence", rule.ConfidenceScore)
	return nil
}

// UpdateRule replaces the editable fields of an existing rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *model.Rule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := s.validateRule(rule); err != nil {
		return err
	}
	if err := validateString(rule.ID, "id"); err != nil {
		return err
	}

	keywords, err := marshalJSON(nonNil(rule.Keywords))
	if err != nil {
		return err
	}
	merchantPatterns, err := marshalJSON(nonNil(rule.MerchantPatterns))
	if err != nil {
		return err
	}
	amountPatterns, err := amountPatternsValue(rule.AmountPatterns)
	if err != nil {
		return err
	}

	rule.UpdatedAt = s.now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET
			name = ?, description = ?, keywords = ?, merchant_patterns = ?, amount_patterns = ?,
			category_id = ?, subcategory_id = ?, confidence_score = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Description, keywords, merchantPatterns, amountPatterns,
		rule.CategoryID, nullString(rule.SubcategoryID), rule.ConfidenceScore, rule.IsActive, rule.UpdatedAt,
		rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(result, "rule", rule.ID)
}

// DeactivateRule marks a rule inactive. Rules are never deleted.
func (s *SQLiteStorage) DeactivateRule(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET is_active = 0, updated_at = ? WHERE id = ?`, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}
	if err := requireAffected(result, "rule", id); err != nil {
		return err
	}

	slog.Info("Deactivated rule", "id", id)
	return nil
}

// RecordRuleFeedback applies one feedback event to a rule's counters in a single statement.
func (s *SQLiteStorage) RecordRuleFeedback(ctx context.Context, id string, delta float64, usedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET
			match_count = match_count + 1,
			success_rate = success_rate + ?,
			last_used = ?,
			updated_at = ?
		WHERE id = ?`, delta, usedAt.UTC(), s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to record rule feedback: %w", err)
	}
	return requireAffected(result, "rule", id)
}

func (s *SQLiteStorage) validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidRule, err)
	}
	for _, p := range rule.MerchantPatterns {
		if _, err := s.patterns.Compile(p); err != nil {
			return fmt.Errorf("%w: merchant pattern %q: %w", common.ErrInvalidRule, p, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...any) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		rule                     model.Rule
		keywords, merchant       sql.NullString
		amountPatterns, subcatID sql.NullString
		lastUsed                 sql.NullTime
	)
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&keywords,
		&merchant,
		&amountPatterns,
		&rule.CategoryID,
		&subcatID,
		&rule.ConfidenceScore,
		&rule.MatchCount,
		&rule.SuccessRate,
		&lastUsed,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(keywords, &rule.Keywords); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(merchant, &rule.MerchantPatterns); err != nil {
		return nil, err
	}
	if amountPatterns.Valid {
		rule.AmountPatterns = &model.AmountPatterns{}
		if err := unmarshalJSON(amountPatterns, rule.AmountPatterns); err != nil {
			return nil, err
		}
	}
	rule.SubcategoryID = subcatID.String
	rule.LastUsed = timePtr(lastUsed)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()

	return &rule, nil
}

func ruleValues(rule *model.Rule) ([]any, error) {
	keywords, err := marshalJSON(nonNil(rule.Keywords))
	if err != nil {
		return nil, err
	}
	merchantPatterns, err := marshalJSON(nonNil(rule.MerchantPatterns))
	if err != nil {
		return nil, err
	}
	amountPatterns, err := amountPatternsValue(rule.AmountPatterns)
	if err != nil {
		return nil, err
	}

	return []any{
		rule.ID,
		rule.Name,
		rule.Description,
		keywords,
		merchantPatterns,
		amountPatterns,
		rule.CategoryID,
		nullString(rule.SubcategoryID),
		rule.ConfidenceScore,
		rule.MatchCount,
		rule.SuccessRate,
		nullTime(rule.LastUsed),
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	}, nil
}

func amountPatternsValue(p *model.AmountPatterns) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	encoded, err := marshalJSON(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: encoded, Valid: true}, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return common.NotFoundError(kind, id)
	}
	return nil
}

// ListTopRules returns the best performing active rules with their usage counts.
func (s *SQLiteStorage) ListTopRules(ctx context.Context, minUses, limit int) ([]service.RuleUsage, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`, uses
		FROM (
			SELECT `+prefixed("r.", ruleColumns)+`,
				(SELECT COUNT(*) FROM categorizations c WHERE c.rule_id = r.id) AS uses
			FROM rules r
			WHERE r.is_active = 1
		)
		WHERE uses > ?
		ORDER BY success_rate DESC, match_count DESC, id
		LIMIT ?`, minUses, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usages []service.RuleUsage
	for rows.Next() {
		var uses int
		rule, err := scanRule(usageScanner{rows: rows, extra: &uses})
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule usage: %w", err)
		}
		usages = append(usages, service.RuleUsage{Rule: *rule, Categorizations: uses})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule usage: %w", err)
	}
	return usages, nil
}

// usageScanner appends one trailing column to a rule scan.
type usageScanner struct {
	rows  *sql.Rows
	extra *int
}

func (u usageScanner) Scan(dest ...any) error {
	return u.rows.Scan(append(dest, u.extra)...)
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
