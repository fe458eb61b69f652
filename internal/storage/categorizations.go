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

// GetCategorization returns the categorization of a transaction.
func (s *SQLiteStorage) GetCategorization(ctx context.Context, transactionID string) (*model.Categorization, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}

	var (
		c                                   model.Categorization
		method                              string
		subcat, ruleID, userCat, userSubcat sql.NullString
		userConfirmed                       sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, category_id, subcategory_id, method, confidence_score,
			rule_id, reasoning, user_confirmed, user_category_id, user_subcategory_id,
			created_at, updated_at
		FROM categorizations
		WHERE transaction_id = ?`, transactionID).Scan(
		&c.ID,
		&c.TransactionID,
		&c.CategoryID,
		&subcat,
		&method,
		&c.ConfidenceScore,
		&ruleID,
		&c.Reasoning,
		&userConfirmed,
		&userCat,
		&userSubcat,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("categorization for transaction", transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get categorization: %w", err)
	}

	c.Method = model.Method(method)
	c.SubcategoryID = subcat.String
	c.RuleID = ruleID.String
	c.UserCategoryID = userCat.String
	c.UserSubcategoryID = userSubcat.String
	if userConfirmed.Valid {
		confirmed := userConfirmed.Bool
		c.UserConfirmed = &confirmed
	}
	return &c, nil
}

// SaveCategorization upserts the categorization of one transaction.
func (s *SQLiteStorage) SaveCategorization(ctx context.Context, c *model.Categorization) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: categorization", ErrNilParameter)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.saveCategorizationTx(ctx, tx, c)
	})
}

// SaveCategorizations upserts many categorizations in one database transaction.
func (s *SQLiteStorage) SaveCategorizations(ctx context.Context, cs []model.Categorization) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(cs) == 0 {
		return nil
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i := range cs {
			if err := s.saveCategorizationTx(ctx, tx, &cs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveCategorizationTx keeps the existing row's ID and creation time when the
// transaction is already categorized. A previous user verdict is cleared because
// it judged a different prediction.
func (s *SQLiteStorage) saveCategorizationTx(ctx context.Context, tx *sql.Tx, c *model.Categorization) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid categorization: %w", err)
	}

	now := s.now()
	if c.ID == "" {
		c.ID = newID()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO categorizations (
			id, transaction_id, category_id, subcategory_id, method, confidence_score,
			rule_id, reasoning, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			category_id = excluded.category_id,
			subcategory_id = excluded.subcategory_id,
			method = excluded.method,
			confidence_score = excluded.confidence_score,
			rule_id = excluded.rule_id,
			reasoning = excluded.reasoning,
			user_confirmed = NULL,
			user_category_id = NULL,
			user_subcategory_id = NULL,
			updated_at = excluded.updated_at`,
		c.ID,
		c.TransactionID,
		c.CategoryID,
		nullString(c.SubcategoryID),
		string(c.Method),
		c.ConfidenceScore,
		nullString(c.RuleID),
		c.Reasoning,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save categorization for %s: %w", c.TransactionID, err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT id, created_at FROM categorizations WHERE transaction_id = ?`, c.TransactionID).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to read back categorization: %w", err)
	}
	c.UpdatedAt = now
	c.UserConfirmed = nil
	c.UserCategoryID = ""
	c.UserSubcategoryID = ""

	return nil
}

// RecordCategorizationFeedback stores the user's verdict on a categorization.
func (s *SQLiteStorage) RecordCategorizationFeedback(ctx context.Context, fb model.Feedback) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidFeedback, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categorizations SET
			user_confirmed = ?,
			user_category_id = ?,
			user_subcategory_id = ?,
			updated_at = ?
		WHERE transaction_id = ?`,
		fb.WasCorrect, fb.ActualCategoryID, nullString(fb.ActualSubcategoryID), s.now(), fb.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to record categorization feedback: %w", err)
	}
	return requireAffected(result, "categorization for transaction", fb.TransactionID)
}

// GetPredictionStats counts engine categorizations that carry a user verdict.
func (s *SQLiteStorage) GetPredictionStats(ctx context.Context) (service.PredictionStats, error) {
	var stats service.PredictionStats
	if err := validateContext(ctx); err != nil {
		return stats, err
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN user_confirmed = 1 THEN 1 ELSE 0 END), 0)
		FROM categorizations
		WHERE method != 'manual' AND user_confirmed IS NOT NULL`).Scan(&stats.Total, &stats.Correct)
	if err != nil {
		return stats, fmt.Errorf("failed to get prediction stats: %w", err)
	}
	return stats, nil
}
