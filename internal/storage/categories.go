package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, color, icon, is_active
		FROM categories
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategory returns a category by ID, active or not.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, color, icon, is_active
		FROM categories
		WHERE id = ?`, id)

	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NotFoundError("category", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// CreateCategory creates a new category. An empty ID is assigned.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCategory(category); err != nil {
		return err
	}

	if category.ID == "" {
		category.ID = newID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, type, color, icon, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		category.ID, category.Name, string(category.Type), category.Color, category.Icon, category.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	slog.Info("created category", "id", category.ID, "name", category.Name, "type", category.Type)
	return nil
}

// GetSubcategories returns the subcategories of a category.
func (s *SQLiteStorage) GetSubcategories(ctx context.Context, categoryID string) ([]model.Subcategory, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, name
		FROM subcategories
		WHERE category_id = ?
		ORDER BY name`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subcategory
	for rows.Next() {
		var sub model.Subcategory
		if err := rows.Scan(&sub.ID, &sub.CategoryID, &sub.Name); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subcategories: %w", err)
	}
	return subs, nil
}

// CreateSubcategory adds a subcategory to an existing category.
func (s *SQLiteStorage) CreateSubcategory(ctx context.Context, sub *model.Subcategory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("%w: subcategory", ErrNilParameter)
	}
	if err := validateString(sub.Name, "name"); err != nil {
		return err
	}
	if _, err := s.GetCategory(ctx, sub.CategoryID); err != nil {
		return err
	}

	if sub.ID == "" {
		sub.ID = newID()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subcategories (id, category_id, name)
		VALUES (?, ?, ?)`, sub.ID, sub.CategoryID, sub.Name)
	if err != nil {
		return fmt.Errorf("failed to create subcategory: %w", err)
	}
	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var (
		cat     model.Category
		catType string
	)
	if err := row.Scan(&cat.ID, &cat.Name, &catType, &cat.Color, &cat.Icon, &cat.IsActive); err != nil {
		return nil, err
	}
	cat.Type = model.CategoryType(catType)
	return &cat, nil
}
