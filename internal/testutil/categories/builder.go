// Package categories seeds category reference data for tests through a fluent
// builder.
//
// Example usage:
//
//	cats, err := categories.NewBuilder(t).
//		WithBasicCategories().
//		WithCategory(categories.CategoryConsulting).
//		Build(ctx, store)
package categories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Store is the part of the category catalog the builder writes to.
type Store interface {
	CreateCategory(ctx context.Context, category *model.Category) error
	CreateSubcategory(ctx context.Context, sub *model.Subcategory) error
}

// Builder provides a fluent interface for constructing test categories.
type Builder interface {
	// WithCategory adds a single category to the builder.
	WithCategory(name CategoryName) Builder

	// WithCategories adds multiple categories to the builder.
	WithCategories(names ...CategoryName) Builder

	// WithSubcategory adds a subcategory, and its parent if missing.
	WithSubcategory(parent CategoryName, name string) Builder

	// WithBasicCategories adds the minimal set of categories commonly used in tests.
	WithBasicCategories() Builder

	// WithFixture adds categories from a predefined fixture.
	WithFixture(fixture Fixture) Builder

	// Build creates the categories in the provided storage and returns them
	// ordered by name.
	Build(ctx context.Context, store Store) (Categories, error)
}

// CategoryName represents a strongly-typed category name.
type CategoryName string

// String returns the string representation of the category name.
func (c CategoryName) String() string {
	return string(c)
}

// ID is the category ID the builder stores the category under, the name in
// lower case with runs of other characters replaced by a dash.
func (c CategoryName) ID() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(string(c)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Common category names used across tests.
const (
	CategoryGroceries     CategoryName = "Groceries"
	CategoryFoodDining    CategoryName = "Food & Dining"
	CategoryTransport     CategoryName = "Transportation"
	CategorySubscriptions CategoryName = "Subscription Services"
	CategoryUtilities     CategoryName = "Utilities"
	CategoryRent          CategoryName = "Rent"
	CategoryBankingFees   CategoryName = "Banking & Fees"
	CategoryConsulting    CategoryName = "Consulting Income"
	CategoryInterest      CategoryName = "Interest"
	CategoryTransfers     CategoryName = "Internal Transfers"
)

// categoryTypes holds the non-expense categories; every other name is an expense.
var categoryTypes = map[CategoryName]model.CategoryType{
	CategoryConsulting: model.CategoryTypeIncome,
	CategoryInterest:   model.CategoryTypeIncome,
	CategoryTransfers:  model.CategoryTypeTransfer,
}

// Categories represents a collection of created test categories.
type Categories []model.Category

// Find returns the category with the given name, or nil if not found.
func (c Categories) Find(name CategoryName) *model.Category {
	for i := range c {
		if c[i].Name == name.String() {
			return &c[i]
		}
	}
	return nil
}

// MustFind returns the category with the given name, or fails the test if not found.
func (c Categories) MustFind(t *testing.T, name CategoryName) model.Category {
	t.Helper()
	cat := c.Find(name)
	if cat == nil {
		t.Fatalf("category %q not found in test data", name)
	}
	return *cat
}

// Names returns all category names as a slice of strings.
func (c Categories) Names() []string {
	names := make([]string, len(c))
	for i, cat := range c {
		names[i] = cat.Name
	}
	return names
}

// categoryBuilder implements the Builder interface.
type categoryBuilder struct {
	t             *testing.T
	categories    map[CategoryName]struct{}
	subcategories map[CategoryName][]string
}

// NewBuilder creates a new category builder for the given test.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &categoryBuilder{
		t:             t,
		categories:    make(map[CategoryName]struct{}),
		subcategories: make(map[CategoryName][]string),
	}
}

func (b *categoryBuilder) WithCategory(name CategoryName) Builder {
	b.categories[name] = struct{}{}
	return b
}

func (b *categoryBuilder) WithCategories(names ...CategoryName) Builder {
	for _, name := range names {
		b.categories[name] = struct{}{}
	}
	return b
}

func (b *categoryBuilder) WithSubcategory(parent CategoryName, name string) Builder {
	b.categories[parent] = struct{}{}
	b.subcategories[parent] = append(b.subcategories[parent], name)
	return b
}

func (b *categoryBuilder) WithBasicCategories() Builder {
	return b.WithFixture(FixtureMinimal)
}

func (b *categoryBuilder) WithFixture(fixture Fixture) Builder {
	return b.WithCategories(fixture.Categories()...)
}

func (b *categoryBuilder) Build(ctx context.Context, store Store) (Categories, error) {
	b.t.Helper()

	names := make([]CategoryName, 0, len(b.categories))
	for name := range b.categories {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	result := make(Categories, 0, len(names))
	for _, name := range names {
		categoryType, ok := categoryTypes[name]
		if !ok {
			categoryType = model.CategoryTypeExpense
		}

		cat := model.Category{
			ID:       name.ID(),
			Name:     name.String(),
			Type:     categoryType,
			IsActive: true,
		}
		if err := store.CreateCategory(ctx, &cat); err != nil {
			return nil, fmt.Errorf("failed to create category %q: %w", name, err)
		}

		for _, subName := range b.subcategories[name] {
			sub := model.Subcategory{
				ID:         cat.ID + "-" + CategoryName(subName).ID(),
				CategoryID: cat.ID,
				Name:       subName,
			}
			if err := store.CreateSubcategory(ctx, &sub); err != nil {
				return nil, fmt.Errorf("failed to create subcategory %q: %w", subName, err)
			}
		}
		result = append(result, cat)
	}

	return result, nil
}
