// Package testutil provides a migrated SQLite database seeded with category
// reference data for tests that exercise real storage.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
	"github.com/Veraticus/the-books-must-balance/internal/testutil/categories"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	t          *testing.T
	Categories categories.Categories
}

// SetupTestDB creates a migrated database in a temporary directory. It is
// closed when the test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithBuilder(t, nil)
}

// SetupTestDBWithBuilder creates a test database and seeds the categories the
// builder is configured with.
//
// Example:
//
//	db := testutil.SetupTestDBWithBuilder(t, func(b categories.Builder) categories.Builder {
//		return b.WithBasicCategories().WithSubcategory(categories.CategoryFoodDining, "Coffee")
//	})
func SetupTestDBWithBuilder(t *testing.T, configure func(categories.Builder) categories.Builder) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	builder := categories.NewBuilder(t)
	if configure != nil {
		builder = configure(builder)
	}
	cats, err := builder.Build(ctx, store)
	if err != nil {
		t.Fatalf("failed to build categories: %v", err)
	}

	return &TestDB{
		Storage:    store,
		Categories: cats,
		t:          t,
	}
}

// MustGetCategory returns the ID of the category with the given name or fails the test.
func (db *TestDB) MustGetCategory(name categories.CategoryName) string {
	db.t.Helper()
	return db.Categories.MustFind(db.t, name).ID
}

// SaveTransactions stores transactions or fails the test.
func (db *TestDB) SaveTransactions(transactions ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), transactions); err != nil {
		db.t.Fatalf("failed to save transactions: %v", err)
	}
}

// AddClient stores a client and returns its ID, or fails the test.
func (db *TestDB) AddClient(client model.Client) string {
	db.t.Helper()
	if err := db.Storage.CreateClient(context.Background(), &client); err != nil {
		db.t.Fatalf("failed to create client %q: %v", client.Name, err)
	}
	return client.ID
}
