package model

// CategoryType indicates whether a category is for income, expense, or transfer use.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for income transactions.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for expense transactions.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeTransfer represents movements between own accounts.
	CategoryTypeTransfer CategoryType = "transfer"
)

// Valid reports whether t is one of the known category types.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeIncome, CategoryTypeExpense, CategoryTypeTransfer:
		return true
	}
	return false
}

// Category is reference data administered outside the engine.
type Category struct {
	ID       string
	Name     string
	Type     CategoryType
	Color    string
	Icon     string
	IsActive bool
}

// Subcategory belongs to exactly one Category.
type Subcategory struct {
	ID         string
	CategoryID string
	Name       string
}
