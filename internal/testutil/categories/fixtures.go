package categories

// Fixture represents a predefined set of categories for testing.
type Fixture interface {
	// Name returns the fixture's descriptive name.
	Name() string

	// Categories returns the category names included in this fixture.
	Categories() []CategoryName
}

type fixture struct {
	name       string
	categories []CategoryName
}

func (f *fixture) Name() string               { return f.name }
func (f *fixture) Categories() []CategoryName { return f.categories }

// Predefined fixtures for common test scenarios.
var (
	// FixtureMinimal provides the minimum categories for basic tests.
	FixtureMinimal Fixture = &fixture{
		name: "Minimal",
		categories: []CategoryName{
			CategoryFoodDining,
			CategoryGroceries,
			CategoryTransport,
		},
	}

	// FixtureBusiness covers a small business account: income, recurring costs and
	// transfers between own accounts.
	FixtureBusiness Fixture = &fixture{
		name: "Business",
		categories: []CategoryName{
			CategoryConsulting,
			CategoryInterest,
			CategoryRent,
			CategorySubscriptions,
			CategoryUtilities,
			CategoryBankingFees,
			CategoryTransfers,
		},
	}
)
