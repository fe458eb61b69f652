package matching

// Config holds configuration options for client matching.
type Config struct {
	// AutoApplyThreshold is the minimum confidence an automatic link needs.
	AutoApplyThreshold float64
	// FuzzyMinScore is the name similarity a client must exceed to be suggested.
	FuzzyMinScore float64
	// FuzzyLimit caps the number of fuzzy suggestions.
	FuzzyLimit int
	// AutoLimit caps the transactions one automatic run processes.
	AutoLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AutoApplyThreshold: 0.85,
		FuzzyMinScore:      0.3,
		FuzzyLimit:         5,
		AutoLimit:          100,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.AutoApplyThreshold <= 0 {
		c.AutoApplyThreshold = def.AutoApplyThreshold
	}
	if c.FuzzyMinScore <= 0 {
		c.FuzzyMinScore = def.FuzzyMinScore
	}
	if c.FuzzyLimit <= 0 {
		c.FuzzyLimit = def.FuzzyLimit
	}
	if c.AutoLimit <= 0 {
		c.AutoLimit = def.AutoLimit
	}
	return c
}
