package categorize

// Config holds configuration options for the categorization engine.
type Config struct {
	// LookbackMonths is how far back the frequency detector looks for earlier
	// transactions from the same counterparty.
	LookbackMonths int
	// BatchLimit caps a batch run that is not restricted to explicit IDs.
	BatchLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		LookbackMonths: 3,
		BatchLimit:     500,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LookbackMonths <= 0 {
		c.LookbackMonths = def.LookbackMonths
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = def.BatchLimit
	}
	return c
}
