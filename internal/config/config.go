package config

import (
	"fmt"

	"github.com/Veraticus/the-books-must-balance/internal/categorize"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/matching"
	"github.com/spf13/viper"
)

// Config is the typed view of the settings read through viper.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	Categorize   categorize.Config
	Matching     matching.Config
}

// SetDefaults registers the default value of every known key on v.
func SetDefaults(v *viper.Viper) {
	cat := categorize.DefaultConfig()
	match := matching.DefaultConfig()

	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("categorize.lookback_months", cat.LookbackMonths)
	v.SetDefault("categorize.batch_limit", cat.BatchLimit)
	v.SetDefault("matching.auto_apply_threshold", match.AutoApplyThreshold)
	v.SetDefault("matching.fuzzy_min_score", match.FuzzyMinScore)
	v.SetDefault("matching.fuzzy_limit", match.FuzzyLimit)
	v.SetDefault("matching.auto_limit", match.AutoLimit)
}

// Load reads and validates the configuration from v. The database path has ~
// and environment variables expanded.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		LogLevel:     v.GetString("logging.level"),
		LogFormat:    v.GetString("logging.format"),
		Categorize: categorize.Config{
			LookbackMonths: v.GetInt("categorize.lookback_months"),
			BatchLimit:     v.GetInt("categorize.batch_limit"),
		},
		Matching: matching.Config{
			AutoApplyThreshold: v.GetFloat64("matching.auto_apply_threshold"),
			FuzzyMinScore:      v.GetFloat64("matching.fuzzy_min_score"),
			FuzzyLimit:         v.GetInt("matching.fuzzy_limit"),
			AutoLimit:          v.GetInt("matching.auto_limit"),
		},
	}

	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database.path: %w", common.ErrMissingConfig)
	}
	if err := unitInterval("matching.auto_apply_threshold", cfg.Matching.AutoApplyThreshold); err != nil {
		return nil, err
	}
	if err := unitInterval("matching.fuzzy_min_score", cfg.Matching.FuzzyMinScore); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unitInterval(key string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v: %w", key, value, common.ErrInvalidConfig)
	}
	return nil
}
