package categorize

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/pattern"
)

// recurringKeywords mark rules that apply to recurring payments.
var recurringKeywords = map[string]bool{
	"subscription": true,
	"recurring":    true,
	"monthly":      true,
	"weekly":       true,
}

type compiledPattern struct {
	re     *regexp.Regexp
	source string
}

type compiledRule struct {
	patterns []compiledPattern
	keywords []string
	rule     model.Rule
}

// RuleSet is an immutable, ranked snapshot of the active rules with their merchant
// patterns compiled. It is built once per Categorize call or batch run.
type RuleSet struct {
	recurring *model.Rule
	rules     []compiledRule
}

// NewRuleSet ranks the active rules by confidence then success rate and compiles
// their merchant patterns. Patterns that do not compile are skipped with a warning.
func NewRuleSet(rules []model.Rule, cache *pattern.Cache) *RuleSet {
	active := make([]model.Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].ConfidenceScore != active[j].ConfidenceScore {
			return active[i].ConfidenceScore > active[j].ConfidenceScore
		}
		return active[i].SuccessRate > active[j].SuccessRate
	})

	rs := &RuleSet{rules: make([]compiledRule, 0, len(active))}
	for _, r := range active {
		cr := compiledRule{rule: r}

		for _, kw := range r.Keywords {
			cr.keywords = append(cr.keywords, strings.ToLower(kw))
		}

		for _, p := range r.MerchantPatterns {
			re, err := cache.Compile(p)
			if err != nil {
				slog.Warn("Skipping invalid merchant pattern",
					"rule", r.ID,
					"pattern", p,
					"error", err)
				continue
			}
			cr.patterns = append(cr.patterns, compiledPattern{re: re, source: p})
		}

		rs.rules = append(rs.rules, cr)
	}

	for i := range rs.rules {
		if rs.rules[i].rule.HasAnyKeyword(recurringKeywords) {
			rs.recurring = &rs.rules[i].rule
			break
		}
	}

	return rs
}

// Len returns the number of active rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
