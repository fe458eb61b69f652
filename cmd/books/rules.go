package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/categorize"
	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `List, create, and deactivate the rules the categorization engine evaluates,
and report how well their predictions held up against feedback.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(createRuleCmd())
	cmd.AddCommand(deactivateRuleCmd())
	cmd.AddCommand(ruleMetricsCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var rules []model.Rule
			if all {
				rules, err = store.ListRules(ctx)
			} else {
				rules, err = store.ListActiveRules(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(rules) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No rules found. Use 'books rules create' to add one."))
				return nil
			}

			w := newTable(out, "ID", "NAME", "CATEGORY", "CONFIDENCE", "SUCCESS", "MATCHES", "ACTIVE")
			for _, r := range rules {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%t\n",
					r.ID,
					r.Name,
					categoryLabel(r.CategoryID, r.SubcategoryID),
					cli.FormatConfidence(r.ConfidenceScore),
					r.SuccessRate,
					r.MatchCount,
					r.IsActive)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include inactive rules")

	return cmd
}

func createRuleCmd() *cobra.Command {
	var (
		name        string
		description string
		category    string
		subcategory string
		keywords    []string
		merchants   []string
		minAmount   string
		maxAmount   string
		exact       []string
		confidence  float64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a categorization rule",
		Example: `  # File anything from the coffee shop under meals
  books rules create --name "Coffee" --category meals --merchant "(?i)blue bottle"

  # Rent is always the same amount
  books rules create --name "Rent" --category housing --exact -2400.00`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			amounts, err := amountPatternsFromFlags(minAmount, maxAmount, exact)
			if err != nil {
				return err
			}

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rule := &model.Rule{
				Name:             name,
				Description:      description,
				CategoryID:       category,
				SubcategoryID:    subcategory,
				Keywords:         keywords,
				MerchantPatterns: merchants,
				AmountPatterns:   amounts,
				ConfidenceScore:  confidence,
				SuccessRate:      model.DefaultSuccessRate,
				IsActive:         true,
			}
			if err := store.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %q (%s)", rule.Name, rule.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Rule name")
	cmd.Flags().StringVar(&description, "description", "", "What the rule recognizes")
	cmd.Flags().StringVar(&category, "category", "", "Category ID assigned by the rule")
	cmd.Flags().StringVar(&subcategory, "subcategory", "", "Subcategory ID assigned by the rule")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Keyword to match (repeatable)")
	cmd.Flags().StringSliceVar(&merchants, "merchant", nil, "Merchant regular expression (repeatable)")
	cmd.Flags().StringVar(&minAmount, "min", "", "Minimum amount of the amount range")
	cmd.Flags().StringVar(&maxAmount, "max", "", "Maximum amount of the amount range")
	cmd.Flags().StringSliceVar(&exact, "exact", nil, "Exact amount to match (repeatable)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.8, "Confidence of the rule's predictions")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func amountPatternsFromFlags(minAmount, maxAmount string, exact []string) (*model.AmountPatterns, error) {
	lo, err := parseDecimalFlag("min", minAmount)
	if err != nil {
		return nil, err
	}
	hi, err := parseDecimalFlag("max", maxAmount)
	if err != nil {
		return nil, err
	}

	var amounts []decimal.Decimal
	for _, e := range exact {
		d, err := parseDecimalFlag("exact", e)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, *d)
	}

	if lo == nil && hi == nil && len(amounts) == 0 {
		return nil, nil
	}
	return &model.AmountPatterns{MinAmount: lo, MaxAmount: hi, ExactAmounts: amounts}, nil
}

func deactivateRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Stop the engine from evaluating a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeactivateRule(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to deactivate rule: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deactivated rule "+args[0]))
			return nil
		},
	}
}

func ruleMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show prediction accuracy and the best performing rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			metrics, err := categorize.NewLearner(store, nil).PerformanceMetrics(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatTitle("Categorization Performance"))
			fmt.Fprintf(out, "Predictions with feedback: %d\n", metrics.TotalPredictions)
			fmt.Fprintf(out, "Correct predictions:       %d\n", metrics.CorrectPredictions)
			fmt.Fprintf(out, "Accuracy:                  %.1f%%\n", metrics.Accuracy)

			if len(metrics.TopRules) > 0 {
				fmt.Fprintln(out)
				w := newTable(out, "RULE", "CATEGORY", "SUCCESS", "MATCHES", "CATEGORIZATIONS")
				for _, usage := range metrics.TopRules {
					fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d\n",
						usage.Rule.Name,
						categoryLabel(usage.Rule.CategoryID, usage.Rule.SubcategoryID),
						usage.Rule.SuccessRate,
						usage.Rule.MatchCount,
						usage.Categorizations)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if len(metrics.Suggestions) > 0 {
				fmt.Fprintln(out)
				for _, s := range metrics.Suggestions {
					fmt.Fprintln(out, cli.FormatInfo(s))
				}
			}
			return nil
		},
	}
}

func categoryLabel(categoryID, subcategoryID string) string {
	if subcategoryID == "" {
		return categoryID
	}
	return strings.Join([]string{categoryID, subcategoryID}, "/")
}
