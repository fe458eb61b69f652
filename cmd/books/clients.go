package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/matching"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client directory",
		Long:  `Add and list clients, manage their matching patterns, and summarize their payments.`,
	}

	cmd.AddCommand(addClientCmd())
	cmd.AddCommand(listClientsCmd())
	cmd.AddCommand(clientPatternsCmd())
	cmd.AddCommand(clientSummaryCmd())

	return cmd
}

func addClientCmd() *cobra.Command {
	var client model.Client

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a client",
		Example: `  # A client that pays with its invoice number as reference
  books clients add "Jane Doe" --business "Acme Ltd" --field reference=INV-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client.Name = args[0]

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.CreateClient(ctx, &client); err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created client %q (%s)", client.DisplayName(), client.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&client.ID, "id", "", "Client ID (generated if not provided)")
	cmd.Flags().StringVar(&client.BusinessName, "business", "", "Business name")
	cmd.Flags().StringVar(&client.BankAccount, "bank-account", "", "Bank account the client pays from")
	cmd.Flags().StringToStringVar(&client.CustomFields, "field", nil, "Custom field as key=value (repeatable)")

	return cmd
}

func listClientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			clients, err := store.ListClients(ctx)
			if err != nil {
				return fmt.Errorf("failed to list clients: %w", err)
			}

			if len(clients) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No clients found. Use 'books clients add' to create one."))
				return nil
			}

			w := newTable(out, "ID", "NAME", "BUSINESS", "BANK ACCOUNT", "FIELDS")
			for _, c := range clients {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.Name, orDash(c.BusinessName), orDash(c.BankAccount), orDash(formatFields(c.CustomFields)))
			}
			return w.Flush()
		},
	}
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields[k]
	}
	return strings.Join(pairs, ", ")
}

func clientPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pattern",
		Short: "Manage client matching patterns",
	}

	cmd.AddCommand(addClientPatternCmd())
	cmd.AddCommand(listClientPatternsCmd())
	cmd.AddCommand(updateClientPatternCmd())
	cmd.AddCommand(deactivateClientPatternCmd())

	return cmd
}

func addClientPatternCmd() *cobra.Command {
	var (
		patternType string
		expr        string
		minAmount   string
		maxAmount   string
		confidence  float64
	)

	cmd := &cobra.Command{
		Use:   "add <client-id>",
		Short: "Add a matching pattern to a client",
		Example: `  # Monthly retainer between 1000 and 1200
  books clients pattern add c1 --type amount_range --min 1000 --max 1200

  # Payments that mention the project code
  books clients pattern add c1 --type description --pattern "(?i)proj-7"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lo, err := parseDecimalFlag("min", minAmount)
			if err != nil {
				return err
			}
			hi, err := parseDecimalFlag("max", maxAmount)
			if err != nil {
				return err
			}

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p := &model.ClientMatchingPattern{
				ClientID:    args[0],
				PatternType: model.PatternType(patternType),
				Pattern:     expr,
				AmountMin:   lo,
				AmountMax:   hi,
				Confidence:  confidence,
			}
			if err := matching.NewService(store, cfg.Matching).CreateMatchingPattern(ctx, p); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created %s pattern %s", p.PatternType, p.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&patternType, "type", "t", string(model.PatternDescription), "Pattern type (amount_range, description, reference)")
	cmd.Flags().StringVarP(&expr, "pattern", "p", "", "Regular expression for description and reference patterns")
	cmd.Flags().StringVar(&minAmount, "min", "", "Minimum amount for amount_range patterns")
	cmd.Flags().StringVar(&maxAmount, "max", "", "Maximum amount for amount_range patterns")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence of matches (default 0.8)")

	return cmd
}

func updateClientPatternCmd() *cobra.Command {
	var (
		expr       string
		minAmount  string
		maxAmount  string
		confidence float64
		active     bool
	)

	cmd := &cobra.Command{
		Use:   "update <pattern-id>",
		Short: "Change a client matching pattern",
		Long: `Change the expression, amount range, confidence or active flag of a
matching pattern. Only the flags given are changed.`,
		Example: `  books clients pattern update p1 --confidence 0.9
  books clients pattern update p1 --active=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()

			lo, err := parseDecimalFlag("min", minAmount)
			if err != nil {
				return err
			}
			hi, err := parseDecimalFlag("max", maxAmount)
			if err != nil {
				return err
			}

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			p, err := matching.NewService(store, cfg.Matching).UpdateMatchingPattern(ctx, args[0], func(p *model.ClientMatchingPattern) {
				if flags.Changed("pattern") {
					p.Pattern = expr
				}
				if flags.Changed("min") {
					p.AmountMin = lo
				}
				if flags.Changed("max") {
					p.AmountMax = hi
				}
				if flags.Changed("confidence") {
					p.Confidence = confidence
				}
				if flags.Changed("active") {
					p.IsActive = active
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated %s pattern %s", p.PatternType, p.ID)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&expr, "pattern", "p", "", "Regular expression for description and reference patterns")
	cmd.Flags().StringVar(&minAmount, "min", "", "Minimum amount for amount_range patterns")
	cmd.Flags().StringVar(&maxAmount, "max", "", "Maximum amount for amount_range patterns")
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence of matches")
	cmd.Flags().BoolVar(&active, "active", true, "Whether the pattern produces matches")

	return cmd
}

func deactivateClientPatternCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <pattern-id>",
		Short: "Stop a client matching pattern from matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := matching.NewService(store, cfg.Matching).DeactivateMatchingPattern(ctx, args[0]); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deactivated pattern "+args[0]))
			return nil
		},
	}
}

func listClientPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <client-id>",
		Short: "List a client's matching patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := matching.NewService(store, cfg.Matching).ClientMatchingPatterns(ctx, args[0])
			if err != nil {
				return err
			}

			if len(patterns) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No matching patterns for this client."))
				return nil
			}

			w := newTable(out, "ID", "TYPE", "PATTERN", "CONFIDENCE", "MATCHES", "ACTIVE")
			for _, p := range patterns {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\n",
					p.ID, p.PatternType, describePattern(p), cli.FormatConfidence(p.Confidence), p.MatchCount, p.IsActive)
			}
			return w.Flush()
		},
	}
}

func describePattern(p model.ClientMatchingPattern) string {
	if p.PatternType == model.PatternAmountRange && p.AmountMin != nil && p.AmountMax != nil {
		return p.AmountMin.StringFixed(2) + " to " + p.AmountMax.StringFixed(2)
	}
	return p.Pattern
}

func clientSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <client-id>",
		Short: "Summarize the transactions linked to a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			summary, err := matching.NewService(store, cfg.Matching).ClientSummary(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" "+summary.ClientName, formatSummary(summary)))
			return nil
		},
	}
}

func formatSummary(s *matching.ClientSummary) string {
	if s.Transactions == 0 {
		return "No linked transactions"
	}

	lines := []string{
		fmt.Sprintf("Transactions:       %d", s.Transactions),
		fmt.Sprintf("Total amount:       %s", cli.FormatAmount(s.TotalAmount)),
		fmt.Sprintf("Average amount:     %s", cli.FormatAmount(s.AverageAmount)),
		fmt.Sprintf("First transaction:  %s", s.FirstTransaction.Format("2006-01-02")),
		fmt.Sprintf("Last transaction:   %s", s.LastTransaction.Format("2006-01-02")),
		fmt.Sprintf("Links:              %d", s.Links),
		fmt.Sprintf("Average confidence: %s", cli.FormatConfidence(s.AverageConfidence)),
		fmt.Sprintf("High / low:         %d / %d", s.HighConfidence, s.LowConfidence),
	}

	types := make([]string, 0, len(s.MatchCounts))
	for t := range s.MatchCounts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("  %-17s %d", t+":", s.MatchCounts[model.MatchType(t)]))
	}
	return strings.Join(lines, "\n")
}
