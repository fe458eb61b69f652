package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/matching"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Link transactions to clients",
		Long: `Find the clients a transaction may belong to and link them, automatically
when the best candidate is confident enough or by hand.`,
	}

	cmd.AddCommand(suggestMatchesCmd())
	cmd.AddCommand(autoMatchCmd())
	cmd.AddCommand(linkTransactionCmd())
	cmd.AddCommand(unlinkTransactionCmd())
	cmd.AddCommand(unlinkedTransactionsCmd())

	return cmd
}

func suggestMatchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <transaction-id>",
		Short: "List the potential clients of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			matches, err := matching.NewService(store, cfg.Matching).Suggest(ctx, args[0])
			if err != nil {
				return err
			}

			if len(matches) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No potential clients found"))
				return nil
			}
			return writeMatches(out, matches)
		},
	}
}

func writeMatches(out io.Writer, matches model.PotentialMatches) error {
	w := newTable(out, "CLIENT", "NAME", "TYPE", "CONFIDENCE", "REASON")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ClientID, m.ClientName, m.MatchType, cli.FormatConfidence(m.Confidence), m.Reason)
	}
	return w.Flush()
}

func autoMatchCmd() *cobra.Command {
	var (
		ids          []string
		noCheckpoint bool
	)

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Link unlinked transactions to confident matches",
		Long: `Link every unlinked confirmed transaction whose best candidate reaches the
auto-apply threshold (matching.auto_apply_threshold). All links are saved together
when the run completes; an interrupted run saves nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var checkpointID string
			if !noCheckpoint {
				checkpointID, err = autoCheckpoint(ctx, store, "match")
				if err != nil {
					return err
				}
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			runCtx := handler.HandleInterrupts(ctx, "Matching", checkpointID)
			defer handler.Stop()

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Matching")
			result, err := matching.NewService(store, cfg.Matching).RunAutoMatching(runCtx, ids, progress.Update)
			if err != nil {
				if errors.Is(err, context.Canceled) && handler.WasInterrupted() {
					return nil
				}
				return err
			}

			if len(result.Results) > 0 {
				w := newTable(out, "TRANSACTION", "CLIENT", "TYPE", "CONFIDENCE")
				for _, m := range result.Results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						m.TransactionID, m.ClientID, m.MatchType, cli.FormatConfidence(m.Confidence))
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Matched %d of %d transactions", result.Matched, result.Processed)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only match these transaction IDs (still capped by matching.auto_limit)")
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Skip the automatic checkpoint")

	return cmd
}

func linkTransactionCmd() *cobra.Command {
	var (
		user  string
		notes string
	)

	cmd := &cobra.Command{
		Use:   "link <transaction-id> <client-id>",
		Short: "Link a transaction to a client by hand",
		Long: `Link a transaction to a client. When the transaction is already linked the
new link overrides the earlier one, which is kept for history.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			link, err := matching.NewService(store, cfg.Matching).LinkTransaction(ctx, args[0], args[1], user, notes)
			if err != nil {
				return err
			}

			msg := fmt.Sprintf("%s Linked %s to %s (link %s)", cli.LinkIcon, link.TransactionID, link.ClientID, link.ID)
			if link.IsManualOverride {
				msg += ", overriding " + link.PreviousLinkID
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.SuccessStyle.Render(msg))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser(), "User recorded as having made the link")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes stored with the link")

	return cmd
}

func unlinkTransactionCmd() *cobra.Command {
	var (
		user   string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "unlink <link-id>",
		Short: "Remove a client link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := matching.NewService(store, cfg.Matching).UnlinkTransaction(ctx, args[0], user, reason); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Removed link "+args[0]))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", defaultUser(), "User recorded as having removed the link")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the link was removed")

	return cmd
}

func unlinkedTransactionsCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "unlinked",
		Short: "List unlinked transactions with their potential clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			page, err := matching.NewService(store, cfg.Matching).UnlinkedTransactions(ctx, limit, offset)
			if err != nil {
				return err
			}

			if page.Total == 0 {
				fmt.Fprintln(out, cli.FormatSuccess("Every transaction is linked"))
				return nil
			}

			w := newTable(out, "TRANSACTION", "DATE", "AMOUNT", "DESCRIPTION", "BEST MATCH")
			for _, u := range page.Transactions {
				best := "-"
				if top := u.PotentialMatches.Top(); top != nil {
					best = fmt.Sprintf("%s (%s)", top.ClientName, cli.FormatConfidence(top.Confidence))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					u.Transaction.ID,
					u.Transaction.Date.Format("2006-01-02"),
					cli.FormatAmount(u.Transaction.Amount),
					u.Transaction.Description,
					best)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("Showing %d of %d unlinked transactions", len(page.Transactions), page.Total)))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of transactions to skip")

	return cmd
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
