package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-books-must-balance/internal/categorize"
	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/spf13/cobra"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize transactions with the rule catalog",
	}

	cmd.AddCommand(showCategorizationCmd())
	cmd.AddCommand(runCategorizationCmd())

	return cmd
}

func showCategorizationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <transaction-id>",
		Short: "Show the category the engine would assign, without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, cfg, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txn, err := store.GetTransaction(ctx, args[0])
			if err != nil {
				return err
			}

			result, err := categorize.NewEngineWithConfig(store, cfg.Categorize).Categorize(ctx, *txn)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s  %s  %s\n", txn.Date.Format("2006-01-02"), cli.FormatAmount(txn.Amount), txn.Description)
			if result == nil {
				fmt.Fprintln(out, cli.FormatWarning("No rule matched this transaction"))
				return nil
			}

			fmt.Fprintf(out, "Category:   %s\n", categoryLabel(result.CategoryID, result.SubcategoryID))
			fmt.Fprintf(out, "Method:     %s\n", result.Method)
			fmt.Fprintf(out, "Confidence: %s\n", cli.FormatConfidence(result.Confidence))
			fmt.Fprintf(out, "Reasoning:  %s\n", result.Reasoning)
			return nil
		},
	}
}

func runCategorizationCmd() *cobra.Command {
	var (
		ids          []string
		noCheckpoint bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Categorize uncategorized transactions",
		Long: `Categorize confirmed transactions that have no categorization yet. All
results are saved together when the run completes; an interrupted run saves nothing.
A checkpoint is taken first so the run can be undone.`,
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
				checkpointID, err = autoCheckpoint(ctx, store, "categorize")
				if err != nil {
					return err
				}
			}

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			runCtx := handler.HandleInterrupts(ctx, "Categorization", checkpointID)
			defer handler.Stop()

			progress := cli.NewProgress(cmd.ErrOrStderr(), "Categorizing")
			engine := categorize.NewEngineWithConfig(store, cfg.Categorize)
			results, err := engine.BatchCategorize(runCtx, ids, progress.Update)
			if err != nil {
				if errors.Is(err, context.Canceled) && handler.WasInterrupted() {
					return nil
				}
				return err
			}

			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Categorized %d transactions", len(results))))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Only categorize these transaction IDs")
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Skip the automatic checkpoint")

	return cmd
}

// autoCheckpoint snapshots the database before a batch run. A failed snapshot
// is logged and the run continues without a restore point.
func autoCheckpoint(ctx context.Context, store checkpointer, operation string) (string, error) {
	manager, err := store.NewCheckpointManager()
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint manager: %w", err)
	}

	info, err := manager.AutoCheckpoint(ctx, operation)
	if err != nil {
		slog.Warn("Continuing without checkpoint", "operation", operation, "error", err)
		return "", nil
	}
	return info.ID, nil
}
