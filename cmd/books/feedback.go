package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Veraticus/the-books-must-balance/internal/categorize"
	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record verdicts on categorizations",
		Long: `Tell the engine whether a categorization was right. Corrections of the
engine's own predictions teach it new rules.`,
	}

	cmd.AddCommand(submitFeedbackCmd())
	cmd.AddCommand(importFeedbackCmd())

	return cmd
}

func submitFeedbackCmd() *cobra.Command {
	var fb model.Feedback

	cmd := &cobra.Command{
		Use:   "submit <transaction-id>",
		Short: "Submit feedback for one transaction",
		Example: `  # The engine got it right
  books feedback submit txn-123 --actual meals --predicted meals --correct

  # The engine got it wrong
  books feedback submit txn-123 --actual travel --predicted meals`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fb.TransactionID = args[0]

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := categorize.NewLearner(store, nil).ProcessFeedback(ctx, fb); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Recorded feedback for "+fb.TransactionID))
			return nil
		},
	}

	cmd.Flags().StringVar(&fb.ActualCategoryID, "actual", "", "Correct category ID")
	cmd.Flags().StringVar(&fb.ActualSubcategoryID, "actual-sub", "", "Correct subcategory ID")
	cmd.Flags().StringVar(&fb.PredictedCategoryID, "predicted", "", "Category ID that was predicted")
	cmd.Flags().StringVar(&fb.PredictedSubcategoryID, "predicted-sub", "", "Subcategory ID that was predicted")
	cmd.Flags().BoolVar(&fb.WasCorrect, "correct", false, "The prediction was correct")
	_ = cmd.MarkFlagRequired("actual")

	return cmd
}

func importFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Submit a JSON array of feedback items",
		Long: `Submit feedback in bulk. The file holds a JSON array of objects with the
fields transactionId, actualCategoryId, actualSubcategoryId, predictedCategoryId,
predictedSubcategoryId and wasCorrect. Items are processed in order; a failed
item is reported and the rest are still applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read feedback file: %w", err)
			}

			var items []model.Feedback
			if err := json.Unmarshal(data, &items); err != nil {
				return common.NewUserError("feedback file must be a JSON array of feedback items",
					fmt.Errorf("%w: %w", common.ErrInvalidFeedback, err))
			}

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			err = categorize.NewLearner(store, nil).BatchProcessFeedback(ctx, items)
			failed := countJoined(err)
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded %d feedback items", len(items)-failed)))
			if err != nil {
				return fmt.Errorf("%d of %d feedback items failed: %w", failed, len(items), err)
			}
			return nil
		},
	}
}

// countJoined reports how many errors err carries when it came from errors.Join.
func countJoined(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
