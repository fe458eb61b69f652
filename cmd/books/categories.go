package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
		Long:  `List and add the categories and subcategories transactions are filed under.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(subcategoriesCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		Long:  `Display all active categories with their subcategories.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}

			if len(categories) == 0 {
				fmt.Fprintln(out, cli.InfoStyle.Render("No categories found. Use 'books categories add' to create one."))
				return nil
			}

			w := newTable(out, "ID", "NAME", "TYPE", "SUBCATEGORIES")
			for _, cat := range categories {
				subs, err := store.GetSubcategories(ctx, cat.ID)
				if err != nil {
					return fmt.Errorf("failed to get subcategories: %w", err)
				}
				names := make([]string, len(subs))
				for i, sub := range subs {
					names[i] = sub.Name
				}
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n",
					cat.ID, cat.Icon, cat.Name, cat.Type, orDash(strings.Join(names, ", ")))
			}
			return w.Flush()
		},
	}
}

func addCategoryCmd() *cobra.Command {
	var (
		id           string
		categoryType string
		color        string
		icon         string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			category := &model.Category{
				ID:       id,
				Name:     args[0],
				Type:     model.CategoryType(categoryType),
				Color:    color,
				Icon:     icon,
				IsActive: true,
			}
			if err := store.CreateCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %q (%s)", category.Name, category.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Category ID (generated if not provided)")
	cmd.Flags().StringVarP(&categoryType, "type", "t", string(model.CategoryTypeExpense), "Category type (income, expense, transfer)")
	cmd.Flags().StringVar(&color, "color", "", "Display color")
	cmd.Flags().StringVar(&icon, "icon", "", "Display icon")

	return cmd
}

func subcategoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Manage subcategories",
	}

	var id string
	add := &cobra.Command{
		Use:   "add <category-id> <name>",
		Short: "Add a subcategory to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sub := &model.Subcategory{ID: id, CategoryID: args[0], Name: args[1]}
			if err := store.CreateSubcategory(ctx, sub); err != nil {
				return fmt.Errorf("failed to create subcategory: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created subcategory %q (%s)", sub.Name, sub.ID)))
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "Subcategory ID (generated if not provided)")

	cmd.AddCommand(add)
	return cmd
}
