package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

func (a *App) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "c"},
		Short:   "Browse and manage categories",
	}
	cmd.AddCommand(
		a.categoriesListCmd(),
		a.categoriesCreateCmd(),
		a.categoriesUpdateCmd(),
		a.categoriesDeleteCmd(),
	)
	return cmd
}

func (a *App) categoriesListCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.cats.List(cmd.Context(), a.listParams(flags))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printer.JSON(page)
			}
			if len(page.Data) == 0 {
				a.printer.Info("No categories found")
				return nil
			}

			table := a.printer.NewTable("ID", "NAME", "CREATED")
			for _, c := range page.Data {
				created := "-"
				if c.CreatedAt != nil {
					created = formatTime(*c.CreatedAt)
				}
				table.AddRow(c.ID, a.printer.Bold(c.Name), created)
			}
			if err := table.Render(); err != nil {
				return err
			}
			a.printer.Print("%s", a.printer.Dim(fmt.Sprintf("Page %d of %d (%d categories)", page.Page, page.TotalPages, page.Total)))
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func (a *App) submitCategory(cmd *cobra.Command, verb string, form validation.CategoryForm) error {
	return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
		category, err := a.cats.Submit(ctx, form)
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printer.JSON(category)
		}
		a.printer.Success("%s category %s (%s)", verb, a.printer.Bold(category.Name), category.ID)
		return nil
	})
}

func (a *App) categoriesCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category (Admin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.submitCategory(cmd, "Created", validation.CategoryForm{Name: strings.Join(args, " ")})
		},
	}
}

func (a *App) categoriesUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <name>",
		Short: "Rename a category (Admin)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.submitCategory(cmd, "Updated", validation.CategoryForm{ID: args[0], Name: strings.Join(args[1:], " ")})
		},
	}
}

func (a *App) categoriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a category (Admin)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
				if err := a.cats.Delete(ctx, args[0]); err != nil {
					return err
				}
				a.printer.Success("Deleted category %s", args[0])
				return nil
			})
		},
	}
}
