package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cms-console/internal/domain"
	"cms-console/internal/validation"
)

type listFlags struct {
	page     int
	limit    int
	search   string
	category string
}

func (f *listFlags) register(cmd *cobra.Command, withCategory bool) {
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "page size (default list.limit)")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "search term")
	if withCategory {
		cmd.Flags().StringVarP(&f.category, "category", "c", "", "category id")
	}
}

func (a *App) listParams(f listFlags) domain.ListParams {
	limit := f.limit
	if limit <= 0 {
		limit = a.cfg.List.Limit
	}
	return domain.ListParams{Page: f.page, Limit: limit, Search: f.search, CategoryID: f.category}
}

func (a *App) articlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "articles",
		Aliases: []string{"article", "a"},
		Short:   "Browse and manage articles",
	}
	cmd.AddCommand(
		a.articlesListCmd(),
		a.articlesGetCmd(),
		a.articlesWatchCmd(),
		a.articlesCreateCmd(),
		a.articlesUpdateCmd(),
		a.articlesDeleteCmd(),
	)
	return cmd
}

func (a *App) articlesListCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List articles",
		Long: `List one page of articles, newest first.

Examples:
  cmsctl articles list
  cmsctl articles list --search golang --page 2
  cmsctl articles list --category <id> --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.articles.List(cmd.Context(), a.listParams(flags))
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printer.JSON(page)
			}
			return a.renderArticles(page)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *App) renderArticles(page *domain.Page[domain.Article]) error {
	if len(page.Data) == 0 {
		a.printer.Info("No articles found")
		return nil
	}

	table := a.printer.NewTable("ID", "TITLE", "CATEGORY", "AUTHOR", "UPDATED")
	for _, article := range page.Data {
		table.AddRow(
			article.ID,
			a.printer.Bold(truncate(article.Title, 48)),
			categoryName(article),
			authorName(article),
			formatTime(article.UpdatedAt),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	a.printer.Print("%s", a.printer.Dim(fmt.Sprintf("Page %d of %d (%d articles)", page.Page, page.TotalPages, page.Total)))
	return nil
}

func (a *App) articlesGetCmd() *cobra.Command {
	var related bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			article, err := a.articles.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var more []domain.Article
			if related {
				more, err = a.articles.Related(cmd.Context(), article)
				if err != nil {
					return err
				}
			}

			if a.jsonOut {
				return a.printer.JSON(struct {
					*domain.Article
					Related []domain.Article `json:"related,omitempty"`
				}{article, more})
			}

			a.printer.Header(article.Title)
			a.printer.Print("%s  %s  %s", categoryName(*article), authorName(*article), formatTime(article.CreatedAt))
			if article.ImageURL != "" {
				a.printer.Print("%s", a.printer.Dim("image: " + article.ImageURL))
			}
			a.printer.Print("")
			a.printer.Print("%s", article.Content)

			if related {
				a.printer.Header("Related articles")
				if len(more) == 0 {
					a.printer.Info("None")
					return nil
				}
				table := a.printer.NewTable("ID", "TITLE")
				for _, r := range more {
					table.AddRow(r.ID, r.Title)
				}
				return table.Render()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&related, "related", false, "also list related articles from the same category")
	return cmd
}

type articleFlags struct {
	title       string
	content     string
	contentFile string
	category    string
	image       string
	removeImage bool
}

func (f *articleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "article title (5-200 characters)")
	cmd.Flags().StringVar(&f.content, "content", "", "article body (50-10000 characters)")
	cmd.Flags().StringVar(&f.contentFile, "content-file", "", "read the body from a file, - for stdin")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category id")
	cmd.Flags().StringVar(&f.image, "image", "", "thumbnail path or s3://bucket/key (JPG/PNG, max 5MB)")
}

func (f articleFlags) body(cmd *cobra.Command) (string, bool, error) {
	switch {
	case f.contentFile == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), true, err
	case f.contentFile != "":
		b, err := os.ReadFile(f.contentFile)
		return string(b), true, err
	case cmd.Flags().Changed("content"):
		return f.content, true, nil
	default:
		return "", false, nil
	}
}

func (f articleFlags) apply(cmd *cobra.Command, form *validation.ArticleForm) error {
	if cmd.Flags().Changed("title") {
		form.Title = f.title
	}
	body, ok, err := f.body(cmd)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	if ok {
		form.Content = body
	}
	if cmd.Flags().Changed("category") {
		form.CategoryID = f.category
	}
	if f.removeImage {
		form.ImageURL = ""
	}
	if f.image != "" {
		form.Image = &validation.ImageMeta{Ref: f.image}
	}
	return nil
}

func (a *App) articlesCreateCmd() *cobra.Command {
	var flags articleFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a new article (Admin)",
		Long: `Publish a new article. The form is validated locally before anything
is sent; the thumbnail is uploaded first and its URL stored on the article.

Example:
  cmsctl articles create -t "Hello Go" --content-file post.md -c <category-id> --image cover.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
				var form validation.ArticleForm
				if err := flags.apply(cmd, &form); err != nil {
					return err
				}
				article, err := a.articles.Submit(ctx, form)
				if err != nil {
					return err
				}
				return a.printArticleResult("Created", article)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *App) articlesUpdateCmd() *cobra.Command {
	var flags articleFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit an article (Admin)",
		Long: `Edit an article. Fields that are not given keep their current value.

Example:
  cmsctl articles update <id> --title "Hello again" --image s3://assets/covers/new.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
				current, err := a.articles.Get(ctx, args[0])
				if err != nil {
					return err
				}
				form := validation.ArticleForm{
					ID:         current.ID,
					Title:      current.Title,
					Content:    current.Content,
					CategoryID: current.CategoryID,
					ImageURL:   current.ImageURL,
				}
				if err := flags.apply(cmd, &form); err != nil {
					return err
				}
				article, err := a.articles.Submit(ctx, form)
				if err != nil {
					return err
				}
				return a.printArticleResult("Updated", article)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.removeImage, "remove-image", false, "drop the current thumbnail")
	return cmd
}

func (a *App) printArticleResult(verb string, article *domain.Article) error {
	if a.jsonOut {
		return a.printer.JSON(article)
	}
	a.printer.Success("%s article %s (%s)", verb, a.printer.Bold(article.Title), article.ID)
	return nil
}

func (a *App) articlesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an article (Admin)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.guard(domain.RoleAdmin).Protect(cmd.Context(), func(ctx context.Context, _ *domain.User) error {
				if err := a.articles.Delete(ctx, args[0]); err != nil {
					return err
				}
				a.printer.Success("Deleted article %s", args[0])
				return nil
			})
		},
	}
}

func categoryName(a domain.Article) string {
	if a.Category != nil {
		return a.Category.Name
	}
	return a.CategoryID
}

func authorName(a domain.Article) string {
	if a.User != nil {
		return a.User.Username
	}
	return "-"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
