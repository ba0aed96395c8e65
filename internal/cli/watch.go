package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cms-console/internal/domain"
	"cms-console/internal/listing"
)

func (a *App) articlesWatchCmd() *cobra.Command {
	var (
		flags    listFlags
		interval time.Duration
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a live view of an article list",
		Long: `Show a page of articles and refresh it in the background. A notice is
printed whenever a refresh brings different articles. Press Enter to refresh
right away and Ctrl+C to stop.

Examples:
  cmsctl articles watch
  cmsctl articles watch --category <id> --interval 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			if interval <= 0 {
				interval = a.cfg.Poll.Interval
			}
			return a.watchArticles(ctx, a.listParams(flags), interval)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default poll.interval)")
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default: until interrupted)")
	return cmd
}

func (a *App) watchArticles(ctx context.Context, params domain.ListParams, interval time.Duration) error {
	var (
		categories *domain.Page[domain.Category]
		first      *domain.Page[domain.Article]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = a.cats.List(gctx, domain.ListParams{Page: 1, Limit: 100})
		return err
	})
	g.Go(func() error {
		var err error
		first, err = a.articles.List(gctx, params)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if params.CategoryID != "" {
		for _, c := range categories.Data {
			if c.ID == params.CategoryID {
				a.printer.Info("Category: %s", c.Name)
			}
		}
	} else if len(categories.Data) > 0 {
		a.printer.Info("%d categories available", categories.Total)
	}
	if err := a.renderArticles(first); err != nil {
		return err
	}

	var lister *listing.Lister[domain.Article]
	lister = listing.New(func(ctx context.Context, q listing.Query) (*domain.Page[domain.Article], error) {
		return a.articles.List(ctx, q)
	}, listing.Options[domain.Article]{
		Query:    params,
		Interval: interval,
		Debounce: a.cfg.Poll.Debounce,
		Logger:   a.logger,
		OnNotice: func(n listing.Notice) {
			switch n.Kind {
			case listing.NoticeChanged:
				a.printer.Info("Articles updated at %s", time.Now().Format("15:04:05"))
				if err := a.renderArticles(snapshotPage(lister.Snapshot())); err != nil {
					a.logger.Warnf("render articles: %v", err)
				}
			case listing.NoticeError:
				a.printer.Warning("Refresh failed: %v", n.Err)
			}
		},
	})

	go refreshOnEnter(ctx, a.opts.In, lister.Refresh)

	err := lister.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// refreshOnEnter calls refresh for every line read from in until ctx ends or
// in is exhausted.
func refreshOnEnter(ctx context.Context, in io.Reader, refresh func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		refresh()
	}
}

func snapshotPage(s listing.Snapshot[domain.Article]) *domain.Page[domain.Article] {
	return &domain.Page[domain.Article]{
		Data:       s.Items,
		Total:      s.Total,
		Page:       s.Query.Page,
		Limit:      s.Query.Limit,
		TotalPages: s.TotalPages,
	}
}
