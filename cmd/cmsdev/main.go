// Command cmsdev serves an in-memory CMS backend for trying cmsctl locally.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cms-console/internal/domain"
	"cms-console/internal/fakeapi"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(logger).ExecuteContext(ctx); err != nil {
		logger.Fatal(err)
	}
}

func newCommand(logger *logrus.Logger) *cobra.Command {
	var (
		addr       string
		secret     string
		ttl        time.Duration
		users      []string
		categories []string
		wrap       bool
	)
	cmd := &cobra.Command{
		Use:   "cmsdev",
		Short: "Run an in-memory CMS API",
		Long: `Run an in-memory CMS API with the same routes and payloads as the real
backend. Nothing is persisted.

Example:
  cmsdev --addr :3000 --user admin:secret123:Admin --user reader:secret123:User --category Go`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fake := fakeapi.New(fakeapi.Options{
				Secret:   secret,
				TTL:      ttl,
				WrapData: wrap,
				BaseURL:  "http://" + hostOf(addr),
			})
			for _, entry := range users {
				name, pass, role, err := parseUser(entry)
				if err != nil {
					return err
				}
				fake.AddUser(name, pass, role)
				logger.Infof("seeded user %s (%s)", name, role)
			}
			for _, name := range categories {
				c := fake.AddCategory(name)
				logger.Infof("seeded category %s (%s)", c.Name, c.ID)
			}
			return serve(cmd.Context(), logger, addr, fake.Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":3000", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "cmsdev-secret", "token signing secret")
	cmd.Flags().DurationVar(&ttl, "token-ttl", time.Hour, "lifetime of issued tokens")
	cmd.Flags().StringArrayVar(&users, "user", []string{"admin:secret123:Admin"}, "seed account as name:password:role")
	cmd.Flags().StringArrayVar(&categories, "category", nil, "seed category name")
	cmd.Flags().BoolVar(&wrap, "wrap-data", false, `wrap single entities as {"data": ...}`)
	return cmd
}

func serve(ctx context.Context, logger *logrus.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	logger.Info("bye")
	return nil
}

func parseUser(entry string) (string, string, domain.Role, error) {
	parts := strings.Split(entry, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid --user %q, want name:password[:role]", entry)
	}
	role := domain.RoleUser
	if len(parts) == 3 {
		role = domain.Role(parts[2])
		if !role.Valid() {
			return "", "", "", fmt.Errorf("invalid role %q in --user %q", parts[2], entry)
		}
	}
	return parts[0], parts[1], role, nil
}

func hostOf(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
