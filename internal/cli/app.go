// Package cli implements the cmsctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cms-console/internal/config"
	"cms-console/internal/domain"
	apphttp "cms-console/internal/http"
	"cms-console/internal/output"
	"cms-console/internal/repository"
	"cms-console/internal/repository/memory"
	"cms-console/internal/repository/sqlite"
	"cms-console/internal/service"
	"cms-console/internal/storage"
	"cms-console/internal/validation"
)

var version = "dev"

// SetVersion sets the version reported by --version.
func SetVersion(v string) { version = v }

// Options inject process-level collaborators. Zero values use the real ones.
type Options struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	HTTPClient *http.Client
	// Images replaces the local/s3 image sources.
	Images storage.Source
}

// App holds the dependencies built once per invocation.
type App struct {
	opts Options

	cfgFile   string
	verbose   bool
	quiet     bool
	colorMode string
	jsonOut   bool

	cfg      config.Config
	logger   *logrus.Logger
	printer  *output.Printer
	tokens   repository.TokenRepository
	closers  []func() error
	client   *apphttp.Client
	session  *service.SessionStore
	nav      *cliNavigator
	images   storage.Source
	articles service.ArticleService
	cats     service.CategoryService
	accounts service.AuthService
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand(opts Options) *cobra.Command {
	_, root := newRoot(opts)
	return root
}

func newRoot(opts Options) (*App, *cobra.Command) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	app := &App{opts: opts}

	root := &cobra.Command{
		Use:   "cmsctl",
		Short: "Command line client for the blog CMS",
		Long: `cmsctl signs in to the CMS REST API and manages articles and categories.

Example usage:
  cmsctl login -u alice               # Sign in (password read from stdin)
  cmsctl articles list --search go    # Search articles
  cmsctl articles watch               # Keep a live view of the newest articles
  cmsctl articles create --title ... --content ... --category <id> --image ./cover.png`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &output.CLIError{
			Summary:    err.Error(),
			Suggestion: "Run with --help for usage",
			ExitCode:   output.ExitUsageError,
			Err:        err,
		}
	})
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "config file (default is ./config.yaml or ~/.cmsctl/config.yaml)")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&app.quiet, "quiet", "q", false, "suppress informational output")
	flags.StringVar(&app.colorMode, "color", "auto", "color output: auto, always or never")
	flags.BoolVar(&app.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		app.loginCmd(),
		app.logoutCmd(),
		app.registerCmd(),
		app.whoamiCmd(),
		app.articlesCmd(),
		app.categoriesCmd(),
		app.uploadCmd(),
	)
	return app, root
}

// Execute runs cmsctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	app, root := newRoot(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if closeErr := app.close(); closeErr != nil && app.logger != nil {
		app.logger.Warnf("close session storage: %v", closeErr)
	}
	if err == nil {
		return output.ExitSuccess
	}

	cliErr := toCLIError(err)
	printer := output.NewPrinter(output.PrinterOptions{ColorMode: output.ColorNever, Out: root.OutOrStdout(), Err: root.ErrOrStderr()})
	printer.FormatError(cliErr)
	return cliErr.ExitCode
}

func (a *App) setup(ctx context.Context) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return &output.CLIError{
			Summary:    "Invalid configuration",
			Detail:     err.Error(),
			Suggestion: "Check the config file and CMSCTL_* environment variables",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}
	a.cfg = cfg

	a.logger = logrus.New()
	a.logger.SetOutput(a.opts.Err)
	a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	a.logger.SetLevel(cfg.LogLevel(a.verbose))

	mode, err := output.ParseColorMode(a.colorMode)
	if err != nil {
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitUsageError, Err: err}
	}
	a.printer = output.NewPrinter(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: cfg.Output.Colors,
		Quiet:        a.quiet,
		Out:          a.opts.Out,
		Err:          a.opts.Err,
	})

	tokens, err := a.openTokens(ctx)
	if err != nil {
		return &output.CLIError{
			Summary:  "Cannot open session storage",
			Detail:   err.Error(),
			ExitCode: output.ExitConfigError,
			Err:      err,
		}
	}
	a.tokens = tokens

	a.nav = &cliNavigator{printer: a.printer}
	a.client = apphttp.NewClient(apphttp.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		UserAgent:  "cmsctl/" + version,
		RateLimit:  cfg.API.RateLimit,
		Burst:      cfg.API.Burst,
		HTTPClient: a.opts.HTTPClient,
		Logger:     a.logger,
	}, tokens, a.nav)
	a.session = service.NewSessionStore(a.client, tokens, a.nav, a.logger)
	a.client.OnUnauthorized(a.session.Invalidate)

	a.images = a.opts.Images
	if a.images == nil {
		a.images = storage.Sources{
			Local: storage.LocalSource{},
			S3: storage.NewLazyS3Source(storage.AWSConfig{
				Region:   cfg.AWS.Region,
				Profile:  cfg.AWS.Profile,
				Endpoint: cfg.AWS.Endpoint,
			}),
		}
	}
	a.articles = service.NewArticleService(a.client, a.images, a.logger)
	a.cats = service.NewCategoryService(a.client, a.logger)
	a.accounts = service.NewAuthService(a.client, a.logger)
	return nil
}

func (a *App) openTokens(ctx context.Context) (repository.TokenRepository, error) {
	if a.cfg.Session.Backend == config.BackendMemory {
		return memory.NewTokenRepository(), nil
	}

	db, err := sqlite.Open(a.cfg.Session.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	repo := sqlite.NewTokenRepository(db)
	if err := repo.Init(ctx); err != nil {
		return nil, fmt.Errorf("init token repository: %w", err)
	}
	return repo, nil
}

func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) guard(role domain.Role) *service.Guard {
	return service.NewGuard(a.session, a.nav, service.GuardOptions{RequiredRole: role})
}

// cliNavigator turns redirects into hints on stderr. Repeated targets are
// printed once per command.
type cliNavigator struct {
	printer *output.Printer
	last    string
}

func (n *cliNavigator) Navigate(path string) {
	if path == n.last {
		return
	}
	n.last = path
	switch path {
	case apphttp.LoginPath:
		n.printer.Warning("Sign in with: cmsctl login")
	case "/":
		n.printer.Warning("Your role does not allow this command")
	default:
		n.printer.Warning("Continue at %s", path)
	}
}

func toCLIError(err error) *output.CLIError {
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return &output.CLIError{
			Summary:  "Validation failed",
			Fields:   verrs,
			ExitCode: output.ExitValidation,
			Err:      err,
		}
	}

	if fields := apphttp.FieldErrors(err); len(fields) > 0 {
		return &output.CLIError{
			Summary:  "The CMS API rejected the form",
			Fields:   fields,
			ExitCode: output.ExitValidation,
			Err:      err,
		}
	}

	var authErr *service.AuthError
	switch {
	case errors.As(err, &authErr) && authErr.Reason == service.ReasonInvalidCredentials:
		return &output.CLIError{
			Summary:  "Invalid username or password",
			ExitCode: output.ExitAuthError,
			Err:      err,
		}
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, apphttp.ErrUnauthorized),
		errors.Is(err, service.ErrNoToken), authErr != nil:
		return &output.CLIError{
			Summary:    "Not signed in",
			Detail:     err.Error(),
			Suggestion: "Run 'cmsctl login'",
			ExitCode:   output.ExitAuthError,
			Err:        err,
		}
	case errors.Is(err, service.ErrForbidden), errors.Is(err, apphttp.ErrForbidden):
		return &output.CLIError{
			Summary:    "Admin role required",
			Detail:     err.Error(),
			Suggestion: "Sign in with an Admin account",
			ExitCode:   output.ExitAuthError,
			Err:        err,
		}
	case errors.Is(err, apphttp.ErrNotFound):
		return &output.CLIError{Summary: "Not found", Detail: err.Error(), ExitCode: output.ExitAPIError, Err: err}
	case errors.Is(err, apphttp.ErrNetwork):
		return &output.CLIError{
			Summary:    "Cannot reach the CMS API",
			Detail:     err.Error(),
			Suggestion: "Check api.baseurl and your network connection",
			ExitCode:   output.ExitAPIError,
			Err:        err,
		}
	case errors.Is(err, apphttp.ErrServer), errors.Is(err, apphttp.ErrBadRequest):
		return &output.CLIError{Summary: "The CMS API rejected the request", Detail: err.Error(), ExitCode: output.ExitAPIError, Err: err}
	default:
		return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitGeneral, Err: err}
	}
}
