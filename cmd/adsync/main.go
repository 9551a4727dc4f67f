// adsync pulls Meta advertising data (campaigns, ad sets, ads, creatives,
// insights, billing, page posts) into PostgreSQL on a schedule-friendly CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/config"
	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/logger"
	"github.com/ajitpratap0/adsync/pkg/metrics"
	"github.com/ajitpratap0/adsync/pkg/store"
	"github.com/ajitpratap0/adsync/pkg/sync"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	cfgFile    string
	flagMode   string
	flagWindow int
	flagDryRun bool
	flagAccts  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "adsync",
		Short:        "Meta ads data sync",
		Long:         "adsync pulls Meta advertising entities, insights, billing, and page posts into PostgreSQL.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&flagMode, "mode", "", "sync mode: full, incremental, or empty for auto")
	root.PersistentFlags().IntVar(&flagWindow, "window-days", 0, "incremental lookback window in days")
	root.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "use the in-memory store instead of PostgreSQL")
	root.PersistentFlags().StringVar(&flagAccts, "accounts", "", "comma-separated ad account ids (default: all registered)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newImportPagesCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("adsync %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		},
	}
}

// app bundles everything a command run needs.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	repo   store.Repository
	cps    store.CheckpointStore
	lister store.ScopeLister
	close  func()
}

// setup loads configuration, initializes logging and storage, and starts the
// metrics endpoint. Flags override file values; the file may reference
// environment variables loaded from .env.
func setup(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg := config.Default()
	if cfgFile != "" {
		if err := config.Load(cfgFile, cfg); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("META_ACCESS_TOKEN"); v != "" && cfg.Graph.AccessToken == "" {
		cfg.Graph.AccessToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Database.DSN == "" {
		cfg.Database.DSN = v
	}
	if flagMode != "" {
		cfg.Sync.Mode = flagMode
	}
	if flagWindow > 0 {
		cfg.Sync.WindowDays = flagWindow
	}
	if flagDryRun {
		cfg.Sync.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Development: cfg.Observability.Development,
		Encoding:    encoding(cfg.Observability.Development),
	}); err != nil {
		return nil, err
	}
	log := logger.Get()

	if cfg.Observability.EnableMetrics {
		go func() {
			if err := metrics.Serve(cfg.Observability.MetricsAddr); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	a := &app{cfg: cfg, log: log, close: func() {}}

	if cfg.Sync.DryRun {
		mem := store.NewMemory()
		a.repo, a.cps, a.lister = mem, mem, mem
		log.Info("dry run: using in-memory store")
		return a, nil
	}

	pg, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:            cfg.Database.DSN,
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	}, log)
	if err != nil {
		return nil, err
	}
	a.repo, a.cps, a.lister = pg, pg, pg
	a.close = pg.Close
	return a, nil
}

func encoding(dev bool) string {
	if dev {
		return "console"
	}
	return "json"
}

// engine builds a per-worker engine; graph clients are never shared between
// workers.
func (a *app) engine() *sync.Engine {
	return a.engineWithToken("")
}

// engineWithToken builds an engine whose client authenticates with the given
// token; empty falls back to the configured user token. Page jobs prefer the
// page-scoped token from the registry.
func (a *app) engineWithToken(token string) *sync.Engine {
	if token == "" {
		token = a.cfg.Graph.AccessToken
	}
	return &sync.Engine{
		Client: graph.NewClient(graph.Config{
			BaseURL:         a.cfg.Graph.BaseURL,
			Version:         a.cfg.Graph.Version,
			AccessToken:     token,
			Timeout:         a.cfg.Graph.Timeout,
			MaxRetries:      a.cfg.Graph.MaxRetries,
			RetryDelay:      a.cfg.Graph.RetryDelay,
			RateLimitPerSec: a.cfg.Graph.RateLimitPerSec,
		}, a.log),
		Repo:        a.repo,
		Checkpoints: a.cps,
		Logger:      a.log,
	}
}

func (a *app) options() sync.Options {
	return sync.Options{
		Mode:       sync.Mode(a.cfg.Sync.Mode),
		WindowDays: a.cfg.Sync.WindowDays,
		PageLimit:  a.cfg.Sync.PageLimit,
	}
}

// accountScopes resolves the ad account scopes to run: the --accounts flag
// when given, otherwise every registered account in portfolio order.
func (a *app) accountScopes(ctx context.Context) ([]sync.Scope, error) {
	if flagAccts != "" {
		var scopes []sync.Scope
		for _, part := range strings.Split(flagAccts, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid account id %q", part)
			}
			scopes = append(scopes, sync.AccountScope(store.AccountRef{AdAccountID: id}))
		}
		return scopes, nil
	}

	refs, err := a.lister.ListAdAccounts(ctx)
	if err != nil {
		return nil, err
	}
	scopes := make([]sync.Scope, 0, len(refs))
	for _, ref := range refs {
		scopes = append(scopes, sync.AccountScope(ref))
	}
	return scopes, nil
}

func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run sync jobs",
	}
	cmd.AddCommand(newSyncEntitiesCmd())
	cmd.AddCommand(newSyncInsightsCmd())
	cmd.AddCommand(newSyncBillingCmd())
	cmd.AddCommand(newSyncPostsCmd())
	return cmd
}

func newSyncEntitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "Sync campaigns, ad sets, ads, and creatives for every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			scopes, err := a.accountScopes(ctx)
			if err != nil {
				return err
			}

			// Order matters inside one account: ads reference ad sets
			// reference campaigns. Accounts run in parallel, the chain
			// within each account runs sequentially.
			chain := []sync.Entity{sync.Campaigns(), sync.AdSets(), sync.Ads(), sync.Creatives()}
			opts := a.options()

			_, summary := sync.RunAll(ctx, a.log, "entities", scopes, a.cfg.Sync.EntityWorkers,
				func(ctx context.Context, s sync.Scope) sync.Result {
					eng := a.engine()
					var total sync.Result
					for _, ent := range chain {
						total.Add(eng.Sync(ctx, ent, s, opts))
						if !total.OK() {
							break
						}
					}
					return total
				})

			return exitOnFailures(summary)
		},
	}
}

func newSyncInsightsCmd() *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Sync daily insight metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var levels []sync.Entity
			switch level {
			case "all":
				levels = []sync.Entity{sync.CampaignInsights(), sync.AdSetInsights(), sync.AdInsights()}
			case "campaign":
				levels = []sync.Entity{sync.CampaignInsights()}
			case "adset":
				levels = []sync.Entity{sync.AdSetInsights()}
			case "ad":
				levels = []sync.Entity{sync.AdInsights()}
			default:
				return fmt.Errorf("unknown insight level %q", level)
			}

			scopes, err := a.accountScopes(ctx)
			if err != nil {
				return err
			}
			opts := a.options()

			_, summary := sync.RunAll(ctx, a.log, "insights", scopes, a.cfg.Sync.InsightWorkers,
				func(ctx context.Context, s sync.Scope) sync.Result {
					eng := a.engine()
					var total sync.Result
					for _, ent := range levels {
						total.Add(eng.Sync(ctx, ent, s, opts))
					}
					return total
				})

			return exitOnFailures(summary)
		},
	}
	cmd.Flags().StringVar(&level, "level", "all", "insight level: all, campaign, adset, ad")
	return cmd
}

func newSyncBillingCmd() *cobra.Command {
	var dailySpendLimit bool
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Sync billing snapshots for every account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			scopes, err := a.accountScopes(ctx)
			if err != nil {
				return err
			}
			billingOpts := sync.BillingOptions{IncludeDailySpendLimit: dailySpendLimit}

			_, summary := sync.RunAll(ctx, a.log, "billing", scopes, a.cfg.Sync.EntityWorkers,
				func(ctx context.Context, s sync.Scope) sync.Result {
					return a.engine().SyncBilling(ctx, s, billingOpts)
				})

			return exitOnFailures(summary)
		},
	}
	cmd.Flags().BoolVar(&dailySpendLimit, "daily-spend-limit", false, "accounts expose the daily_spend_limit field")
	return cmd
}

func newSyncPostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "posts",
		Short: "Sync Facebook and Instagram posts for every registered page",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			refs, err := a.lister.ListPages(ctx)
			if err != nil {
				return err
			}
			scopes := make([]sync.Scope, 0, len(refs))
			for _, ref := range refs {
				scopes = append(scopes, sync.PageScope(ref))
			}
			opts := a.options()

			_, summary := sync.RunAll(ctx, a.log, "posts", scopes, a.cfg.Sync.EntityWorkers,
				func(ctx context.Context, s sync.Scope) sync.Result {
					eng := a.engineWithToken(s.Token)
					total := eng.Sync(ctx, sync.FacebookPosts(), s, opts)
					if s.IGUserID != 0 {
						total.Add(eng.Sync(ctx, sync.InstagramPosts(), s, opts))
					}
					return total
				})

			return exitOnFailures(summary)
		},
	}
}

func newImportCmd() *cobra.Command {
	var businessID, portfolioID int64
	cmd := &cobra.Command{
		Use:   "import-accounts",
		Short: "Discover and register the ad accounts of a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.engine().ImportAdAccounts(ctx, businessID, portfolioID)
			if !res.OK() {
				return fmt.Errorf("account import failed: %s", res.Error)
			}
			a.log.Info("import finished",
				zap.Int("saved", res.Saved),
				zap.Int("skipped", res.Skipped))
			return nil
		},
	}
	cmd.Flags().Int64Var(&businessID, "business-id", 0, "business id to walk")
	cmd.Flags().Int64Var(&portfolioID, "portfolio-id", 0, "portfolio the accounts register under")
	_ = cmd.MarkFlagRequired("business-id")
	_ = cmd.MarkFlagRequired("portfolio-id")
	return cmd
}

func newImportPagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-pages",
		Short: "Discover and register the pages the token manages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runContext()
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.engine().ImportPages(ctx)
			if !res.OK() {
				return fmt.Errorf("page import failed: %s", res.Error)
			}
			a.log.Info("import finished",
				zap.Int("saved", res.Saved),
				zap.Int("skipped", res.Skipped))
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config-init",
		Short: "Write a starter config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(out, config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "adsync.yaml", "output path")
	return cmd
}

// exitOnFailures maps the run summary to the process exit: any failed scope
// fails the command, after every scope has had its chance to run.
func exitOnFailures(summary sync.Summary) error {
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d scopes failed", summary.Failed, summary.OK+summary.Failed)
	}
	return nil
}
