package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bazar/backend/internal/cache"
	"bazar/backend/internal/config"
	"bazar/backend/internal/httpapi"
	"bazar/backend/internal/logger"
	"bazar/backend/internal/seed"
	"bazar/backend/internal/service"
	"bazar/backend/internal/store"
	"bazar/backend/internal/store/memory"
	pgstore "bazar/backend/internal/store/postgres"
)

var errDatabaseRequired = errors.New("DATABASE_URL is required for this command")

type app struct {
	cfg config.Config
	log zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bazar: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "bazar",
		Short:         "Bazar commercial backend",
		Long:          "Bazar manages suppliers, clients, products, inventory and invoices over a REST API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the postgres schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.migrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the admin account and demo data when the database is empty",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.seed(cmd.Context(), cmd)
			},
		},
		&cobra.Command{
			Use:   "sweep-overdue",
			Short: "Mark sent invoices past their due date as overdue",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.sweepOverdue(cmd.Context(), cmd)
			},
		},
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stdout); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	a.cfg = cfg
	a.log = logger.WithComponent("main")
	return nil
}

func (a *app) serve(ctx context.Context) error {
	if err := validateSecurityConfig(a.cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	ctx, stop := signal.NotifyContext(orBackground(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closers, err := a.openRepository(startCtx, false)
	if err != nil {
		return err
	}
	defer runClosers(a.log, closers)

	dashboardCache, closeCache := a.openCache(startCtx)
	if closeCache != nil {
		defer runClosers(a.log, []func() error{closeCache})
	}

	svc := a.newService(repo, dashboardCache)
	if _, ok := repo.(*memory.Store); ok && a.cfg.SeedAdminPassword != "" {
		result, err := seed.Run(startCtx, repo, svc, a.cfg.SeedAdminPassword)
		if err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
		a.log.Info().Int("products", result.Products).Msg("memory store seeded")
	}

	auth := httpapi.NewAuthManager(repo, httpapi.AuthOptions{
		Secret:       a.cfg.AuthSecret,
		TokenTTL:     a.cfg.AccessTokenTTL,
		MaxAttempts:  a.cfg.LoginMaxAttempts,
		LockDuration: a.cfg.LoginLockDuration,
	})
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: a.cfg.AllowedOrigin,
		Production:    a.cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Address()).Str("env", a.cfg.AppEnv).Msg("bazar backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("shutdown error")
	}
	a.log.Info().Msg("server stopped")
	return nil
}

func (a *app) migrate(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return errDatabaseRequired
	}
	pg, err := pgstore.New(orBackground(ctx), a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer runClosers(a.log, []func() error{pg.Close})

	if err := pg.Migrate(orBackground(ctx)); err != nil {
		return err
	}
	a.log.Info().Msg("schema applied")
	return nil
}

func (a *app) seed(ctx context.Context, cmd *cobra.Command) error {
	ctx = orBackground(ctx)
	repo, closers, err := a.openRepository(ctx, true)
	if err != nil {
		return err
	}
	defer runClosers(a.log, closers)

	result, err := seed.Run(ctx, repo, a.newService(repo, nil), a.cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "admin created: %t, suppliers: %d, clients: %d, products: %d\n",
		result.AdminCreated, result.Suppliers, result.Clients, result.Products)
	return nil
}

func (a *app) sweepOverdue(ctx context.Context, cmd *cobra.Command) error {
	ctx = orBackground(ctx)
	repo, closers, err := a.openRepository(ctx, true)
	if err != nil {
		return err
	}
	defer runClosers(a.log, closers)

	dashboardCache, closeCache := a.openCache(ctx)
	if closeCache != nil {
		defer runClosers(a.log, []func() error{closeCache})
	}

	swept, err := a.newService(repo, dashboardCache).SweepOverdue(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "invoices marked overdue: %d\n", swept)
	return nil
}

// openRepository connects to postgres when DATABASE_URL is set. Without it the
// server falls back to memory; one-shot commands refuse to run.
func (a *app) openRepository(ctx context.Context, requireDatabase bool) (store.Repository, []func() error, error) {
	if a.cfg.DatabaseURL == "" {
		if requireDatabase {
			return nil, nil, errDatabaseRequired
		}
		a.log.Warn().Msg("DATABASE_URL not set, using in-memory repository")
		return memory.New(), nil, nil
	}
	pg, err := pgstore.New(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
	}
	a.log.Info().Msg("repository: postgres")
	return pg, []func() error{pg.Close}, nil
}

// openCache returns a Redis-backed dashboard cache, or nil when Redis is not
// configured or unreachable.
func (a *app) openCache(ctx context.Context) (cache.DashboardCache, func() error) {
	if a.cfg.RedisAddr == "" {
		return nil, nil
	}
	redisCache := cache.NewRedisDashboardCache(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		a.log.Warn().Err(err).Msg("redis unavailable, dashboard cache disabled")
		_ = redisCache.Close()
		return nil, nil
	}
	a.log.Info().Str("addr", a.cfg.RedisAddr).Msg("cache: redis")
	return redisCache, redisCache.Close
}

func (a *app) newService(repo store.Repository, dashboardCache cache.DashboardCache) *service.Service {
	taxRate := a.cfg.DefaultTaxRate
	return service.New(repo, service.Options{
		InvoiceDueDays:    a.cfg.InvoiceDueDays,
		DefaultTaxRate:    &taxRate,
		DashboardCacheTTL: a.cfg.DashboardCacheTTL,
		Cache:             dashboardCache,
	})
}

func validateSecurityConfig(cfg config.Config) error {
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	if cfg.IsProduction() && cfg.AllowedOrigin == "*" {
		return errors.New("ALLOWED_ORIGIN must not be * in production")
	}
	return nil
}

func runClosers(log zerolog.Logger, closers []func() error) {
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
