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

	"salesms/backend/internal/cache"
	"salesms/backend/internal/catalog"
	"salesms/backend/internal/config"
	"salesms/backend/internal/httpapi"
	"salesms/backend/internal/ingest"
	"salesms/backend/internal/logging"
	"salesms/backend/internal/service"
	"salesms/backend/internal/store"
	"salesms/backend/internal/store/memory"
	pgstore "salesms/backend/internal/store/postgres"
	"salesms/backend/internal/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "salesms",
	Short:         "Retail sales query service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a sales CSV export into the configured store",
	RunE:  runImport,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file; environment variables override it")
	importCmd.Flags().String("file", "", "CSV file to import (defaults to DATA_CSV)")
	rootCmd.AddCommand(serveCmd, importCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn().Err(err).Msg("close error")
			}
		}
	}()

	repo, closeRepo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, closeRepo)

	shared := cache.Store(cache.Noop{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "salesms:")
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, caching disabled")
			_ = redisCache.Close()
		} else {
			shared = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis")
		}
	}

	filters := catalog.New(repo, shared, cfg.CatalogTTL(), logger)
	loader := ingest.NewLoader(repo, ingest.NewGate(), cfg.ImportBatchSize, logger)
	svc := service.New(repo, filters, loader, service.Options{
		Cache:        shared,
		CacheTTL:     cfg.SalesCacheTTL(),
		ReadyTimeout: cfg.ReadyTimeout(),
		ImportFile:   cfg.DataCSV,
		Logger:       logger,
	})

	if cfg.ImportOnStart {
		go func() {
			if err := loader.Bootstrap(ctx, cfg.DataCSV); err != nil {
				logger.Error().Err(err).Msg("initial load failed")
			}
		}()
	} else {
		loader.Gate().MarkReady()
	}

	var auth *httpapi.AuthManager
	if cfg.AdminEnabled() {
		auth = httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.AdminUsername, cfg.AdminPassword)
	} else {
		logger.Info().Msg("admin routes disabled")
	}

	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.ReadyTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("sales backend listening")
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
		logger.Warn().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.DataCSV
	}
	if path == "" {
		return errors.New("no CSV given: pass --file or set DATA_CSV")
	}
	if cfg.StoreDriver() == config.DriverMemory {
		return errors.New("import needs DATABASE_URL or SQLITE_PATH; the in-memory store does not persist")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	loader := ingest.NewLoader(repo, nil, cfg.ImportBatchSize, logger)
	status, err := loader.ImportFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %s: %d rows, %d inserted, %d skipped\n",
		path, status.Rows, status.Inserted, status.Skipped)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver() != config.DriverPostgres {
		return errors.New("migrate requires DATABASE_URL")
	}
	pg, err := pgstore.New(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.Migrate(); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

// openStore picks the backend from config. A configured database that cannot
// be reached is fatal; there is no silent fallback to memory.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Repository, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.StoreDriver() {
	case config.DriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pg, err := pgstore.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		logger.Info().Msg("repository: postgres")
		return pg, pg.Close, nil
	case config.DriverSQLite:
		db, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("repository: sqlite")
		return db, db.Close, nil
	default:
		if cfg.DataCSV == "" {
			logger.Info().Msg("repository: in-memory demo data")
			return memory.NewSeeded(), noClose, nil
		}
		logger.Info().Msg("repository: in-memory")
		return memory.New(), noClose, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if !cfg.AdminEnabled() {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	if err := validatePasswordStrength(cfg.AdminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength rejects passwords that are one repeated character,
// a keyboard run, or on a known-weak list. Bcrypt hashes are accepted as is.
func validatePasswordStrength(password string) error {
	if len(password) == 60 && password[0] == '$' && password[3] == '$' {
		return nil
	}

	known := map[string]bool{
		"password": true, "password1": true, "12345678": true, "123456789": true,
		"admin123": true, "administrator": true, "changeme": true, "qwertyuiop": true,
		"letmein1": true, "iloveyou": true, "abcdefgh": true,
	}
	if known[password] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("repeated-character password not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}

	return nil
}
