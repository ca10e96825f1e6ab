package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openshelf/librarium/internal/auth"
	"github.com/openshelf/librarium/internal/catalog"
	"github.com/openshelf/librarium/internal/config"
	"github.com/openshelf/librarium/internal/database"
	"github.com/openshelf/librarium/internal/logging"
	"github.com/openshelf/librarium/internal/server"
	"github.com/openshelf/librarium/internal/session"
	"github.com/openshelf/librarium/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "librarium-api",
		Short: "Librarium catalog backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("environment", defaults.GetString("environment"), "Runtime environment (development, production)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Int("session-ttl-hours", defaults.GetInt("session.ttl_hours"), "Session lifetime in hours")
	cmd.PersistentFlags().String("github-client-id", defaults.GetString("github.client_id"), "GitHub OAuth client ID")
	cmd.PersistentFlags().String("github-callback-url", defaults.GetString("github.callback_url"), "GitHub OAuth callback URL")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "environment", "environment")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.ttl_hours", "session-ttl-hours")
	bindFlag(cmd, "github.client_id", "github-client-id")
	bindFlag(cmd, "github.callback_url", "github-callback-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, !appConfig.IsProduction())
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	userRepo, err := users.NewRepository(users.RepositoryConfig{Database: db})
	if err != nil {
		return err
	}

	sessionStore, err := session.NewGormStore(db)
	if err != nil {
		return err
	}
	sessionManager, err := session.NewManager(session.ManagerConfig{
		Store:  sessionStore,
		TTL:    appConfig.SessionTTL,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceConfig{
		Repository: userRepo,
		Sessions:   sessionManager,
		Hasher:     auth.NewHasher(appConfig.BcryptCost),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	resolver, err := auth.NewResolver(auth.ResolverConfig{
		Repository: userRepo,
		Sessions:   sessionManager,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	githubProvider, err := auth.NewGitHubProvider(auth.GitHubConfig{
		ClientID:     appConfig.GitHubClientID,
		ClientSecret: appConfig.GitHubClientSecret,
		CallbackURL:  appConfig.GitHubCallbackURL,
	})
	if err != nil {
		return err
	}

	stateSigner, err := auth.NewStateSigner(auth.StateSignerConfig{
		SigningSecret: []byte(appConfig.SessionSecret),
	})
	if err != nil {
		return err
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: catalog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	cookieSameSite := http.SameSiteLaxMode
	if appConfig.IsProduction() {
		cookieSameSite = http.SameSiteNoneMode
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Auth:     authService,
		Resolver: resolver,
		GitHub:   githubProvider,
		State:    stateSigner,
		Sessions: sessionManager,
		Catalog:  catalogService,
		Users:    userRepo,
		Cookie: server.CookieConfig{
			Name:     appConfig.SessionCookieName,
			TTL:      appConfig.SessionTTL,
			Secure:   appConfig.IsProduction(),
			SameSite: cookieSameSite,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve already treats expired sessions as absent; the sweep keeps
	// the table from accumulating dead rows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-signalCtx.Done():
				return
			case <-ticker.C:
				if err := sessionStore.DeleteExpired(signalCtx, time.Now().UTC()); err != nil {
					logger.Warn("expired session sweep failed", zap.Error(err))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
