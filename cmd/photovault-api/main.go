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

	"github.com/MarcoPoloResearchLab/photovault/internal/auth"
	"github.com/MarcoPoloResearchLab/photovault/internal/collections"
	"github.com/MarcoPoloResearchLab/photovault/internal/config"
	"github.com/MarcoPoloResearchLab/photovault/internal/database"
	"github.com/MarcoPoloResearchLab/photovault/internal/gallery"
	"github.com/MarcoPoloResearchLab/photovault/internal/logging"
	"github.com/MarcoPoloResearchLab/photovault/internal/media"
	"github.com/MarcoPoloResearchLab/photovault/internal/notecipher"
	"github.com/MarcoPoloResearchLab/photovault/internal/notes"
	"github.com/MarcoPoloResearchLab/photovault/internal/realtime"
	"github.com/MarcoPoloResearchLab/photovault/internal/server"
	"github.com/MarcoPoloResearchLab/photovault/internal/session"
	"github.com/MarcoPoloResearchLab/photovault/internal/users"
	"github.com/MarcoPoloResearchLab/photovault/internal/vault"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "photovault-api",
		Short: "Photovault gallery and notes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAccountsCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres connection string")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().Int("autolock-minutes", defaults.GetInt("autolock.timeout_minutes"), "Inactivity window before a session locks")
	cmd.PersistentFlags().String("whitelist", "", "Comma separated identifiers allowed to sign in")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "autolock.timeout_minutes", "autolock-minutes")
	bindFlag(cmd, "auth.whitelist", "whitelist")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

func newAccountsCommand() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage whitelisted accounts",
	}

	var (
		email       string
		password    string
		displayName string
	)
	setPasswordCmd := &cobra.Command{
		Use:   "set-password",
		Short: "Create a whitelisted account or replace its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setPassword(cmd.Context(), email, displayName, password)
		},
	}
	setPasswordCmd.Flags().StringVar(&email, "email", "", "Account email")
	setPasswordCmd.Flags().StringVar(&password, "password", "", "New password")
	setPasswordCmd.Flags().StringVar(&displayName, "display-name", "", "Display name shown after sign-in")
	_ = setPasswordCmd.MarkFlagRequired("email")
	_ = setPasswordCmd.MarkFlagRequired("password")

	accountsCmd.AddCommand(setPasswordCmd)
	return accountsCmd
}

func setPassword(ctx context.Context, email, displayName, password string) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	usersService, err := users.NewService(users.ServiceConfig{
		Database:  db,
		Whitelist: auth.NewGate(appConfig.Whitelist),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	account, err := usersService.SetPassword(ctx, email, displayName, password)
	if err != nil {
		return err
	}
	logger.Info("account password updated", zap.String("account_id", account.ID), zap.String("email", account.Email))
	return nil
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func initSentry(dsn string) (bool, error) {
	if dsn == "" {
		return false, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		AttachStacktrace: true,
	}); err != nil {
		return false, fmt.Errorf("sentry init: %w", err)
	}
	return true, nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	sentryEnabled, err := initSentry(appConfig.SentryDSN)
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer sentry.Flush(2 * time.Second)
	}

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	gate := auth.NewGate(appConfig.Whitelist)
	idProvider := vault.NewUUIDProvider()

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Whitelist:  gate,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     tokenIssuer,
		CookieName: appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	dispatcher := realtime.NewDispatcher()
	registry := session.NewRegistry(session.RegistryConfig{
		Window:     appConfig.AutoLockWindow,
		IDProvider: idProvider,
		Publisher:  dispatcher,
		Logger:     logger,
	})
	defer registry.Close()

	signIn, err := session.NewSignInService(session.SignInConfig{
		Whitelist:   gate,
		Credentials: usersService,
		Tokens:      tokenIssuer,
		Registry:    registry,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	cipher, err := notecipher.New(appConfig.EncryptionSecret)
	if err != nil {
		return err
	}

	mediaStore, err := media.NewS3Store(ctx, media.Config{
		Bucket:             appConfig.Media.Bucket,
		Region:             appConfig.Media.Region,
		Endpoint:           appConfig.Media.Endpoint,
		AccessKey:          appConfig.Media.AccessKey,
		SecretKey:          appConfig.Media.SecretKey,
		URLEndpoint:        appConfig.Media.URLEndpoint,
		Folder:             appConfig.Media.Folder,
		ThumbnailTransform: appConfig.Media.ThumbnailTransform,
		SignedURLTTL:       appConfig.Media.SignedURLTTL,
		IDProvider:         idProvider,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	galleryService, err := gallery.NewService(gallery.ServiceConfig{
		Database:   db,
		Cipher:     cipher,
		Media:      mediaStore,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	collectionsService, err := collections.NewService(collections.ServiceConfig{
		Database:   db,
		Media:      mediaStore,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Validator:      validator,
		SignIn:         signIn,
		Sessions:       registry,
		Whitelist:      gate,
		Media:          mediaStore,
		Gallery:        galleryService,
		Collections:    collectionsService,
		Notes:          notesService,
		Realtime:       dispatcher,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookies:  appConfig.SecureCookies,
		SignedURLTTL:   appConfig.Media.SignedURLTTL,
		EnableSentry:   sentryEnabled,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Duration("autolock_window", appConfig.AutoLockWindow),
			zap.Int("whitelist_size", len(appConfig.Whitelist)),
		)
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
