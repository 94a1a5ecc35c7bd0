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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/idbridge/internal/httpapi"
	"github.com/tyemirov/idbridge/internal/idp"
	"github.com/tyemirov/idbridge/internal/profile"
	"github.com/tyemirov/idbridge/internal/profilepg"
	"github.com/tyemirov/idbridge/pkg/sessiontoken"
	webassets "github.com/tyemirov/idbridge/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildIdentityVerifier = func(ctx context.Context, config serverConfig) (idp.Verifier, error) {
	return idp.NewGoogleVerifier(ctx, config.GoogleClientID, config.GoogleClientSecret, config.CallbackURL(), config.VerifierTimeout)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "idbridge",
		Short:   "Google sign-in bridge: verifies identity assertions, reconciles a profile store, and hands credentials to a front end",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("base_url", "http://localhost:8080", "Public base URL of this service (used for the OAuth callback)")
	rootCmd.Flags().String("frontend_origin", "", "Origin of the front end receiving the credential handoff")
	rootCmd.Flags().String("google_client_id", "", "Google OAuth Client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google OAuth Client Secret")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for session credentials")
	rootCmd.Flags().Duration("session_ttl", 24*time.Hour, "Session credential lifetime")
	rootCmd.Flags().Duration("state_ttl", 5*time.Minute, "One-time state token lifetime for the redirect flow")
	rootCmd.Flags().Duration("verifier_timeout", 10*time.Second, "Timeout for identity provider calls")
	rootCmd.Flags().Duration("store_timeout", 5*time.Second, "Timeout for profile store calls")
	rootCmd.Flags().String("database_url", "", "Profile store URL (postgres:// or sqlite://; empty keeps profiles in memory)")
	rootCmd.Flags().String("profile_store_driver", "auto", "Profile store driver: auto, gorm, or pgx")
	rootCmd.Flags().Bool("enable_cors", true, "Enable CORS for the front-end origin")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Additional allowed origins (frontend_origin is always included)")

	for _, name := range []string{
		"listen_addr", "base_url", "frontend_origin",
		"google_client_id", "google_client_secret", "jwt_signing_key",
		"session_ttl", "state_ttl", "verifier_timeout", "store_timeout",
		"database_url", "profile_store_driver", "enable_cors", "cors_allowed_origins",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	tokenIssuerName = "idbridge"

	configCodeMissingGoogleClientID     = "config.missing_google_client_id"
	configCodeMissingGoogleClientSecret = "config.missing_google_client_secret"
	configCodeMissingJWTSigningKey      = "config.missing_jwt_signing_key"
	configCodeMissingFrontendOrigin     = "config.missing_frontend_origin"
	configCodeInvalidFrontendOrigin     = "config.invalid_frontend_origin"
	configCodeInvalidSessionTTL         = "config.invalid_session_ttl"
	configCodeInvalidStoreDriver        = "config.invalid_profile_store_driver"
	configCodeUninitializedServerConf   = "config.uninitialized_server_config"
	configCodeVerifierInit              = "config.identity_verifier_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

type serverConfig struct {
	ListenAddr         string
	BaseURL            string
	FrontendOrigin     string
	GoogleClientID     string
	GoogleClientSecret string
	JWTSigningKey      []byte
	SessionTTL         time.Duration
	StateTTL           time.Duration
	VerifierTimeout    time.Duration
	StoreTimeout       time.Duration
	DatabaseURL        string
	StoreDriver        string
	EnableCORS         bool
	CORSOrigins        []string
}

// CallbackURL is the redirect URL registered with the OAuth client.
func (config serverConfig) CallbackURL() string {
	return strings.TrimRight(config.BaseURL, "/") + "/auth/google/callback"
}

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	config, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, config))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadServerConfig() (serverConfig, error) {
	googleClientID := viper.GetString("google_client_id")
	if googleClientID == "" {
		return serverConfig{}, configError(configCodeMissingGoogleClientID, "google_client_id must be provided")
	}

	googleClientSecret := viper.GetString("google_client_secret")
	if googleClientSecret == "" {
		return serverConfig{}, configError(configCodeMissingGoogleClientSecret, "google_client_secret must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return serverConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	frontendOrigin := viper.GetString("frontend_origin")
	if frontendOrigin == "" {
		return serverConfig{}, configError(configCodeMissingFrontendOrigin, "frontend_origin must be provided")
	}
	normalizedOrigin, originErr := httpapi.ValidateOrigin(frontendOrigin)
	if originErr != nil {
		return serverConfig{}, configError(configCodeInvalidFrontendOrigin, originErr.Error())
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return serverConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	storeDriver := strings.ToLower(viper.GetString("profile_store_driver"))
	switch storeDriver {
	case "", "auto":
		storeDriver = "auto"
	case "gorm", "pgx":
	default:
		return serverConfig{}, configError(configCodeInvalidStoreDriver, "profile_store_driver must be auto, gorm, or pgx")
	}

	stateTTL := 5 * time.Minute
	if configuredStateTTL := viper.GetDuration("state_ttl"); configuredStateTTL > 0 {
		stateTTL = configuredStateTTL
	}

	corsOrigins := append([]string{normalizedOrigin}, viper.GetStringSlice("cors_allowed_origins")...)

	return serverConfig{
		ListenAddr:         viper.GetString("listen_addr"),
		BaseURL:            viper.GetString("base_url"),
		FrontendOrigin:     normalizedOrigin,
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		JWTSigningKey:      []byte(jwtSigningKey),
		SessionTTL:         sessionTTL,
		StateTTL:           stateTTL,
		VerifierTimeout:    viper.GetDuration("verifier_timeout"),
		StoreTimeout:       viper.GetDuration("store_timeout"),
		DatabaseURL:        viper.GetString("database_url"),
		StoreDriver:        storeDriver,
		EnableCORS:         viper.GetBool("enable_cors"),
		CORSOrigins:        corsOrigins,
	}, nil
}

func buildProfileStore(ctx context.Context, config serverConfig, logger *zap.Logger) (profile.Store, error) {
	if strings.TrimSpace(config.DatabaseURL) == "" {
		logger.Info("using in-memory profile store")
		return profile.NewMemoryStore(), nil
	}

	usePgx := config.StoreDriver == "pgx" ||
		(config.StoreDriver == "auto" && strings.HasPrefix(strings.ToLower(config.DatabaseURL), "postgres"))
	if usePgx {
		pool, poolErr := profilepg.BuildPool(ctx, config.DatabaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		store, storeErr := profilepg.NewStore(ctx, pool)
		if storeErr != nil {
			return nil, storeErr
		}
		logger.Info("using pgx profile store with atomic merge-upsert")
		return store, nil
	}

	store, storeErr := profile.NewDatabaseStore(ctx, config.DatabaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using gorm profile store", zap.String("driver", store.Driver()))
	return store, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	if commandContext == nil {
		commandContext = context.Background()
	}
	config, ok := commandContext.Value(serverConfigContextKey).(serverConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if config.EnableCORS {
		corsMiddleware, corsErr := httpapi.ConfigureCORS(logger, config.CORSOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/static/auth-client.js", func(contextGin *gin.Context) {
		httpapi.ServeEmbeddedStatic(contextGin, webassets.FS, "auth-client.js", "application/javascript; charset=utf-8")
	})

	router.GET("/demo", func(contextGin *gin.Context) {
		httpapi.ServeEmbeddedStatic(contextGin, webassets.FS, "demo.html", "text/html; charset=utf-8")
	})

	router.GET("/demo/config.js", func(contextGin *gin.Context) {
		httpapi.ServeDemoConfig(contextGin, httpapi.DemoConfig{
			GoogleClientID: config.GoogleClientID,
			BaseURL:        config.BaseURL,
		})
	})

	store, storeErr := buildProfileStore(commandContext, config, logger)
	if storeErr != nil {
		return storeErr
	}

	verifier, verifierErr := buildIdentityVerifier(commandContext, config)
	if verifierErr != nil {
		return fmt.Errorf("%s: %w", configCodeVerifierInit, verifierErr)
	}

	tokenConfig := sessiontoken.Config{
		SigningKey: config.JWTSigningKey,
		Issuer:     tokenIssuerName,
		Lifetime:   config.SessionTTL,
		Clock:      sessiontoken.NewSystemClock(),
	}
	issuer, issuerErr := sessiontoken.NewIssuer(tokenConfig)
	if issuerErr != nil {
		return issuerErr
	}
	tokenVerifier, tokenVerifierErr := sessiontoken.NewVerifier(tokenConfig)
	if tokenVerifierErr != nil {
		return tokenVerifierErr
	}

	httpapi.MountAuthRoutes(router, httpapi.Dependencies{
		Verifier:       verifier,
		Reconciler:     profile.NewReconciler(store, config.StoreTimeout, logger),
		Issuer:         issuer,
		TokenVerifier:  tokenVerifier,
		States:         httpapi.NewMemoryStateStore(config.StateTTL),
		Metrics:        httpapi.NewCounterMetrics(),
		Logger:         logger,
		FrontendOrigin: config.FrontendOrigin,
	})

	server := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if shutdownErr := server.Shutdown(graceCtx); shutdownErr != nil {
			logger.Error("server shutdown error", zap.Error(shutdownErr))
		}
	}()

	logger.Info("listening", zap.String("addr", config.ListenAddr))
	if serveErr := serveHTTP(server); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}
