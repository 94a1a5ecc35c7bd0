package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/idbridge/internal/identity"
	"github.com/tyemirov/idbridge/internal/idp"
)

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func setRequiredConfig() {
	viper.Set("google_client_id", "client")
	viper.Set("google_client_secret", "secret")
	viper.Set("jwt_signing_key", "signing-secret")
	viper.Set("frontend_origin", "https://app.example")
	viper.Set("session_ttl", time.Minute)
}

func TestLoadServerConfigRequiresGoogleClientID(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("google_client_id", "")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when google_client_id is missing")
	}
	expectedMessage := "config.missing_google_client_id: google_client_id must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresGoogleClientSecret(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("google_client_secret", "")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when google_client_secret is missing")
	}
	expectedMessage := "config.missing_google_client_secret: google_client_secret must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresSigningKey(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("jwt_signing_key", "")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected configuration error when jwt_signing_key missing")
	}
	expectedMessage := "config.missing_jwt_signing_key: jwt_signing_key must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRequiresFrontendOrigin(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("frontend_origin", "")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when frontend_origin is missing")
	}
	expectedMessage := "config.missing_frontend_origin: frontend_origin must be provided"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRejectsWildcardFrontendOrigin(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("frontend_origin", "*")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for wildcard frontend_origin")
	}
}

func TestLoadServerConfigRequiresPositiveSessionTTL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("session_ttl", 0)

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error when session_ttl is non-positive")
	}

	expectedMessage := "config.invalid_session_ttl: session_ttl must be greater than zero"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigRejectsUnknownStoreDriver(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("profile_store_driver", "bolt")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatalf("expected error for unknown profile_store_driver")
	}

	expectedMessage := "config.invalid_profile_store_driver: profile_store_driver must be auto, gorm, or pgx"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestServerConfigCallbackURL(t *testing.T) {
	config := serverConfig{BaseURL: "https://auth.example/"}
	if got := config.CallbackURL(); got != "https://auth.example/auth/google/callback" {
		t.Fatalf("unexpected callback URL %q", got)
	}
}

func TestRunServerVerifierInitFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreVerifier := withVerifierBuilderStub(func(ctx context.Context, config serverConfig) (idp.Verifier, error) {
		return nil, errors.New("verifier_fail")
	})
	defer restoreVerifier()

	viper.Set("listen_addr", ":0")
	setRequiredConfig()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err == nil || err.Error() != "config.identity_verifier_init: verifier_fail" {
		t.Fatalf("expected verifier init error, got %v", err)
	}
}

func TestRunServerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreVerifier := withVerifierBuilderStub(func(ctx context.Context, config serverConfig) (idp.Verifier, error) {
		return noopVerifier{}, nil
	})
	defer restoreVerifier()

	viper.Set("listen_addr", ":0")
	setRequiredConfig()
	viper.Set("database_url", "sqlite://file::memory:?cache=shared")
	viper.Set("enable_cors", true)

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerInMemoryStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreVerifier := withVerifierBuilderStub(func(ctx context.Context, config serverConfig) (idp.Verifier, error) {
		return noopVerifier{}, nil
	})
	defer restoreVerifier()

	viper.Set("listen_addr", ":0")
	setRequiredConfig()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory store, got %v", err)
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}

type noopVerifier struct{}

func (noopVerifier) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (noopVerifier) VerifyAuthorizationCode(ctx context.Context, code string) (*identity.CodeProfile, error) {
	return &identity.CodeProfile{}, nil
}

func (noopVerifier) VerifyOneTapToken(ctx context.Context, rawIDToken string) (*identity.OneTapPayload, error) {
	return &identity.OneTapPayload{}, nil
}

func withVerifierBuilderStub(stub func(ctx context.Context, config serverConfig) (idp.Verifier, error)) func() {
	previous := buildIdentityVerifier
	buildIdentityVerifier = stub
	return func() {
		buildIdentityVerifier = previous
	}
}
