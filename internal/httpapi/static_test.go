package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	webassets "github.com/tyemirov/idbridge/web"
)

func TestServeEmbeddedStatic(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/client.js", func(contextGin *gin.Context) {
		ServeEmbeddedStatic(contextGin, webassets.FS, "auth-client.js", "application/javascript; charset=utf-8")
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/client.js", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); !strings.Contains(contentType, "javascript") {
		t.Fatalf("unexpected content type %q", contentType)
	}

	missRouter := gin.New()
	missRouter.GET("/missing.js", func(contextGin *gin.Context) {
		ServeEmbeddedStatic(contextGin, webassets.FS, "missing.js", "application/javascript; charset=utf-8")
	})
	missRecorder := httptest.NewRecorder()
	missRouter.ServeHTTP(missRecorder, httptest.NewRequest(http.MethodGet, "/missing.js", nil))
	if missRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing asset, got %d", missRecorder.Code)
	}
}

func TestServeDemoConfig(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/demo/config.js", func(contextGin *gin.Context) {
		ServeDemoConfig(contextGin, DemoConfig{GoogleClientID: "client-id"})
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/demo/config.js", nil)
	request.Host = "auth.example"
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, `"googleClientId":"client-id"`) {
		t.Fatalf("expected client id in config payload, got %s", body)
	}
	if !strings.Contains(body, "__IDBRIDGE_DEMO_CONFIG") {
		t.Fatalf("expected config global assignment, got %s", body)
	}
}

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.example"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.OPTIONS("/auth/onetap", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/auth/onetap", nil)
	request.Header.Set("Origin", "https://app.example")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "https://app.example" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
}

func TestConfigureCORSRejectsWildcard(t *testing.T) {
	t.Parallel()

	if _, err := ConfigureCORS(nil, []string{"*"}); err == nil {
		t.Fatalf("expected error for wildcard origin")
	}
	if _, err := ConfigureCORS(nil, nil); err == nil {
		t.Fatalf("expected error for empty origin list")
	}
}

func TestValidateOrigin(t *testing.T) {
	t.Parallel()

	normalized, err := ValidateOrigin("https://app.example/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized != "https://app.example" {
		t.Fatalf("expected normalized origin, got %q", normalized)
	}

	if _, err := ValidateOrigin("*"); err == nil {
		t.Fatalf("expected error for wildcard origin")
	}
	if _, err := ValidateOrigin("ftp://app.example"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}
