package httpapi

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errWildcardOrigin      = errors.New("cors: wildcard origin not allowed when credentials are enabled")
	errEmptyAllowedOrigins = errors.New("cors: no explicit origins provided")
	errInvalidOrigin       = errors.New("cors: invalid origin format")
)

// ConfigureCORS enables cross-origin requests for the supplied origins. The
// wildcard is rejected; the front end must be named explicitly.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]struct{}, len(allowedOrigins))
	accepted := make([]string, 0, len(allowedOrigins))
	for _, candidate := range allowedOrigins {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		normalized, normalizeErr := ValidateOrigin(candidate)
		if normalizeErr != nil {
			return nil, normalizeErr
		}
		if _, duplicate := seen[normalized]; duplicate {
			continue
		}
		seen[normalized] = struct{}{}
		accepted = append(accepted, normalized)
		if strings.HasPrefix(normalized, "http://") && !isDevelopmentHost(normalized) {
			logger.Warn("unsafe cors origin configured",
				zap.String("code", "cors.origin.unsafe"),
				zap.String("origin", normalized))
		}
	}
	if len(accepted) == 0 {
		return nil, errEmptyAllowedOrigins
	}
	sort.Strings(accepted)

	return cors.New(cors.Config{
		AllowOrigins:     accepted,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}), nil
}

// ValidateOrigin normalizes one origin to scheme://host, rejecting wildcards,
// unsupported schemes, and anything carrying a path, query, or fragment. The
// handoff target origin passes through here at startup.
func ValidateOrigin(origin string) (string, error) {
	trimmed := strings.TrimSpace(origin)
	switch {
	case trimmed == "":
		return "", errEmptyAllowedOrigins
	case trimmed == "*":
		return "", errWildcardOrigin
	}

	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", errInvalidOrigin, trimmed)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "https" && scheme != "http" {
		return "", fmt.Errorf("%w: %s uses unsupported scheme", errInvalidOrigin, trimmed)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return "", fmt.Errorf("%w: %s contains path segment", errInvalidOrigin, trimmed)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: %s contains query or fragment", errInvalidOrigin, trimmed)
	}
	return scheme + "://" + parsed.Host, nil
}

func isDevelopmentHost(normalizedOrigin string) bool {
	parsed, parseErr := url.Parse(normalizedOrigin)
	if parseErr != nil {
		return false
	}
	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1"
}
