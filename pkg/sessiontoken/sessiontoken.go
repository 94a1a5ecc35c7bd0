// Package sessiontoken mints and verifies the portable session credential
// handed to the front end after a successful Google sign-in. Tokens are
// self-contained HS256 JWTs; verification is a pure function of the token
// and the signing key, with no store or network access.
package sessiontoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "auth_claims"

// DefaultLifetime is the credential lifetime when Config.Lifetime is zero.
const DefaultLifetime = 24 * time.Hour

// Sentinel errors exposed by the package.
var (
	ErrMissingSigningKey = errors.New("sessiontoken.missing_signing_key")
	ErrMissingIssuer     = errors.New("sessiontoken.missing_issuer")
	ErrMissingCredential = errors.New("sessiontoken.missing_credential")
	ErrInvalidCredential = errors.New("sessiontoken.invalid_credential")
	ErrEmptySubject      = errors.New("sessiontoken.empty_subject")
)

// ErrCredentialExpired narrows ErrInvalidCredential: an expired credential is
// invalid, so errors.Is against either sentinel matches.
var ErrCredentialExpired = fmt.Errorf("%w: expired", ErrInvalidCredential)

// Claims is the session payload embedded inside issued credentials.
type Claims struct {
	UserEmail       string `json:"user_email"`
	UserDisplayName string `json:"user_display_name"`
	UserPictureURL  string `json:"user_picture_url"`
	jwt.RegisteredClaims
}

// Config configures both the Issuer and the Verifier.
type Config struct {
	SigningKey []byte
	Issuer     string
	Lifetime   time.Duration
	Clock      Clock
}

func (configuration Config) validate() (Config, error) {
	if len(configuration.SigningKey) == 0 {
		return Config{}, fmt.Errorf("sessiontoken.config: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return Config{}, fmt.Errorf("sessiontoken.config: %w", ErrMissingIssuer)
	}
	if configuration.Lifetime <= 0 {
		configuration.Lifetime = DefaultLifetime
	}
	if configuration.Clock == nil {
		configuration.Clock = systemClock{}
	}
	return configuration, nil
}

// Issuer mints session credentials.
type Issuer struct {
	configuration Config
}

// NewIssuer constructs an Issuer after validating the configuration.
func NewIssuer(configuration Config) (*Issuer, error) {
	validated, err := configuration.validate()
	if err != nil {
		return nil, err
	}
	return &Issuer{configuration: validated}, nil
}

// Issue signs a credential for the given identity fields. Deterministic for
// a fixed clock, subject, and signing key; no side effects.
func (issuer *Issuer) Issue(subjectID string, email string, displayName string, pictureURL string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("sessiontoken.issue: %w", ErrEmptySubject)
	}
	issuedAt := issuer.configuration.Clock.Now().UTC()
	expiresAt := issuedAt.Add(issuer.configuration.Lifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserEmail:       email,
		UserDisplayName: displayName,
		UserPictureURL:  pictureURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer.configuration.Issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(issuer.configuration.SigningKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("sessiontoken.issue: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Verifier validates bearer credentials presented on subsequent requests.
type Verifier struct {
	configuration Config
}

// NewVerifier constructs a Verifier after validating the configuration.
func NewVerifier(configuration Config) (*Verifier, error) {
	validated, err := configuration.validate()
	if err != nil {
		return nil, err
	}
	return &Verifier{configuration: validated}, nil
}

// Verify parses and validates a bearer token string.
func (verifier *Verifier) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("sessiontoken.verify: %w", ErrMissingCredential)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return verifier.configuration.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return verifier.configuration.Clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("sessiontoken.verify: %w", ErrCredentialExpired)
		}
		return nil, fmt.Errorf("sessiontoken.verify: %w", ErrInvalidCredential)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("sessiontoken.verify: %w", ErrInvalidCredential)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("sessiontoken.verify: %w", ErrInvalidCredential)
	}
	if claims.Issuer != verifier.configuration.Issuer {
		return nil, fmt.Errorf("sessiontoken.verify: %w", ErrInvalidCredential)
	}
	return claims, nil
}

// VerifyRequest extracts the Authorization bearer token and validates it.
func (verifier *Verifier) VerifyRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("sessiontoken.verify_request: %w", ErrMissingCredential)
	}
	bearer, bearerErr := BearerFromHeader(request.Header.Get("Authorization"))
	if bearerErr != nil {
		return nil, bearerErr
	}
	return verifier.Verify(bearer)
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(headerValue string) (string, error) {
	trimmed := strings.TrimSpace(headerValue)
	if trimmed == "" {
		return "", fmt.Errorf("sessiontoken.bearer: %w", ErrMissingCredential)
	}
	const prefix = "Bearer "
	if len(trimmed) <= len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return "", fmt.Errorf("sessiontoken.bearer: %w", ErrMissingCredential)
	}
	token := strings.TrimSpace(trimmed[len(prefix):])
	if token == "" {
		return "", fmt.Errorf("sessiontoken.bearer: %w", ErrMissingCredential)
	}
	return token, nil
}

// GinMiddleware validates the bearer credential and injects claims into the
// request context under contextKey.
func (verifier *Verifier) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := verifier.VerifyRequest(contextGin.Request)
		if err != nil {
			if errors.Is(err, ErrMissingCredential) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Non connecté"})
				return
			}
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide ou expiré"})
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}
