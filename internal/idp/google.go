package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleendpoint "golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/tyemirov/idbridge/internal/identity"
)

var (
	// ErrExchangeFailed indicates the authorization code could not be exchanged.
	ErrExchangeFailed = errors.New("idp.exchange_failed")
	// ErrUserinfoFailed indicates the userinfo fetch after a successful exchange failed.
	ErrUserinfoFailed = errors.New("idp.userinfo_failed")
	// ErrInvalidToken indicates the One Tap ID token failed validation.
	ErrInvalidToken = errors.New("idp.invalid_token")
	// ErrInvalidIssuer indicates the validated token was not issued by Google.
	ErrInvalidIssuer = errors.New("idp.invalid_issuer")
)

// Verifier abstracts the external identity provider. Implementations perform
// all cryptographic and signature validation; callers receive raw assertions
// already marked verified or an error.
type Verifier interface {
	AuthCodeURL(state string) string
	VerifyAuthorizationCode(ctx context.Context, code string) (*identity.CodeProfile, error)
	VerifyOneTapToken(ctx context.Context, rawIDToken string) (*identity.OneTapPayload, error)
}

// GoogleVerifier implements Verifier against Google's OAuth2 and One Tap
// surfaces. Code-flow profiles come from the userinfo endpoint; One Tap
// tokens are validated through google.golang.org/api/idtoken.
type GoogleVerifier struct {
	oauthConfig    *oauth2.Config
	tokenValidator *idtoken.Validator
	audience       string
	callTimeout    time.Duration
}

// NewGoogleVerifier builds a verifier for the given OAuth client. The
// redirect URL must match the client registration; callTimeout bounds every
// outbound provider call.
func NewGoogleVerifier(ctx context.Context, clientID string, clientSecret string, redirectURL string, callTimeout time.Duration) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.New("idp.google.missing_client_credentials")
	}
	validator, validatorErr := idtoken.NewValidator(ctx)
	if validatorErr != nil {
		return nil, fmt.Errorf("idp.google.validator_init: %w", validatorErr)
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &GoogleVerifier{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     googleendpoint.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
		},
		tokenValidator: validator,
		audience:       clientID,
		callTimeout:    callTimeout,
	}, nil
}

// AuthCodeURL builds the Google consent URL carrying the one-time state.
func (verifier *GoogleVerifier) AuthCodeURL(state string) string {
	return verifier.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// VerifyAuthorizationCode exchanges the code and fetches the user's profile.
func (verifier *GoogleVerifier) VerifyAuthorizationCode(ctx context.Context, code string) (*identity.CodeProfile, error) {
	boundCtx, cancel := context.WithTimeout(ctx, verifier.callTimeout)
	defer cancel()

	token, exchangeErr := verifier.oauthConfig.Exchange(boundCtx, code)
	if exchangeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, exchangeErr)
	}

	service, serviceErr := oauth2api.NewService(boundCtx, option.WithTokenSource(verifier.oauthConfig.TokenSource(boundCtx, token)))
	if serviceErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserinfoFailed, serviceErr)
	}
	userinfo, userinfoErr := service.Userinfo.Get().Context(boundCtx).Do()
	if userinfoErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserinfoFailed, userinfoErr)
	}

	profile := &identity.CodeProfile{
		ID:            userinfo.Id,
		DisplayName:   userinfo.Name,
		GivenName:     userinfo.GivenName,
		FamilyName:    userinfo.FamilyName,
		Verified:      true,
		EmailVerified: userinfo.VerifiedEmail,
	}
	if userinfo.Email != "" {
		profile.Emails = []identity.ProfileEmail{{Value: userinfo.Email}}
	}
	if userinfo.Picture != "" {
		profile.Photos = []identity.ProfilePhoto{{Value: userinfo.Picture}}
	}
	return profile, nil
}

// VerifyOneTapToken validates a One Tap ID token against the client audience.
func (verifier *GoogleVerifier) VerifyOneTapToken(ctx context.Context, rawIDToken string) (*identity.OneTapPayload, error) {
	if strings.TrimSpace(rawIDToken) == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidToken)
	}
	boundCtx, cancel := context.WithTimeout(ctx, verifier.callTimeout)
	defer cancel()

	payload, validateErr := verifier.tokenValidator.Validate(boundCtx, rawIDToken, verifier.audience)
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, validateErr)
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if !validIssuer(issuerValue) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIssuer, issuerValue)
	}
	return &identity.OneTapPayload{Claims: payload.Claims, Verified: true}, nil
}

func validIssuer(issuer string) bool {
	return issuer == "https://accounts.google.com" || issuer == "accounts.google.com"
}
