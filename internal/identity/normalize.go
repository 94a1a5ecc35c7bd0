package identity

import (
	"fmt"
	"strings"
)

// Normalize converts a raw provider assertion into the canonical Identity.
// It fails with ErrUnverifiedAssertion when the upstream validity check did
// not pass and with ErrMalformedAssertion when no usable email is present.
// Downstream components never see which variant produced the result.
func Normalize(assertion RawAssertion) (Identity, error) {
	switch {
	case assertion.Profile != nil:
		return normalizeCodeProfile(assertion.Profile)
	case assertion.OneTap != nil:
		return normalizeOneTap(assertion.OneTap)
	default:
		return Identity{}, fmt.Errorf("identity.normalize: %w", ErrMalformedAssertion)
	}
}

func normalizeCodeProfile(profile *CodeProfile) (Identity, error) {
	if !profile.Verified {
		return Identity{}, fmt.Errorf("identity.normalize.profile: %w", ErrUnverifiedAssertion)
	}
	email := ""
	if len(profile.Emails) > 0 {
		email = strings.TrimSpace(profile.Emails[0].Value)
	}
	if email == "" {
		return Identity{}, fmt.Errorf("identity.normalize.profile: %w", ErrMalformedAssertion)
	}
	picture := ""
	if len(profile.Photos) > 0 {
		picture = strings.TrimSpace(profile.Photos[0].Value)
	}
	verified := VerifiedUnknown
	if profile.EmailVerified != nil {
		verified = VerifiedFalse
		if *profile.EmailVerified {
			verified = VerifiedTrue
		}
	}
	return Identity{
		SubjectID:     strings.TrimSpace(profile.ID),
		Email:         email,
		DisplayName:   strings.TrimSpace(profile.DisplayName),
		GivenName:     strings.TrimSpace(profile.GivenName),
		FamilyName:    strings.TrimSpace(profile.FamilyName),
		PictureURL:    picture,
		EmailVerified: verified,
	}, nil
}

func normalizeOneTap(payload *OneTapPayload) (Identity, error) {
	if !payload.Verified {
		return Identity{}, fmt.Errorf("identity.normalize.onetap: %w", ErrUnverifiedAssertion)
	}
	email := strings.TrimSpace(claimString(payload.Claims, "email"))
	if email == "" {
		return Identity{}, fmt.Errorf("identity.normalize.onetap: %w", ErrMalformedAssertion)
	}
	verified := VerifiedUnknown
	if rawVerified, present := payload.Claims["email_verified"]; present {
		verified = VerifiedFalse
		if boolValue, ok := rawVerified.(bool); ok && boolValue {
			verified = VerifiedTrue
		}
	}
	return Identity{
		SubjectID:     strings.TrimSpace(claimString(payload.Claims, "sub")),
		Email:         email,
		DisplayName:   strings.TrimSpace(claimString(payload.Claims, "name")),
		GivenName:     strings.TrimSpace(claimString(payload.Claims, "given_name")),
		FamilyName:    strings.TrimSpace(claimString(payload.Claims, "family_name")),
		PictureURL:    strings.TrimSpace(claimString(payload.Claims, "picture")),
		EmailVerified: verified,
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	value, _ := claims[key].(string)
	return value
}
