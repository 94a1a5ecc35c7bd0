package identity

import (
	"errors"
	"testing"
)

func TestNormalizeCodeProfile(t *testing.T) {
	t.Parallel()

	verifiedEmail := true
	normalized, err := Normalize(RawAssertion{Profile: &CodeProfile{
		ID:            "profile-123",
		DisplayName:   "Alice Example",
		Emails:        []ProfileEmail{{Value: "alice@example.com"}},
		Photos:        []ProfilePhoto{{Value: "https://photos.example/alice.png"}},
		GivenName:     "Alice",
		FamilyName:    "Example",
		Verified:      true,
		EmailVerified: &verifiedEmail,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.SubjectID != "profile-123" {
		t.Fatalf("expected subject profile-123, got %q", normalized.SubjectID)
	}
	if normalized.Email != "alice@example.com" {
		t.Fatalf("expected email alice@example.com, got %q", normalized.Email)
	}
	if normalized.PictureURL != "https://photos.example/alice.png" {
		t.Fatalf("unexpected picture URL %q", normalized.PictureURL)
	}
	if normalized.EmailVerified != VerifiedTrue {
		t.Fatalf("expected verified email for profile variant")
	}
}

func TestNormalizeCodeProfileEmailVerificationTristate(t *testing.T) {
	t.Parallel()

	base := func(emailVerified *bool) RawAssertion {
		return RawAssertion{Profile: &CodeProfile{
			ID:            "profile-tri",
			Emails:        []ProfileEmail{{Value: "tri@example.com"}},
			Verified:      true,
			EmailVerified: emailVerified,
		}}
	}

	normalized, err := Normalize(base(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.EmailVerified != VerifiedUnknown {
		t.Fatalf("expected VerifiedUnknown when the provider omitted verified_email")
	}

	unverified := false
	normalized, err = Normalize(base(&unverified))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.EmailVerified != VerifiedFalse {
		t.Fatalf("expected VerifiedFalse when the provider reported verified_email=false")
	}
}

func TestNormalizeCodeProfileMissingOptionalFields(t *testing.T) {
	t.Parallel()

	normalized, err := Normalize(RawAssertion{Profile: &CodeProfile{
		ID:       "profile-456",
		Emails:   []ProfileEmail{{Value: "bob@example.com"}},
		Verified: true,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.DisplayName != "" || normalized.GivenName != "" || normalized.FamilyName != "" || normalized.PictureURL != "" {
		t.Fatalf("expected empty strings for missing optional fields, got %+v", normalized)
	}
}

func TestNormalizeCodeProfileWithoutEmail(t *testing.T) {
	t.Parallel()

	_, err := Normalize(RawAssertion{Profile: &CodeProfile{ID: "profile-789", Verified: true}})
	if !errors.Is(err, ErrMalformedAssertion) {
		t.Fatalf("expected ErrMalformedAssertion, got %v", err)
	}
}

func TestNormalizeOneTapPayload(t *testing.T) {
	t.Parallel()

	normalized, err := Normalize(RawAssertion{OneTap: &OneTapPayload{
		Claims: map[string]interface{}{
			"sub":            "sub-abc",
			"name":           "A B",
			"email":          "a@b.com",
			"picture":        "http://x/p.png",
			"email_verified": true,
		},
		Verified: true,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.SubjectID != "sub-abc" {
		t.Fatalf("expected subject sub-abc, got %q", normalized.SubjectID)
	}
	if normalized.Email != "a@b.com" || normalized.DisplayName != "A B" || normalized.PictureURL != "http://x/p.png" {
		t.Fatalf("unexpected normalized identity %+v", normalized)
	}
	if normalized.EmailVerified != VerifiedTrue {
		t.Fatalf("expected VerifiedTrue when email_verified claim is true")
	}
}

func TestNormalizeOneTapPayloadWithoutVerifiedClaim(t *testing.T) {
	t.Parallel()

	normalized, err := Normalize(RawAssertion{OneTap: &OneTapPayload{
		Claims: map[string]interface{}{
			"sub":   "sub-def",
			"email": "c@d.com",
		},
		Verified: true,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.EmailVerified != VerifiedUnknown {
		t.Fatalf("expected VerifiedUnknown when the claim is absent")
	}
}

func TestNormalizeOneTapPayloadWithoutEmail(t *testing.T) {
	t.Parallel()

	_, err := Normalize(RawAssertion{OneTap: &OneTapPayload{
		Claims:   map[string]interface{}{"sub": "sub-ghi"},
		Verified: true,
	}})
	if !errors.Is(err, ErrMalformedAssertion) {
		t.Fatalf("expected ErrMalformedAssertion, got %v", err)
	}
}

func TestNormalizeRejectsUnverifiedAssertions(t *testing.T) {
	t.Parallel()

	_, profileErr := Normalize(RawAssertion{Profile: &CodeProfile{
		Emails: []ProfileEmail{{Value: "alice@example.com"}},
	}})
	if !errors.Is(profileErr, ErrUnverifiedAssertion) {
		t.Fatalf("expected ErrUnverifiedAssertion for profile variant, got %v", profileErr)
	}

	_, oneTapErr := Normalize(RawAssertion{OneTap: &OneTapPayload{
		Claims: map[string]interface{}{"email": "a@b.com"},
	}})
	if !errors.Is(oneTapErr, ErrUnverifiedAssertion) {
		t.Fatalf("expected ErrUnverifiedAssertion for one-tap variant, got %v", oneTapErr)
	}
}

func TestNormalizeEmptyUnion(t *testing.T) {
	t.Parallel()

	_, err := Normalize(RawAssertion{})
	if !errors.Is(err, ErrMalformedAssertion) {
		t.Fatalf("expected ErrMalformedAssertion for empty union, got %v", err)
	}
}
