package identity

import "errors"

var (
	// ErrMalformedAssertion indicates the provider assertion lacks a usable email.
	ErrMalformedAssertion = errors.New("identity.malformed_assertion")
	// ErrUnverifiedAssertion indicates the upstream signature or validity check did not pass.
	ErrUnverifiedAssertion = errors.New("identity.unverified_assertion")
)

// Tristate carries a boolean claim that may be absent from the assertion.
type Tristate int

const (
	// VerifiedUnknown means the assertion did not carry the claim.
	VerifiedUnknown Tristate = iota
	// VerifiedFalse means the claim was present and false.
	VerifiedFalse
	// VerifiedTrue means the claim was present and true.
	VerifiedTrue
)

// Identity is the canonical, provider-agnostic representation of an
// authenticated user. Email is always non-empty; optional fields are
// empty strings rather than absent.
type Identity struct {
	SubjectID     string
	Email         string
	DisplayName   string
	GivenName     string
	FamilyName    string
	PictureURL    string
	EmailVerified Tristate
}

// CodeProfile is the raw assertion shape produced by the authorization-code
// flow: a Google userinfo profile with first-class fields. EmailVerified is
// the provider's verified_email value; nil when the response omitted it.
type CodeProfile struct {
	ID            string
	DisplayName   string
	Emails        []ProfileEmail
	Photos        []ProfilePhoto
	GivenName     string
	FamilyName    string
	Verified      bool
	EmailVerified *bool
}

// ProfileEmail is one entry of a profile's email list.
type ProfileEmail struct {
	Value string
}

// ProfilePhoto is one entry of a profile's photo list.
type ProfilePhoto struct {
	Value string
}

// OneTapPayload is the raw assertion shape produced by Google One Tap:
// the claims of a validated OIDC ID token.
type OneTapPayload struct {
	Claims   map[string]interface{}
	Verified bool
}

// RawAssertion is the tagged union consumed by Normalize. Exactly one of
// the two variants is set per assertion.
type RawAssertion struct {
	Profile *CodeProfile
	OneTap  *OneTapPayload
}
