package auth

import "errors"

var (
	// ErrMissingCredential is returned when the Authorization header is absent
	// or does not use the Bearer scheme
	ErrMissingCredential = errors.New("missing bearer credential")

	// ErrMalformedToken is returned when the token cannot be parsed
	ErrMalformedToken = errors.New("malformed token")

	// ErrSignatureInvalid is returned when the signature cannot be verified,
	// including when no key is available for the token's key id
	ErrSignatureInvalid = errors.New("invalid token signature")

	// ErrIssuerMismatch is returned when the iss claim does not match the configured issuer
	ErrIssuerMismatch = errors.New("issuer mismatch")

	// ErrExpired is returned when the token is outside its validity window
	ErrExpired = errors.New("token expired or not yet valid")
)

var (
	// ErrMissingJWKSURL is returned when a key set is created without an endpoint
	ErrMissingJWKSURL = errors.New("missing JWKS URL")

	// ErrJWKSFetchFailed is returned when the key set cannot be fetched
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrKeyNotFound is returned when no key matches the requested key id
	ErrKeyNotFound = errors.New("key not found in JWKS")
)

// Kind returns a short label for a verification failure. The label is meant
// for logs and metrics only and must never reach the caller.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrIssuerMismatch):
		return "issuer_mismatch"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return "unknown"
	}
}
