// Package auth verifies bearer tokens against a remote JSON Web Key Set.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerPrefix is the case-sensitive scheme prefix of the Authorization header
const BearerPrefix = "Bearer "

// DefaultAlgorithms are the asymmetric signing algorithms accepted by default
var DefaultAlgorithms = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// KeyLookup resolves a key id to a public key
type KeyLookup interface {
	Lookup(ctx context.Context, kid string) (any, error)
}

// VerifierConfig holds configuration for a Verifier
type VerifierConfig struct {
	// Issuer is the expected iss claim. Empty disables the issuer check.
	Issuer string

	// Leeway is the clock skew tolerated for exp, nbf and iat
	Leeway time.Duration

	// Algorithms restricts the accepted signing algorithms (defaults to DefaultAlgorithms)
	Algorithms []string
}

// Verifier validates bearer tokens and returns their claims
type Verifier struct {
	keys   KeyLookup
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a new Verifier backed by the given key lookup
func NewVerifier(keys KeyLookup, config VerifierConfig) *Verifier {
	algorithms := config.Algorithms
	if len(algorithms) == 0 {
		algorithms = DefaultAlgorithms
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algorithms),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}

	return &Verifier{
		keys:   keys,
		issuer: config.Issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Issuer returns the expected issuer, or "" in permissive mode
func (v *Verifier) Issuer() string {
	return v.issuer
}

// Verify validates the raw Authorization header value. A missing header or a
// scheme other than "Bearer " is rejected before any key is looked up.
func (v *Verifier) Verify(ctx context.Context, authorization string) (Claims, error) {
	if !strings.HasPrefix(authorization, BearerPrefix) {
		return nil, ErrMissingCredential
	}

	tokenString := strings.TrimPrefix(authorization, BearerPrefix)
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	return v.VerifyToken(ctx, tokenString)
}

// VerifyToken validates a compact JWT and returns its claims
func (v *Verifier) VerifyToken(ctx context.Context, tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("kid header not found")
		}
		return v.keys.Lookup(ctx, kid)
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrSignatureInvalid
	}

	return Claims(claims), nil
}

// classify maps a jwt parse error onto one of the verification sentinels.
// The original error stays wrapped for diagnostics.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		// iss is the only claim this parser requires
		return fmt.Errorf("%w: %w", ErrIssuerMismatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}
