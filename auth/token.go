// Package auth is responsible for establishing who is calling the API.
// It issues and decodes identity tokens, exposes the middleware that turns an
// Authorization header into a typed Identity on the request context, and
// implements the signup and signin protocol on top of the users credential store.
package auth

import (
	"errors"
	"fmt"
	"time"

	// Third-party library for JWT handling. `jwt/v5` indicates version 5.
	"github.com/golang-jwt/jwt/v5"

	"github.com/user/memories-go/clock"
	"github.com/user/memories-go/config"
)

// TokenVariant tells self-issued tokens apart from tokens minted by a third-party identity provider.
type TokenVariant int

const (
	// VariantSelfIssued tokens are HS256 tokens signed with our own secret.
	VariantSelfIssued TokenVariant = iota
	// VariantExternal tokens come from an external identity provider and are decoded without verification.
	VariantExternal
)

func (v TokenVariant) String() string {
	switch v {
	case VariantSelfIssued:
		return "self-issued"
	case VariantExternal:
		return "external"
	default:
		return fmt.Sprintf("TokenVariant(%d)", int(v))
	}
}

// Decode failures. Callers match them with errors.Is; the wrapped text carries the parser detail.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenNoSubject = errors.New("token carries no subject")
)

// signingMethod is the only algorithm accepted for self-issued tokens.
var signingMethod = jwt.SigningMethodHS256

// SelfClaims is the payload of a self-issued token.
// The subject travels in `id`, which is what existing clients read.
// RegisteredClaims contributes `iss`, `iat` and `exp`.
type SelfClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenClaims is the variant-independent result of decoding a token.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when an external token carries no `exp`
	Variant   TokenVariant
}

// TokenCodec issues, classifies and decodes identity tokens.
// It is safe for concurrent use; all fields are read-only after construction.
type TokenCodec struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	classifier string
	threshold  int
	clock      clock.Clock
	verifier   *jwt.Parser
	peeker     *jwt.Parser
}

// NewTokenCodec builds a codec from the auth configuration.
// A missing secret is a configuration error and is reported here, never per request.
func NewTokenCodec(cfg *config.AuthConfig, c clock.Clock) (*TokenCodec, error) {
	if cfg == nil || cfg.JWTSecret == "" {
		return nil, errors.New("auth: JWT secret is not configured")
	}
	classifier := cfg.Classifier
	if classifier == "" {
		classifier = config.ClassifierLength
	}
	if classifier != config.ClassifierLength && classifier != config.ClassifierIssuer {
		return nil, fmt.Errorf("auth: unknown token classifier %q", classifier)
	}
	threshold := cfg.LengthThreshold
	if threshold <= 0 {
		threshold = 500
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &TokenCodec{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		ttl:        ttl,
		classifier: classifier,
		threshold:  threshold,
		clock:      c,
		verifier: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(c.NowUtc),
		),
		peeker: jwt.NewParser(),
	}, nil
}

// Issue signs a self-issued token for subjectID that expires ttl from now.
// A non-positive ttl uses the configured default lifetime.
func (c *TokenCodec) Issue(subjectID, email string, ttl time.Duration) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, ErrTokenNoSubject
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.clock.NowUtc()
	expiresAt := now.Add(ttl)

	claims := &SelfClaims{
		UserID: subjectID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Classify decides which decoder applies to token.
//
// With the length classifier, tokens shorter than the threshold are self-issued.
// Our HS256 tokens are a few hundred bytes while provider id tokens are longer; the rule
// is a heuristic. The issuer classifier reads `iss` from the unverified payload instead.
func (c *TokenCodec) Classify(token string) (TokenVariant, error) {
	if c.classifier == config.ClassifierIssuer {
		claims := &jwt.RegisteredClaims{}
		if _, _, err := c.peeker.ParseUnverified(token, claims); err != nil {
			return VariantExternal, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		if c.issuer != "" && claims.Issuer == c.issuer {
			return VariantSelfIssued, nil
		}
		return VariantExternal, nil
	}

	if len(token) < c.threshold {
		return VariantSelfIssued, nil
	}
	return VariantExternal, nil
}

// Decode extracts the subject from token according to variant.
func (c *TokenCodec) Decode(token string, variant TokenVariant) (*TokenClaims, error) {
	switch variant {
	case VariantSelfIssued:
		return c.decodeSelfIssued(token)
	case VariantExternal:
		return c.decodeExternal(token)
	default:
		return nil, fmt.Errorf("auth: unknown token variant %v", variant)
	}
}

func (c *TokenCodec) decodeSelfIssued(token string) (*TokenClaims, error) {
	claims := &SelfClaims{}
	_, err := c.verifier.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}
	if claims.UserID == "" {
		return nil, ErrTokenNoSubject
	}

	out := &TokenClaims{Subject: claims.UserID, Variant: VariantSelfIssued}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// decodeExternal parses the payload without checking the signature or expiry.
// Nothing about the claims is trusted beyond their structure.
func (c *TokenCodec) decodeExternal(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := c.peeker.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if sub == "" {
		return nil, ErrTokenNoSubject
	}

	out := &TokenClaims{Subject: sub, Variant: VariantExternal}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time.UTC()
	}
	return out, nil
}
