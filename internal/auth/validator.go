package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/hvalfangst/csvstats/internal/config"
)

// Scopes is the scp claim. Identity providers write it as a space separated
// string; a JSON array is accepted as well.
type Scopes []string

func (s *Scopes) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scp must be a string or an array of strings: %w", err)
	}
	*s = list
	return nil
}

func (s Scopes) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

// Has reports whether scope was granted.
func (s Scopes) Has(scope string) bool {
	for _, granted := range s {
		if granted == scope {
			return true
		}
	}
	return false
}

// Claims are the token claims the upload endpoint consumes.
type Claims struct {
	jwt.RegisteredClaims
	Scopes Scopes `json:"scp,omitempty"`
}

// Validator checks bearer tokens against an expected audience and a fixed
// set of required scopes.
type Validator struct {
	audience       string
	issuer         string
	requiredScopes []string
	verify         bool
	hmacSecret     []byte
	keys           jwt.Keyfunc
	parser         *jwt.Parser
}

type Option func(*Validator)

// WithHMACSecret verifies HS256 signatures with a shared secret.
func WithHMACSecret(secret string) Option {
	return func(v *Validator) {
		v.hmacSecret = []byte(secret)
	}
}

// WithKeySet verifies asymmetric signatures against the identity provider's
// published keys.
func WithKeySet(keys *keyfunc.JWKS) Option {
	return func(v *Validator) {
		v.keys = keys.Keyfunc
	}
}

// WithIssuer additionally requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(v *Validator) {
		v.issuer = issuer
	}
}

// WithoutSignatureVerification decodes tokens without checking their
// signature or time-based claims. Only audience and scopes are enforced.
func WithoutSignatureVerification() Option {
	return func(v *Validator) {
		v.verify = false
	}
}

// NewValidator builds a Validator. Unless WithoutSignatureVerification is
// given, at least one key source must be configured.
func NewValidator(audience string, requiredScopes []string, opts ...Option) (*Validator, error) {
	if audience == "" {
		return nil, fmt.Errorf("audience must be provided")
	}

	v := &Validator{
		audience:       audience,
		requiredScopes: requiredScopes,
		verify:         true,
	}
	for _, opt := range opts {
		opt(v)
	}

	var methods []string
	if v.hmacSecret != nil {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if v.keys != nil {
		methods = append(methods, "RS256", "RS384", "RS512", "ES256", "ES384", "PS256")
	}
	if v.verify && len(methods) == 0 {
		return nil, fmt.Errorf("signature verification requires a key source")
	}
	v.parser = jwt.NewParser(jwt.WithValidMethods(methods))

	return v, nil
}

// NewValidatorFromConfig wires a Validator from AuthConfig. When a JWKS URL
// is configured the keys are fetched immediately and refreshed until ctx is
// done. client is used for JWKS retrieval and may be nil.
func NewValidatorFromConfig(ctx context.Context, cfg config.AuthConfig, client *http.Client) (*Validator, error) {
	var opts []Option
	if cfg.HMACSecret != "" {
		opts = append(opts, WithHMACSecret(cfg.HMACSecret))
	}
	if cfg.JWKSURL != "" && cfg.VerifySignature {
		keys, err := NewKeySet(ctx, cfg.JWKSURL, KeySetOptions{
			Client:    client,
			Refresh:   cfg.JWKSRefresh,
			RateLimit: minRefetchInterval,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithKeySet(keys))
	}
	if cfg.Issuer != "" {
		opts = append(opts, WithIssuer(cfg.Issuer))
	}
	if !cfg.VerifySignature {
		opts = append(opts, WithoutSignatureVerification())
	}
	return NewValidator(cfg.Audience, cfg.RequiredScopes, opts...)
}

// VerifiesSignatures reports whether token signatures are checked.
func (v *Validator) VerifiesSignatures() bool {
	return v.verify
}

// Validate decodes raw and enforces audience, issuer and scopes.
func (v *Validator) Validate(_ context.Context, raw string) (*Claims, error) {
	claims := &Claims{}

	if v.verify {
		if _, err := v.parser.ParseWithClaims(raw, claims, v.keyfunc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		if _, _, err := v.parser.ParseUnverified(raw, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: want %q, got %v", ErrAudienceMismatch, v.audience, []string(claims.Audience))
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: want %q, got %q", ErrIssuerMismatch, v.issuer, claims.Issuer)
	}
	for _, scope := range v.requiredScopes {
		if !claims.Scopes.Has(scope) {
			return nil, fmt.Errorf("%w: %s", ErrMissingScope, scope)
		}
	}

	return claims, nil
}

func (v *Validator) keyfunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.hmacSecret == nil {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return v.hmacSecret, nil
	default:
		if v.keys == nil {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return v.keys(token)
	}
}
