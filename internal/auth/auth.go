package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingHeader    = errors.New("missing Authorization header")
	ErrMalformedHeader  = errors.New("invalid Authorization header format")
	ErrInvalidToken     = errors.New("invalid token")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrMissingScope     = errors.New("token is missing required scope")
)

// ExtractBearer returns the token from an Authorization header value of the
// form "Bearer <token>". The scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMalformedHeader
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}
