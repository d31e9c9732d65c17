package service

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/hvalfangst/csvstats/internal/auth"
	"github.com/hvalfangst/csvstats/internal/storage"
)

const (
	MsgUploaded            = "Successfully uploaded CSV content"
	MsgMissingHeader       = "Missing Authorization header"
	MsgInvalidHeader       = "Invalid Authorization header"
	MsgUnauthorized        = "Unauthorized"
	MsgInvalidUTF8         = "Error: request body is not valid UTF-8"
	MsgPayloadTooLarge     = "Error: request body too large"
	errorMessagePrefix     = "Error: "
	defaultUploadSizeLimit = 32 << 20
)

// TokenValidator checks a raw bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*auth.Claims, error)
}

// UploadResult is the outcome of an upload, ready to be written as a
// plain-text HTTP response.
type UploadResult struct {
	Status  int
	Message string
}

// IngressGate authenticates uploads and stores the body verbatim at a fixed
// key. It keeps no state between calls.
type IngressGate struct {
	validator TokenValidator
	store     storage.ObjectStorage
	inputKey  string
	maxBytes  int64
	logger    zerolog.Logger
}

func NewIngressGate(validator TokenValidator, store storage.ObjectStorage, inputKey string, maxBytes int64, logger zerolog.Logger) *IngressGate {
	if maxBytes <= 0 {
		maxBytes = defaultUploadSizeLimit
	}
	return &IngressGate{
		validator: validator,
		store:     store,
		inputKey:  inputKey,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// MaxBytes returns the largest accepted body size.
func (g *IngressGate) MaxBytes() int64 {
	return g.maxBytes
}

// Upload validates authorizationHeader and, when it carries an acceptable
// token, writes body to the input key. Nothing is written unless the token
// is accepted.
func (g *IngressGate) Upload(ctx context.Context, authorizationHeader string, body []byte) UploadResult {
	raw, err := auth.ExtractBearer(authorizationHeader)
	if err != nil {
		g.logger.Warn().Err(err).Msg("upload rejected")
		if errors.Is(err, auth.ErrMissingHeader) {
			return UploadResult{Status: http.StatusUnauthorized, Message: MsgMissingHeader}
		}
		return UploadResult{Status: http.StatusUnauthorized, Message: MsgInvalidHeader}
	}

	claims, err := g.validator.Validate(ctx, raw)
	if err != nil {
		g.logger.Warn().Err(err).Msg("JWT validation failed")
		return UploadResult{Status: http.StatusUnauthorized, Message: MsgUnauthorized}
	}

	logger := g.logger.With().Str("subject", claims.Subject).Logger()
	logger.Info().Int("bytes", len(body)).Msg("Received HTTP request to upload CSV")

	if int64(len(body)) > g.maxBytes {
		logger.Warn().Int64("limit", g.maxBytes).Msg("upload rejected: body too large")
		return UploadResult{Status: http.StatusRequestEntityTooLarge, Message: MsgPayloadTooLarge}
	}
	if !utf8.Valid(body) {
		logger.Warn().Msg("upload rejected: body is not valid UTF-8")
		return UploadResult{Status: http.StatusBadRequest, Message: MsgInvalidUTF8}
	}

	if err := g.store.PutObject(ctx, g.inputKey, body); err != nil {
		logger.Error().Err(err).Str("key", g.inputKey).Msg("An error occurred")
		return UploadResult{Status: http.StatusInternalServerError, Message: errorMessagePrefix + err.Error()}
	}

	logger.Info().Str("key", g.inputKey).Msg(MsgUploaded)
	return UploadResult{Status: http.StatusOK, Message: MsgUploaded}
}
