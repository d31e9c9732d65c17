package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/rs/zerolog/log"
)

const (
	defaultJWKSRefresh = time.Hour
	// minRefetchInterval bounds how often an unknown kid may force a fetch.
	minRefetchInterval = 30 * time.Second
	jwksFetchTimeout   = 10 * time.Second
)

// KeySetOptions tune how a JWKS endpoint is polled.
type KeySetOptions struct {
	Client    *http.Client
	Refresh   time.Duration
	RateLimit time.Duration
}

// NewKeySet fetches the signing keys published at url and keeps them current
// in the background until ctx is done. A token naming an unknown key id
// triggers a refetch, at most once per RateLimit.
func NewKeySet(ctx context.Context, url string, opts KeySetOptions) (*keyfunc.JWKS, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: jwksFetchTimeout}
	}
	if opts.Refresh <= 0 {
		opts.Refresh = defaultJWKSRefresh
	}

	jwks, err := keyfunc.Get(url, keyfunc.Options{
		Ctx:               ctx,
		Client:            opts.Client,
		RefreshInterval:   opts.Refresh,
		RefreshRateLimit:  opts.RateLimit,
		RefreshTimeout:    jwksFetchTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			// the previously fetched keys stay in use
			log.Warn().Err(err).Str("url", url).Msg("JWKS refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", url, err)
	}
	return jwks, nil
}
