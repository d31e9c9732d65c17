package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v4"

	"github.com/hvalfangst/csvstats/internal/config"
)

const (
	testAudience = "61b4a548-3979-48df-b2df-37dc4e5e0e02"
	testSecret   = "unit-test-secret"
)

func signHS256(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func claimsFor(audience string, scopes ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Scopes: scopes,
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "empty", header: "", wantErr: ErrMissingHeader},
		{name: "no token", header: "Bearer ", wantErr: ErrMalformedHeader},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantErr: ErrMalformedHeader},
		{name: "token only", header: "abc.def.ghi", wantErr: ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExtractBearer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractBearer() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractBearer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScopes_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "space separated", input: `"Csv.Writer Csv.Reader"`, want: []string{"Csv.Writer", "Csv.Reader"}},
		{name: "array", input: `["Csv.Writer","Csv.Reader"]`, want: []string{"Csv.Writer", "Csv.Reader"}},
		{name: "empty string", input: `""`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scopes
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if len(s) != len(tt.want) {
				t.Fatalf("Unmarshal() = %v, want %v", s, tt.want)
			}
			for i := range s {
				if s[i] != tt.want[i] {
					t.Errorf("scope[%d] = %q, want %q", i, s[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidator_HMAC(t *testing.T) {
	v, err := NewValidator(testAudience, []string{"Csv.Writer"}, WithHMACSecret(testSecret))
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	expired := claimsFor(testAudience, "Csv.Writer")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor(testAudience, "Csv.Writer")).
		SignedString([]byte("some-other-secret"))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid", token: signHS256(t, claimsFor(testAudience, "Csv.Writer"))},
		{name: "superset of scopes", token: signHS256(t, claimsFor(testAudience, "Csv.Reader", "Csv.Writer"))},
		{name: "wrong audience", token: signHS256(t, claimsFor("someone-else", "Csv.Writer")), wantErr: ErrAudienceMismatch},
		{name: "missing scope", token: signHS256(t, claimsFor(testAudience, "Csv.Reader")), wantErr: ErrMissingScope},
		{name: "no scopes", token: signHS256(t, claimsFor(testAudience)), wantErr: ErrMissingScope},
		{name: "expired", token: signHS256(t, expired), wantErr: ErrInvalidToken},
		{name: "bad signature", token: wrongKey, wantErr: ErrInvalidToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
			if !claims.Scopes.Has("Csv.Writer") {
				t.Errorf("claims scopes = %v", claims.Scopes)
			}
		})
	}
}

func TestValidator_WithoutSignatureVerification(t *testing.T) {
	v, err := NewValidator(testAudience, []string{"Csv.Writer"}, WithoutSignatureVerification())
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	if v.VerifiesSignatures() {
		t.Fatal("VerifiesSignatures() = true")
	}

	// Any signature is accepted, audience and scopes are still enforced.
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor(testAudience, "Csv.Writer")).
		SignedString([]byte("whatever"))
	if _, err := v.Validate(context.Background(), token); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	token, _ = jwt.NewWithClaims(jwt.SigningMethodHS256, claimsFor("other", "Csv.Writer")).
		SignedString([]byte("whatever"))
	if _, err := v.Validate(context.Background(), token); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("Validate() error = %v, want ErrAudienceMismatch", err)
	}
}

func TestValidator_Issuer(t *testing.T) {
	v, err := NewValidator(testAudience, nil, WithHMACSecret(testSecret), WithIssuer("https://login.example/tenant/v2.0"))
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	claims := claimsFor(testAudience)
	claims.Issuer = "https://evil.example"
	if _, err := v.Validate(context.Background(), signHS256(t, claims)); !errors.Is(err, ErrIssuerMismatch) {
		t.Fatalf("Validate() error = %v, want ErrIssuerMismatch", err)
	}

	claims.Issuer = "https://login.example/tenant/v2.0"
	if _, err := v.Validate(context.Background(), signHS256(t, claims)); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestNewValidator_RequiresKeySource(t *testing.T) {
	if _, err := NewValidator(testAudience, nil); err == nil {
		t.Fatal("NewValidator() without key source should fail")
	}
	if _, err := NewValidator("", nil, WithHMACSecret(testSecret)); err == nil {
		t.Fatal("NewValidator() without audience should fail")
	}
}

// =============================================================================
// JWKS
// =============================================================================

// jwksServer publishes a single RSA key and counts fetches. The published
// key can be swapped to simulate rotation.
type jwksServer struct {
	*httptest.Server
	hits int32

	mu   sync.Mutex
	body []byte
}

func newJWKSServer(t *testing.T, kid string, pub *rsa.PublicKey) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.publish(t, kid, pub)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		s.mu.Lock()
		body := s.body
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) publish(t *testing.T, kid string, pub *rsa.PublicKey) {
	t.Helper()
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       pub,
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}}}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	s.mu.Lock()
	s.body = body
	s.mu.Unlock()
}

func (s *jwksServer) fetches() int32 {
	return atomic.LoadInt32(&s.hits)
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func newKeySetValidator(t *testing.T, srv *jwksServer, rateLimit time.Duration) *Validator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	keys, err := NewKeySet(ctx, srv.URL, KeySetOptions{
		Client:    srv.Client(),
		Refresh:   time.Hour,
		RateLimit: rateLimit,
	})
	if err != nil {
		t.Fatalf("NewKeySet() error = %v", err)
	}
	v, err := NewValidator(testAudience, []string{"Csv.Writer"}, WithKeySet(keys))
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

func TestValidator_JWKS(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)
	srv := newJWKSServer(t, "key-1", &key.PublicKey)
	v := newKeySetValidator(t, srv, time.Hour)

	ctx := context.Background()
	if _, err := v.Validate(ctx, signRS256(t, key, "key-1", claimsFor(testAudience, "Csv.Writer"))); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := v.Validate(ctx, signRS256(t, key, "key-1", claimsFor(testAudience, "Csv.Writer"))); err != nil {
		t.Fatalf("Validate() second call error = %v", err)
	}
	if got := srv.fetches(); got != 1 {
		t.Errorf("JWKS fetched %d times, want 1 (cached)", got)
	}

	if _, err := v.Validate(ctx, signRS256(t, other, "key-1", claimsFor(testAudience, "Csv.Writer"))); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate() with foreign key error = %v, want ErrInvalidToken", err)
	}
	if _, err := v.Validate(ctx, signRS256(t, key, "key-1", claimsFor("someone-else", "Csv.Writer"))); !errors.Is(err, ErrAudienceMismatch) {
		t.Fatalf("Validate() wrong audience error = %v, want ErrAudienceMismatch", err)
	}
}

func TestKeySet_RefetchOnUnknownKid(t *testing.T) {
	oldKey := generateKey(t)
	newKey := generateKey(t)
	srv := newJWKSServer(t, "key-1", &oldKey.PublicKey)
	v := newKeySetValidator(t, srv, 0)

	// The identity provider rotates to key-2 after the initial fetch.
	srv.publish(t, "key-2", &newKey.PublicKey)

	ctx := context.Background()
	if _, err := v.Validate(ctx, signRS256(t, newKey, "key-2", claimsFor(testAudience, "Csv.Writer"))); err != nil {
		t.Fatalf("Validate() with rotated key error = %v", err)
	}
	if got := srv.fetches(); got != 2 {
		t.Fatalf("JWKS fetched %d times, want 2", got)
	}
}

func TestKeySet_UnknownKidRateLimited(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, "key-1", &key.PublicKey)
	v := newKeySetValidator(t, srv, time.Hour)

	ctx := context.Background()
	for _, kid := range []string{"unknown-1", "unknown-2", "unknown-3"} {
		if _, err := v.Validate(ctx, signRS256(t, key, kid, claimsFor(testAudience, "Csv.Writer"))); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Validate(kid=%s) error = %v, want ErrInvalidToken", kid, err)
		}
	}
	if got := srv.fetches(); got > 2 {
		t.Fatalf("JWKS fetched %d times within the rate limit, want at most 2", got)
	}
}

func TestNewValidatorFromConfig(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, "key-1", &key.PublicKey)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.AuthConfig{
		Audience:        testAudience,
		RequiredScopes:  []string{"Csv.Writer"},
		VerifySignature: true,
		JWKSURL:         srv.URL,
		JWKSRefresh:     time.Hour,
	}
	v, err := NewValidatorFromConfig(ctx, cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewValidatorFromConfig() error = %v", err)
	}
	if _, err := v.Validate(ctx, signRS256(t, key, "key-1", claimsFor(testAudience, "Csv.Writer"))); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	cfg.JWKSURL = down.URL
	if _, err := NewValidatorFromConfig(ctx, cfg, nil); err == nil {
		t.Fatal("NewValidatorFromConfig() with unreachable JWKS should fail")
	}
}
