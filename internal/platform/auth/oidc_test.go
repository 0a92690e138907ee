package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	validator *OIDCValidator
	key       *rsa.PrivateKey
	now       time.Time
	fetches   *atomic.Int32
}

func newOIDCFixture(t *testing.T, status int) oidcFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "svc-key", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}

	fetches := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)

	now := time.Unix(1_700_000_000, 0)
	original := jwt.TimeFunc
	jwt.TimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.TimeFunc = original })

	cache := NewJWKSCache(server.URL, server.Client(), func() time.Time { return now })
	return oidcFixture{validator: NewOIDCValidator(cache), key: key, now: now, fetches: fetches}
}

func (f oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"aud":   "https://api.vastra.example",
		"iss":   "https://accounts.google.com",
		"sub":   "scheduler",
		"email": "scheduler@vastra.iam.gserviceaccount.com",
		"exp":   float64(f.now.Add(time.Hour).Unix()),
		"iat":   float64(f.now.Unix()),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "svc-key"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveOIDC(f oidcFixture, token string) (*httptest.ResponseRecorder, *ServiceIdentity) {
	var identity *ServiceIdentity
	handler := f.validator.RequireOIDC("https://api.vastra.example", []string{"https://accounts.google.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ = ServiceIdentityFromContext(r.Context())
			w.WriteHeader(http.StatusAccepted)
		}))
	req := httptest.NewRequest(http.MethodPost, "/internal/coupons:reconcile", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, identity
}

func TestRequireOIDC_Success(t *testing.T) {
	f := newOIDCFixture(t, http.StatusOK)

	rec, identity := serveOIDC(f, f.sign(t, nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if identity == nil || identity.Subject != "scheduler" {
		t.Fatalf("unexpected identity %#v", identity)
	}

	serveOIDC(f, f.sign(t, nil))
	if got := f.fetches.Load(); got != 1 {
		t.Fatalf("expected cached keys, fetched %d times", got)
	}
}

func TestRequireOIDC_Rejections(t *testing.T) {
	f := newOIDCFixture(t, http.StatusOK)

	cases := map[string]string{
		"missing token":     "",
		"audience mismatch": f.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://other.example" }),
		"issuer mismatch":   f.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }),
		"expired":           f.sign(t, func(c jwt.MapClaims) { c["exp"] = float64(f.now.Add(-time.Minute).Unix()) }),
	}
	for name, token := range cases {
		rec, _ := serveOIDC(f, token)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireOIDC_JWKSUnavailable(t *testing.T) {
	f := newOIDCFixture(t, http.StatusBadGateway)

	rec, _ := serveOIDC(f, f.sign(t, nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMaxAge(t *testing.T) {
	if got := maxAge("public, max-age=120, must-revalidate"); got != 2*time.Minute {
		t.Fatalf("unexpected max age %s", got)
	}
	if got := maxAge("no-store"); got != defaultJWKSTTL {
		t.Fatalf("expected default ttl, got %s", got)
	}
}
