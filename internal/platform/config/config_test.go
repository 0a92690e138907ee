package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "vastra-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != defaultRequestTimeout {
		t.Errorf("unexpected request timeout: %s", cfg.Server.RequestTimeout)
	}
	if cfg.Firestore.ProjectID != "vastra-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "vastra-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.NotificationTopic != defaultNotificationTopic {
		t.Errorf("unexpected notification topic %s", cfg.PubSub.NotificationTopic)
	}
	if cfg.Pricing.TaxRateBasisPoints != 1800 || cfg.Pricing.FreeShippingThreshold != 1000 || cfg.Pricing.ShippingFee != 100 {
		t.Errorf("unexpected pricing defaults %#v", cfg.Pricing)
	}
	if cfg.RateLimits.CouponValidatePerMinute != defaultCouponValidatePerMin {
		t.Errorf("unexpected coupon rate limit %d", cfg.RateLimits.CouponValidatePerMinute)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %q", cfg.Redis.Addr)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != defaultSecurityIssuer {
		t.Errorf("expected default issuer, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Reconciliation.Interval != 0 {
		t.Errorf("expected reconciliation ticker disabled, got %s", cfg.Reconciliation.Interval)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                       "9090",
		"API_SERVER_READ_TIMEOUT":               "20s",
		"API_FIREBASE_PROJECT_ID":               "vastra-prod",
		"API_FIRESTORE_PROJECT_ID":              "vastra-data",
		"API_PUBSUB_PROJECT_ID":                 "vastra-events",
		"API_PUBSUB_NOTIFICATION_TOPIC":         "notify",
		"API_REDIS_ADDR":                        "10.0.0.5:6379",
		"API_REDIS_PASSWORD":                    "sm://redis/password",
		"API_REDIS_DB":                          "2",
		"API_STORAGE_REVIEW_MEDIA_BUCKET":       "vastra-review-media",
		"API_RATELIMIT_COUPON_VALIDATE_PER_MIN": "5",
		"API_PRICING_TAX_RATE_BPS":              "1200",
		"API_PRICING_FREE_SHIPPING_ABOVE":       "1500",
		"API_PRICING_SHIPPING_FEE":              "80",
		"API_SECURITY_ENVIRONMENT":              "PROD",
		"API_SECURITY_OIDC_AUDIENCE":            "secret://oidc/audience",
		"API_SECURITY_OIDC_ISSUERS":             "https://accounts.google.com, https://issuer.example.com",
		"API_RECONCILE_INTERVAL":                "15m",
		"API_RECONCILE_BATCH":                   "50",
	}
	secrets := map[string]string{
		"secret://redis/password": "redis-pass",
		"secret://oidc/audience":  "https://api.example.com",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected server config %#v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "vastra-data" || cfg.PubSub.ProjectID != "vastra-events" {
		t.Errorf("unexpected project ids firestore=%s pubsub=%s", cfg.Firestore.ProjectID, cfg.PubSub.ProjectID)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 2 {
		t.Errorf("expected resolved redis password, got %#v", cfg.Redis)
	}
	if cfg.Security.OIDC.Audience != "https://api.example.com" {
		t.Errorf("expected resolved audience, got %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected two issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Pricing.TaxRateBasisPoints != 1200 || cfg.Pricing.FreeShippingThreshold != 1500 || cfg.Pricing.ShippingFee != 80 {
		t.Errorf("unexpected pricing %#v", cfg.Pricing)
	}
	if cfg.Reconciliation.Interval != 15*time.Minute || cfg.Reconciliation.BatchSize != 50 {
		t.Errorf("unexpected reconciliation %#v", cfg.Reconciliation)
	}
}

func TestLoadFailsOnUnresolvedSecret(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "vastra-dev",
		"API_REDIS_PASSWORD":      "secret://redis/password",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://redis/password" {
		t.Fatalf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_PRICING_SHIPPING_FEE": "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validationErr.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "Firestore.ProjectID": false, "Pricing.ShippingFee": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", f, fields)
		}
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nAPI_FIREBASE_PROJECT_ID=from-file\nexport API_SERVER_PORT=7070\nAPI_PUBSUB_NOTIFICATION_TOPIC=\"quoted-topic\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(path), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Errorf("expected project from file, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to override file, got %s", cfg.Server.Port)
	}
	if cfg.PubSub.NotificationTopic != "quoted-topic" {
		t.Errorf("expected unquoted topic, got %s", cfg.PubSub.NotificationTopic)
	}
}

func TestLoadIgnoresMissingDotEnvFile(t *testing.T) {
	_, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(filepath.Join(t.TempDir(), "missing.env")),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "p"}),
	)
	if err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
