package storage

import (
	"context"
	"errors"
	"testing"
)

type fakeStatter struct {
	objects map[string]bool
	err     error
	calls   int
}

func (f *fakeStatter) Exists(_ context.Context, bucket, object string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.objects[bucket+"/"+object], nil
}

func TestParseObjectURL(t *testing.T) {
	cases := map[string][2]string{
		"gs://vastra-media/reviews/p1/u1/a.jpg":                        {"vastra-media", "reviews/p1/u1/a.jpg"},
		"https://storage.googleapis.com/vastra-media/reviews/p1/b.png": {"vastra-media", "reviews/p1/b.png"},
	}
	for raw, want := range cases {
		bucket, object, err := ParseObjectURL(raw)
		if err != nil {
			t.Fatalf("ParseObjectURL(%q): %v", raw, err)
		}
		if bucket != want[0] || object != want[1] {
			t.Fatalf("ParseObjectURL(%q) = %s %s", raw, bucket, object)
		}
	}

	for _, raw := range []string{"", "https://example.com/a.jpg", "gs://bucket", "gs://bucket/../secret"} {
		if _, _, err := ParseObjectURL(raw); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("expected invalid reference for %q, got %v", raw, err)
		}
	}
}

func TestMediaVerifier(t *testing.T) {
	statter := &fakeStatter{objects: map[string]bool{"vastra-media/reviews/a.jpg": true}}
	verifier, err := NewMediaVerifier("vastra-media", statter)
	if err != nil {
		t.Fatalf("NewMediaVerifier: %v", err)
	}
	ctx := context.Background()

	if err := verifier.VerifyImages(ctx, []string{"gs://vastra-media/reviews/a.jpg"}); err != nil {
		t.Fatalf("expected existing object to verify, got %v", err)
	}
	if err := verifier.VerifyImages(ctx, []string{"gs://vastra-media/reviews/missing.jpg"}); !errors.Is(err, ErrObjectMissing) {
		t.Fatalf("expected ErrObjectMissing, got %v", err)
	}
	if err := verifier.VerifyImages(ctx, []string{"gs://other/reviews/a.jpg"}); !errors.Is(err, ErrForeignBucket) {
		t.Fatalf("expected ErrForeignBucket, got %v", err)
	}

	statter.err = errors.New("boom")
	if err := verifier.VerifyImages(ctx, []string{"gs://vastra-media/reviews/a.jpg"}); err == nil || errors.Is(err, ErrObjectMissing) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if err := verifier.VerifyImages(ctx, nil); err != nil {
		t.Fatalf("expected no error for empty refs, got %v", err)
	}
}
