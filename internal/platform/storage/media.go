package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

const publicHost = "storage.googleapis.com"

var (
	// ErrForeignBucket indicates the media reference points outside the configured bucket.
	ErrForeignBucket = errors.New("storage: media must live in the review media bucket")
	// ErrObjectMissing indicates the referenced object does not exist.
	ErrObjectMissing = errors.New("storage: media object not found")
	// ErrInvalidReference indicates the reference is not a recognised Cloud Storage location.
	ErrInvalidReference = errors.New("storage: invalid media reference")
)

// ObjectStatter reports whether an object exists. It is satisfied by GCSStatter and test fakes.
type ObjectStatter interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
}

// GCSStatter checks objects through the Cloud Storage client.
type GCSStatter struct {
	client *storage.Client
}

// NewGCSStatter wraps a Cloud Storage client.
func NewGCSStatter(client *storage.Client) *GCSStatter {
	return &GCSStatter{client: client}
}

// Exists fetches object attributes and maps storage.ErrObjectNotExist to false.
func (s *GCSStatter) Exists(ctx context.Context, bucket, object string) (bool, error) {
	if s == nil || s.client == nil {
		return false, errors.New("storage: client not initialised")
	}
	_, err := s.client.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MediaVerifier validates that review image references were uploaded to the media bucket.
type MediaVerifier struct {
	bucket  string
	statter ObjectStatter
}

// NewMediaVerifier constructs a verifier for the given bucket.
func NewMediaVerifier(bucket string, statter ObjectStatter) (*MediaVerifier, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: media bucket is required")
	}
	if statter == nil {
		return nil, errors.New("storage: object statter is required")
	}
	return &MediaVerifier{bucket: bucket, statter: statter}, nil
}

// VerifyImages checks every reference. Accepted forms are gs://bucket/object and
// https://storage.googleapis.com/bucket/object.
func (v *MediaVerifier) VerifyImages(ctx context.Context, refs []string) error {
	for _, ref := range refs {
		bucket, object, err := ParseObjectURL(ref)
		if err != nil {
			return err
		}
		if bucket != v.bucket {
			return fmt.Errorf("%w: %s", ErrForeignBucket, ref)
		}
		ok, err := v.statter.Exists(ctx, bucket, object)
		if err != nil {
			return fmt.Errorf("storage: stat %s: %w", ref, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrObjectMissing, ref)
		}
	}
	return nil
}

// ParseObjectURL splits a Cloud Storage URL into bucket and object name.
func ParseObjectURL(raw string) (bucket string, object string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	switch {
	case u.Scheme == "gs":
		bucket, object = u.Host, strings.TrimPrefix(u.Path, "/")
	case u.Scheme == "https" && u.Host == publicHost:
		bucket, object, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	default:
		return "", "", fmt.Errorf("%w: %s", ErrInvalidReference, raw)
	}
	if bucket == "" || object == "" || strings.Contains(object, "..") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidReference, raw)
	}
	return bucket, object, nil
}
