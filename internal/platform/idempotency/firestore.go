package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vastra-market/api/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

type firestoreRecord struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Status         string              `firestore:"status"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader"`
	ResponseBody   []byte              `firestore:"responseBody"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:            r.Key,
		Fingerprint:    r.Fingerprint,
		Status:         Status(r.Status),
		ResponseStatus: r.ResponseStatus,
		ResponseHeader: http.Header(r.ResponseHeader),
		ResponseBody:   r.ResponseBody,
		ExpiresAt:      r.ExpiresAt,
	}
}

// FirestoreStore keeps idempotency records in the idempotency_keys collection.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[firestoreRecord]
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewCollection[firestoreRecord](provider, defaultCollection),
	}
}

// Reserve creates a pending record inside a transaction unless a live record already exists.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Record, bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := documentID(key)

	var (
		result  Record
		created bool
	)
	err := s.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		doc, err := s.records.Get(txCtx, id)
		switch {
		case err == nil && now.Before(doc.Data.ExpiresAt):
			if doc.Data.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			result, created = doc.Data.toRecord(), false
			return nil
		case err != nil && !isNotFound(err):
			return err
		}

		pending := firestoreRecord{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      string(StatusPending),
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl),
		}
		result, created = pending.toRecord(), true
		return s.records.Set(txCtx, id, pending)
	})
	if err != nil {
		return Record{}, false, err
	}
	return result, created, nil
}

// Complete stores the final response for replay.
func (s *FirestoreStore) Complete(ctx context.Context, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.records.Set(ctx, documentID(record.Key), firestoreRecord{
		Key:            record.Key,
		Fingerprint:    record.Fingerprint,
		Status:         string(StatusCompleted),
		ResponseStatus: record.ResponseStatus,
		ResponseHeader: replayableHeaders(record.ResponseHeader),
		ResponseBody:   record.ResponseBody,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	})
}

// Release removes a reservation so the client may retry.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.records.Delete(ctx, documentID(key))
}

// CleanupExpired deletes up to limit expired records.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, doc := range docs {
		if err := s.records.Delete(ctx, doc.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isNotFound(err error) bool {
	var repoErr *pfirestore.Error
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
