package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const (
	bucketSubscriptions = "subscriptions"
	bucketVersions      = "versions"
	bucketComments      = "comments"
)

// PGStore keeps the snapshots in Postgres, one row per bucket in the
// figwatch_state table. Saves upsert the whole payload so the
// write-through model matches the file layout.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) LoadSubscriptions(ctx context.Context) (SubscriptionState, error) {
	state := NewSubscriptionState()
	if _, err := s.loadBucket(ctx, bucketSubscriptions, &state); err != nil {
		return SubscriptionState{}, err
	}
	if state.Updates == nil {
		state.Updates = make(map[string][]string)
	}
	if state.Comments == nil {
		state.Comments = make(map[string][]string)
	}
	return state, nil
}

func (s *PGStore) SaveSubscriptions(ctx context.Context, state SubscriptionState) error {
	return s.saveBucket(ctx, bucketSubscriptions, state)
}

func (s *PGStore) LoadVersions(ctx context.Context) (VersionState, error) {
	state := make(VersionState)
	if _, err := s.loadBucket(ctx, bucketVersions, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *PGStore) SaveVersions(ctx context.Context, state VersionState) error {
	return s.saveBucket(ctx, bucketVersions, state)
}

func (s *PGStore) LoadComments(ctx context.Context) (CommentState, error) {
	state := make(CommentState)
	if _, err := s.loadBucket(ctx, bucketComments, &state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *PGStore) SaveComments(ctx context.Context, state CommentState) error {
	return s.saveBucket(ctx, bucketComments, state)
}

func (s *PGStore) loadBucket(ctx context.Context, bucket string, out any) (bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM figwatch_state WHERE bucket = $1`, bucket,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", bucket, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", bucket, err)
	}
	return true, nil
}

func (s *PGStore) saveBucket(ctx context.Context, bucket string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &PersistenceError{Op: "encode " + bucket, Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO figwatch_state (bucket, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (bucket) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = NOW()
	`, bucket, payload)
	if err != nil {
		return &PersistenceError{Op: "save " + bucket, Err: err}
	}
	return nil
}
