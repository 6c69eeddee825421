// Package store persists the watcher state: subscription edges, version
// baselines, and comment seen-sets. Snapshots are written whole after every
// mutation and loaded once at startup.
package store

import (
	"context"
	"fmt"
)

// SubscriptionState is the persisted form of the subscription registry,
// keyed by subscriber with sorted file-key lists per class.
type SubscriptionState struct {
	Updates  map[string][]string `json:"updates"`
	Comments map[string][]string `json:"comments"`
}

// NewSubscriptionState returns an empty state with both maps allocated.
func NewSubscriptionState() SubscriptionState {
	return SubscriptionState{
		Updates:  make(map[string][]string),
		Comments: make(map[string][]string),
	}
}

// VersionState maps file key to the last-seen version stamp.
type VersionState map[string]string

// CommentState maps file key to the sorted list of seen comment IDs.
type CommentState map[string][]string

// StateStore is the durable backend for the three watcher snapshots.
type StateStore interface {
	LoadSubscriptions(ctx context.Context) (SubscriptionState, error)
	SaveSubscriptions(ctx context.Context, state SubscriptionState) error
	LoadVersions(ctx context.Context) (VersionState, error)
	SaveVersions(ctx context.Context, state VersionState) error
	LoadComments(ctx context.Context) (CommentState, error)
	SaveComments(ctx context.Context, state CommentState) error
}

// PersistenceError wraps a failed snapshot write. Callers keep their
// in-memory state on this error; only durability is lost.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
