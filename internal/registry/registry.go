// Package registry tracks which subscriber watches which file, separately
// for version updates and for comments. Both views over the edge set stay
// consistent, and every mutation is written through to the store before
// the call returns.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/figwatch/figwatch/internal/store"
)

// SubscriptionStore persists the registry snapshot.
type SubscriptionStore interface {
	LoadSubscriptions(ctx context.Context) (store.SubscriptionState, error)
	SaveSubscriptions(ctx context.Context, state store.SubscriptionState) error
}

// Registry holds the subscription edges for both notification classes.
// A subscriber can watch a file for updates, for comments, or both; the
// classes never affect each other.
type Registry struct {
	store SubscriptionStore

	mu       sync.Mutex
	updates  map[string]map[string]struct{}
	comments map[string]map[string]struct{}
}

// New loads the persisted subscription state and returns a registry over it.
func New(ctx context.Context, st SubscriptionStore) (*Registry, error) {
	state, err := st.LoadSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	r := &Registry{
		store:    st,
		updates:  inflate(state.Updates),
		comments: inflate(state.Comments),
	}
	return r, nil
}

func inflate(edges map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(edges))
	for subscriber, keys := range edges {
		set := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			set[key] = struct{}{}
		}
		out[subscriber] = set
	}
	return out
}

// AddUpdateSubscription subscribes subscriber to version updates for
// fileKey. Adding an existing edge is a no-op. On a persistence error the
// edge is kept in memory and the error is returned.
func (r *Registry) AddUpdateSubscription(ctx context.Context, subscriber, fileKey string) error {
	return r.add(ctx, r.updates, subscriber, fileKey)
}

// RemoveUpdateSubscription removes the update edge and reports whether it
// existed. Removing an absent edge does not touch the store.
func (r *Registry) RemoveUpdateSubscription(ctx context.Context, subscriber, fileKey string) (bool, error) {
	return r.remove(ctx, r.updates, subscriber, fileKey)
}

// IsSubscribedUpdate reports whether the update edge exists.
func (r *Registry) IsSubscribedUpdate(subscriber, fileKey string) bool {
	return r.isSubscribed(r.updates, subscriber, fileKey)
}

// UpdateFilesOf returns the file keys subscriber watches for updates,
// sorted.
func (r *Registry) UpdateFilesOf(subscriber string) []string {
	return r.filesOf(r.updates, subscriber)
}

// UpdateSubscribersOf returns the subscribers watching fileKey for
// updates, sorted.
func (r *Registry) UpdateSubscribersOf(fileKey string) []string {
	return r.subscribersOf(r.updates, fileKey)
}

// HasAnyUpdateSubscriber reports whether any subscriber watches fileKey
// for updates.
func (r *Registry) HasAnyUpdateSubscriber(fileKey string) bool {
	return r.hasAnySubscriber(r.updates, fileKey)
}

// AddCommentSubscription subscribes subscriber to new comments on fileKey.
func (r *Registry) AddCommentSubscription(ctx context.Context, subscriber, fileKey string) error {
	return r.add(ctx, r.comments, subscriber, fileKey)
}

// RemoveCommentSubscription removes the comment edge and reports whether
// it existed.
func (r *Registry) RemoveCommentSubscription(ctx context.Context, subscriber, fileKey string) (bool, error) {
	return r.remove(ctx, r.comments, subscriber, fileKey)
}

// IsSubscribedComments reports whether the comment edge exists.
func (r *Registry) IsSubscribedComments(subscriber, fileKey string) bool {
	return r.isSubscribed(r.comments, subscriber, fileKey)
}

// CommentFilesOf returns the file keys subscriber watches for comments,
// sorted.
func (r *Registry) CommentFilesOf(subscriber string) []string {
	return r.filesOf(r.comments, subscriber)
}

// CommentSubscribersOf returns the subscribers watching fileKey for
// comments, sorted.
func (r *Registry) CommentSubscribersOf(fileKey string) []string {
	return r.subscribersOf(r.comments, fileKey)
}

// HasAnyCommentSubscriber reports whether any subscriber watches fileKey
// for comments.
func (r *Registry) HasAnyCommentSubscriber(fileKey string) bool {
	return r.hasAnySubscriber(r.comments, fileKey)
}

// Snapshot returns the current edge set in persisted form, with sorted
// key lists.
func (r *Registry) Snapshot() store.SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) add(ctx context.Context, edges map[string]map[string]struct{}, subscriber, fileKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := edges[subscriber]
	if _, ok := set[fileKey]; ok {
		return nil
	}
	if set == nil {
		set = make(map[string]struct{})
		edges[subscriber] = set
	}
	set[fileKey] = struct{}{}
	return r.saveLocked(ctx)
}

func (r *Registry) remove(ctx context.Context, edges map[string]map[string]struct{}, subscriber, fileKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := edges[subscriber]
	if _, ok := set[fileKey]; !ok {
		return false, nil
	}
	delete(set, fileKey)
	if len(set) == 0 {
		delete(edges, subscriber)
	}
	return true, r.saveLocked(ctx)
}

func (r *Registry) isSubscribed(edges map[string]map[string]struct{}, subscriber, fileKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := edges[subscriber][fileKey]
	return ok
}

func (r *Registry) filesOf(edges map[string]map[string]struct{}, subscriber string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(edges[subscriber])
}

func (r *Registry) subscribersOf(edges map[string]map[string]struct{}, fileKey string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for subscriber, set := range edges {
		if _, ok := set[fileKey]; ok {
			out = append(out, subscriber)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) hasAnySubscriber(edges map[string]map[string]struct{}, fileKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, set := range edges {
		if _, ok := set[fileKey]; ok {
			return true
		}
	}
	return false
}

// saveLocked writes the full snapshot through to the store. Callers hold
// r.mu so saves are ordered the same way as the mutations they record.
func (r *Registry) saveLocked(ctx context.Context) error {
	return r.store.SaveSubscriptions(ctx, r.snapshotLocked())
}

func (r *Registry) snapshotLocked() store.SubscriptionState {
	state := store.NewSubscriptionState()
	for subscriber, set := range r.updates {
		state.Updates[subscriber] = sortedKeys(set)
	}
	for subscriber, set := range r.comments {
		state.Comments[subscriber] = sortedKeys(set)
	}
	return state
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
