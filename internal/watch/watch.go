// Package watch is the command layer over the registry and the trackers.
// It implements the subscribe/unsubscribe flows shared by every frontend:
// validate the file, fix the tracking baseline, then record the edge, and
// on the way out garbage-collect trackers nobody watches anymore.
package watch

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/registry"
	"github.com/figwatch/figwatch/internal/tracker"
)

// MetadataClient looks up file metadata for validation and display.
type MetadataClient interface {
	GetFile(ctx context.Context, fileKey string) (*figma.File, error)
}

// Config carries the service knobs.
type Config struct {
	// AutoSubscribeComments also subscribes new update-watchers to the
	// file's comments.
	AutoSubscribeComments bool
	// Logf receives soft failures. Nil means log.Printf.
	Logf func(string, ...any)
}

// Service wires the subscription registry and the two trackers into the
// user-facing operations. Persistence failures inside these flows are
// soft: the in-memory state is authoritative, the failure is logged, and
// the operation still succeeds.
type Service struct {
	registry *registry.Registry
	versions *tracker.VersionTracker
	comments *tracker.CommentTracker
	files    MetadataClient

	autoComments bool
	logf         func(string, ...any)
}

func New(reg *registry.Registry, versions *tracker.VersionTracker, comments *tracker.CommentTracker, files MetadataClient, cfg Config) *Service {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Service{
		registry:     reg,
		versions:     versions,
		comments:     comments,
		files:        files,
		autoComments: cfg.AutoSubscribeComments,
		logf:         cfg.Logf,
	}
}

// SubscribeResult describes a completed subscription.
type SubscribeResult struct {
	FileKey           string `json:"file_key"`
	FileName          string `json:"file_name"`
	Version           string `json:"version"`
	AlreadySubscribed bool   `json:"already_subscribed"`
	AutoComments      bool   `json:"auto_comments"`
	SeenComments      int    `json:"seen_comments,omitempty"`
}

// Subscribe validates the file, fixes its version baseline, and records
// the update edge. With auto-comments on it also starts comment tracking
// for the subscriber; a comment-side failure downgrades the subscription
// instead of failing it.
func (s *Service) Subscribe(ctx context.Context, subscriber, fileKey string) (*SubscribeResult, error) {
	file, err := s.files.GetFile(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("look up file %s: %w", fileKey, err)
	}

	// Baseline before edge: a cycle that runs in between sees the file
	// tracked but nobody subscribed, so nothing fires.
	if err := s.versions.Track(ctx, fileKey); err != nil {
		return nil, err
	}

	result := &SubscribeResult{
		FileKey:           fileKey,
		FileName:          file.Name,
		AlreadySubscribed: s.registry.IsSubscribedUpdate(subscriber, fileKey),
	}
	if err := s.registry.AddUpdateSubscription(ctx, subscriber, fileKey); err != nil {
		s.logf("subscription save for %s failed (state kept in memory): %v", subscriber, err)
	}
	if version, ok := s.versions.BaselineVersion(fileKey); ok {
		result.Version = version
	}

	if s.autoComments {
		if err := s.subscribeComments(ctx, subscriber, fileKey); err != nil {
			s.logf("auto comment subscription for %s on %s failed: %v", subscriber, fileKey, err)
		} else {
			result.AutoComments = true
			result.SeenComments = s.comments.SeenCount(fileKey)
		}
	}
	return result, nil
}

// Unsubscribe removes the update edge and reports whether it existed. The
// comment edge for the same file goes with it, and trackers nobody
// watches anymore are untracked.
func (s *Service) Unsubscribe(ctx context.Context, subscriber, fileKey string) bool {
	removed, err := s.registry.RemoveUpdateSubscription(ctx, subscriber, fileKey)
	if err != nil {
		s.logf("subscription save for %s failed (state kept in memory): %v", subscriber, err)
	}
	if !removed {
		return false
	}
	if !s.registry.HasAnyUpdateSubscriber(fileKey) {
		if err := s.versions.Untrack(ctx, fileKey); err != nil {
			s.logf("untrack versions for %s failed: %v", fileKey, err)
		}
	}

	hadComments, err := s.registry.RemoveCommentSubscription(ctx, subscriber, fileKey)
	if err != nil {
		s.logf("subscription save for %s failed (state kept in memory): %v", subscriber, err)
	}
	if hadComments && !s.registry.HasAnyCommentSubscriber(fileKey) {
		if err := s.comments.Untrack(ctx, fileKey); err != nil {
			s.logf("untrack comments for %s failed: %v", fileKey, err)
		}
	}
	return true
}

// CommentSubscribeResult describes a completed comment subscription.
type CommentSubscribeResult struct {
	FileKey           string `json:"file_key"`
	FileName          string `json:"file_name"`
	AlreadySubscribed bool   `json:"already_subscribed"`
	SeenComments      int    `json:"seen_comments"`
}

// SubscribeComments validates the file, seeds its seen-comment set, and
// records the comment edge. It does not require an update subscription;
// comment-only watchers are fine.
func (s *Service) SubscribeComments(ctx context.Context, subscriber, fileKey string) (*CommentSubscribeResult, error) {
	file, err := s.files.GetFile(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("look up file %s: %w", fileKey, err)
	}

	result := &CommentSubscribeResult{
		FileKey:           fileKey,
		FileName:          file.Name,
		AlreadySubscribed: s.registry.IsSubscribedComments(subscriber, fileKey),
	}
	if err := s.subscribeComments(ctx, subscriber, fileKey); err != nil {
		return nil, err
	}
	result.SeenComments = s.comments.SeenCount(fileKey)
	return result, nil
}

func (s *Service) subscribeComments(ctx context.Context, subscriber, fileKey string) error {
	if err := s.comments.Track(ctx, fileKey); err != nil {
		return err
	}
	if err := s.registry.AddCommentSubscription(ctx, subscriber, fileKey); err != nil {
		s.logf("subscription save for %s failed (state kept in memory): %v", subscriber, err)
	}
	return nil
}

// UnsubscribeComments removes the comment edge and reports whether it
// existed. The update subscription, if any, is untouched.
func (s *Service) UnsubscribeComments(ctx context.Context, subscriber, fileKey string) bool {
	removed, err := s.registry.RemoveCommentSubscription(ctx, subscriber, fileKey)
	if err != nil {
		s.logf("subscription save for %s failed (state kept in memory): %v", subscriber, err)
	}
	if !removed {
		return false
	}
	if !s.registry.HasAnyCommentSubscriber(fileKey) {
		if err := s.comments.Untrack(ctx, fileKey); err != nil {
			s.logf("untrack comments for %s failed: %v", fileKey, err)
		}
	}
	return true
}

// ResetComments clears the file's seen-comment set so every current
// comment is reported again on the next sweep. It requires an existing
// comment subscription.
func (s *Service) ResetComments(ctx context.Context, subscriber, fileKey string) bool {
	if !s.registry.IsSubscribedComments(subscriber, fileKey) {
		return false
	}
	wasTracked, err := s.comments.ResetTracking(ctx, fileKey)
	if err != nil {
		s.logf("comment snapshot save for %s failed (state kept in memory): %v", fileKey, err)
	}
	if !wasTracked {
		s.logf("comment subscription for %s exists but %s is not tracked", subscriber, fileKey)
	}
	return wasTracked
}

// Subscription is one row of a subscriber's watch list.
type Subscription struct {
	FileKey      string `json:"file_key"`
	FileName     string `json:"file_name,omitempty"`
	Version      string `json:"version,omitempty"`
	Updates      bool   `json:"updates"`
	Comments     bool   `json:"comments"`
	SeenComments int    `json:"seen_comments,omitempty"`
}

// List returns the subscriber's watch list across both classes, enriched
// with the file name and tracked state. A metadata failure degrades that
// row to the bare key instead of dropping it.
func (s *Service) List(ctx context.Context, subscriber string) []Subscription {
	keys := make(map[string]bool)
	for _, fileKey := range s.registry.UpdateFilesOf(subscriber) {
		keys[fileKey] = true
	}
	for _, fileKey := range s.registry.CommentFilesOf(subscriber) {
		keys[fileKey] = true
	}
	sorted := make([]string, 0, len(keys))
	for fileKey := range keys {
		sorted = append(sorted, fileKey)
	}
	sort.Strings(sorted)

	subscriptions := make([]Subscription, 0, len(sorted))
	for _, fileKey := range sorted {
		sub := Subscription{
			FileKey:  fileKey,
			Updates:  s.registry.IsSubscribedUpdate(subscriber, fileKey),
			Comments: s.registry.IsSubscribedComments(subscriber, fileKey),
		}
		if version, ok := s.versions.BaselineVersion(fileKey); ok {
			sub.Version = version
		}
		if sub.Comments {
			sub.SeenComments = s.comments.SeenCount(fileKey)
		}
		if file, err := s.files.GetFile(ctx, fileKey); err != nil {
			s.logf("metadata fetch for %s failed, listing bare key: %v", fileKey, err)
		} else {
			sub.FileName = file.Name
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions
}

// ResetFileComments clears the file's seen-comment set regardless of who
// is subscribed. This is the ops path; chat subscribers go through
// ResetComments. It reports whether the file was tracked at all.
func (s *Service) ResetFileComments(ctx context.Context, fileKey string) bool {
	wasTracked, err := s.comments.ResetTracking(ctx, fileKey)
	if err != nil {
		s.logf("comment snapshot save for %s failed (state kept in memory): %v", fileKey, err)
	}
	return wasTracked
}

// FileStatus is one tracked file as the ops surfaces see it.
type FileStatus struct {
	FileKey            string `json:"file_key"`
	Version            string `json:"version,omitempty"`
	TrackedVersions    bool   `json:"tracked_versions"`
	TrackedComments    bool   `json:"tracked_comments"`
	SeenComments       int    `json:"seen_comments,omitempty"`
	UpdateSubscribers  int    `json:"update_subscribers"`
	CommentSubscribers int    `json:"comment_subscribers"`
}

// Files lists every tracked file across both trackers with its baseline
// state and subscriber counts, sorted by key.
func (s *Service) Files() []FileStatus {
	keys := make(map[string]bool)
	for _, fileKey := range s.versions.Tracked() {
		keys[fileKey] = true
	}
	for _, fileKey := range s.comments.Tracked() {
		keys[fileKey] = true
	}
	sorted := make([]string, 0, len(keys))
	for fileKey := range keys {
		sorted = append(sorted, fileKey)
	}
	sort.Strings(sorted)

	files := make([]FileStatus, 0, len(sorted))
	for _, fileKey := range sorted {
		status := FileStatus{
			FileKey:            fileKey,
			TrackedVersions:    s.versions.IsTracked(fileKey),
			TrackedComments:    s.comments.IsTracked(fileKey),
			UpdateSubscribers:  len(s.registry.UpdateSubscribersOf(fileKey)),
			CommentSubscribers: len(s.registry.CommentSubscribersOf(fileKey)),
		}
		if version, ok := s.versions.BaselineVersion(fileKey); ok {
			status.Version = version
		}
		if status.TrackedComments {
			status.SeenComments = s.comments.SeenCount(fileKey)
		}
		files = append(files, status)
	}
	return files
}

// Overview summarizes the watcher state for the status endpoint.
type Overview struct {
	TrackedVersionFiles int `json:"tracked_version_files"`
	TrackedCommentFiles int `json:"tracked_comment_files"`
	UpdateSubscribers   int `json:"update_subscribers"`
	CommentSubscribers  int `json:"comment_subscribers"`
}

func (s *Service) Overview() Overview {
	snapshot := s.registry.Snapshot()
	return Overview{
		TrackedVersionFiles: len(s.versions.Tracked()),
		TrackedCommentFiles: len(s.comments.Tracked()),
		UpdateSubscribers:   len(snapshot.Updates),
		CommentSubscribers:  len(snapshot.Comments),
	}
}
