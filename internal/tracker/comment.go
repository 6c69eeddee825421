package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/store"
)

// CommentFetcher lists the comments currently on a file.
type CommentFetcher interface {
	FileComments(ctx context.Context, fileKey string) ([]figma.Comment, error)
}

// CommentStore persists the seen-comment sets.
type CommentStore interface {
	LoadComments(ctx context.Context) (store.CommentState, error)
	SaveComments(ctx context.Context, state store.CommentState) error
}

// CommentTracker remembers which comment IDs have been seen per tracked
// file and reports comments that appear with an unseen ID. Seen-sets only
// ever grow; a comment deleted upstream stays seen and is never
// re-reported.
type CommentTracker struct {
	fetcher      CommentFetcher
	store        CommentStore
	fetchTimeout time.Duration
	logf         func(string, ...any)

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewCommentTracker loads the persisted seen-sets and returns a tracker
// over them.
func NewCommentTracker(ctx context.Context, fetcher CommentFetcher, st CommentStore, cfg Config) (*CommentTracker, error) {
	cfg = cfg.withDefaults()
	state, err := st.LoadComments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	seen := make(map[string]map[string]struct{}, len(state))
	for fileKey, ids := range state {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		seen[fileKey] = set
	}
	return &CommentTracker{
		fetcher:      fetcher,
		store:        st,
		fetchTimeout: cfg.FetchTimeout,
		logf:         cfg.Logf,
		seen:         seen,
	}, nil
}

// Track fetches the file's current comments and marks their IDs as seen,
// so only comments arriving after this point are reported. Tracking an
// already-tracked file merges the fetched IDs into the existing set; the
// set never shrinks.
func (t *CommentTracker) Track(ctx context.Context, fileKey string) error {
	comments, err := t.fetchComments(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("fetch comments for %s: %w", fileKey, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.seen[fileKey]
	if set == nil {
		set = make(map[string]struct{}, len(comments))
		t.seen[fileKey] = set
	}
	for _, comment := range comments {
		if comment.ID == "" {
			continue
		}
		set[comment.ID] = struct{}{}
	}
	if err := t.saveLocked(ctx); err != nil {
		t.logf("comment snapshot save failed (state kept in memory): %v", err)
	}
	return nil
}

// Untrack forgets the file's seen-set. Untracking an unknown file is a
// silent no-op.
func (t *CommentTracker) Untrack(ctx context.Context, fileKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, tracked := t.seen[fileKey]; !tracked {
		return nil
	}
	delete(t.seen, fileKey)
	if err := t.saveLocked(ctx); err != nil {
		t.logf("comment snapshot save failed (state kept in memory): %v", err)
	}
	return nil
}

// CheckOne fetches the file's comments and returns the ones whose ID has
// not been seen, in fetch order. The new IDs join the seen-set (written
// through when anything new appeared) before the call returns. Checking
// an untracked file logs a warning and returns nothing.
func (t *CommentTracker) CheckOne(ctx context.Context, fileKey string) ([]figma.Comment, error) {
	t.mu.Lock()
	_, tracked := t.seen[fileKey]
	t.mu.Unlock()
	if !tracked {
		t.logf("comment check requested for untracked file %s", fileKey)
		return nil, nil
	}

	comments, err := t.fetchComments(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch comments for %s: %w", fileKey, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	set, tracked := t.seen[fileKey]
	if !tracked {
		// Untracked while the fetch was in flight.
		return nil, nil
	}
	var news []figma.Comment
	for _, comment := range comments {
		if comment.ID == "" {
			continue
		}
		if _, ok := set[comment.ID]; ok {
			continue
		}
		set[comment.ID] = struct{}{}
		news = append(news, comment)
	}
	if len(news) > 0 {
		if err := t.saveLocked(ctx); err != nil {
			t.logf("comment snapshot save failed (state kept in memory): %v", err)
		}
	}
	return news, nil
}

// CheckAll runs CheckOne over a snapshot of the tracked set and returns a
// map holding only the files with new comments. Fetch failures are logged
// and skipped.
func (t *CommentTracker) CheckAll(ctx context.Context) map[string][]figma.Comment {
	news := make(map[string][]figma.Comment)
	for _, fileKey := range t.Tracked() {
		comments, err := t.CheckOne(ctx, fileKey)
		if err != nil {
			t.logf("comment check for %s failed: %v", fileKey, err)
			continue
		}
		if len(comments) > 0 {
			news[fileKey] = comments
		}
	}
	return news
}

// ResetTracking clears the file's seen-set to empty, so every current
// comment counts as new on the next check. It reports whether the file
// was tracked.
func (t *CommentTracker) ResetTracking(ctx context.Context, fileKey string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, tracked := t.seen[fileKey]; !tracked {
		return false, nil
	}
	t.seen[fileKey] = make(map[string]struct{})
	return true, t.saveLocked(ctx)
}

// Tracked returns the tracked file keys, sorted.
func (t *CommentTracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.seen))
	for key := range t.seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsTracked reports whether the file has a seen-set.
func (t *CommentTracker) IsTracked(fileKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, tracked := t.seen[fileKey]
	return tracked
}

// SeenCount returns the size of the file's seen-set.
func (t *CommentTracker) SeenCount(fileKey string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen[fileKey])
}

func (t *CommentTracker) fetchComments(ctx context.Context, fileKey string) ([]figma.Comment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()
	return t.fetcher.FileComments(ctx, fileKey)
}

func (t *CommentTracker) saveLocked(ctx context.Context) error {
	snapshot := make(store.CommentState, len(t.seen))
	for fileKey, set := range t.seen {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		snapshot[fileKey] = ids
	}
	return t.store.SaveComments(ctx, snapshot)
}
