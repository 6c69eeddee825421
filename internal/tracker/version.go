package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/figwatch/figwatch/internal/store"
)

// VersionFetcher returns the current version stamp of a file.
type VersionFetcher interface {
	FileVersion(ctx context.Context, fileKey string) (string, error)
}

// VersionStore persists the version baselines.
type VersionStore interface {
	LoadVersions(ctx context.Context) (store.VersionState, error)
	SaveVersions(ctx context.Context, state store.VersionState) error
}

// VersionChange describes one observed version transition. Old is the
// stored baseline at check time; New is empty when the fetch failed.
type VersionChange struct {
	FileKey string `json:"file_key"`
	Old     string `json:"old"`
	New     string `json:"new"`
}

// VersionTracker remembers the last-seen version per tracked file and
// reports transitions. Versions are opaque strings; any difference from
// the baseline counts as a change.
type VersionTracker struct {
	fetcher      VersionFetcher
	store        VersionStore
	fetchTimeout time.Duration
	logf         func(string, ...any)

	mu       sync.Mutex
	versions store.VersionState
}

// NewVersionTracker loads the persisted baselines and returns a tracker
// over them.
func NewVersionTracker(ctx context.Context, fetcher VersionFetcher, st VersionStore, cfg Config) (*VersionTracker, error) {
	cfg = cfg.withDefaults()
	versions, err := st.LoadVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	if versions == nil {
		versions = make(store.VersionState)
	}
	return &VersionTracker{
		fetcher:      fetcher,
		store:        st,
		fetchTimeout: cfg.FetchTimeout,
		logf:         cfg.Logf,
		versions:     versions,
	}, nil
}

// Track fetches the file's current version and records it as the
// baseline. Tracking an already-tracked file is a no-op and does not
// refetch, so the stored baseline is never disturbed. A failed fetch
// leaves the file untracked.
func (t *VersionTracker) Track(ctx context.Context, fileKey string) error {
	t.mu.Lock()
	_, tracked := t.versions[fileKey]
	t.mu.Unlock()
	if tracked {
		return nil
	}

	version, err := t.fetchVersion(ctx, fileKey)
	if err != nil {
		return fmt.Errorf("fetch version for %s: %w", fileKey, err)
	}
	if version == "" {
		return fmt.Errorf("file %s returned an empty version", fileKey)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, tracked := t.versions[fileKey]; tracked {
		// A concurrent Track won the race; its baseline stands.
		return nil
	}
	t.versions[fileKey] = version
	if err := t.saveLocked(ctx); err != nil {
		t.logf("version snapshot save failed (state kept in memory): %v", err)
	}
	return nil
}

// Untrack forgets the file's baseline. Untracking an unknown file is a
// silent no-op.
func (t *VersionTracker) Untrack(ctx context.Context, fileKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, tracked := t.versions[fileKey]; !tracked {
		return nil
	}
	delete(t.versions, fileKey)
	if err := t.saveLocked(ctx); err != nil {
		t.logf("version snapshot save failed (state kept in memory): %v", err)
	}
	return nil
}

// CheckOne fetches the file's current version and compares it with the
// baseline. On a change the baseline advances (and is written through)
// before the change is reported. A failed fetch reports no change, keeps
// the baseline, and returns the error. Checking an untracked file logs a
// warning and reports no change.
func (t *VersionTracker) CheckOne(ctx context.Context, fileKey string) (VersionChange, bool, error) {
	t.mu.Lock()
	old, tracked := t.versions[fileKey]
	t.mu.Unlock()

	change := VersionChange{FileKey: fileKey, Old: old}
	if !tracked {
		t.logf("version check requested for untracked file %s", fileKey)
		return change, false, nil
	}

	current, err := t.fetchVersion(ctx, fileKey)
	if err != nil {
		return change, false, fmt.Errorf("fetch version for %s: %w", fileKey, err)
	}
	change.New = current

	t.mu.Lock()
	defer t.mu.Unlock()
	stored, tracked := t.versions[fileKey]
	if !tracked {
		// Untracked while the fetch was in flight.
		return VersionChange{FileKey: fileKey}, false, nil
	}
	change.Old = stored
	if current == stored {
		return change, false, nil
	}
	t.versions[fileKey] = current
	if err := t.saveLocked(ctx); err != nil {
		t.logf("version snapshot save failed (state kept in memory): %v", err)
	}
	return change, true, nil
}

// CheckAll runs CheckOne over a snapshot of the tracked set and returns
// the changes. Fetch failures are logged and skipped; they never reset a
// baseline.
func (t *VersionTracker) CheckAll(ctx context.Context) []VersionChange {
	var changes []VersionChange
	for _, fileKey := range t.Tracked() {
		change, changed, err := t.CheckOne(ctx, fileKey)
		if err != nil {
			t.logf("version check for %s failed: %v", fileKey, err)
			continue
		}
		if changed {
			changes = append(changes, change)
		}
	}
	return changes
}

// Tracked returns the tracked file keys, sorted.
func (t *VersionTracker) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.versions))
	for key := range t.versions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsTracked reports whether the file has a baseline.
func (t *VersionTracker) IsTracked(fileKey string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, tracked := t.versions[fileKey]
	return tracked
}

// BaselineVersion returns the stored version stamp for the file, if any.
func (t *VersionTracker) BaselineVersion(fileKey string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	version, tracked := t.versions[fileKey]
	return version, tracked
}

func (t *VersionTracker) fetchVersion(ctx context.Context, fileKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()
	return t.fetcher.FileVersion(ctx, fileKey)
}

func (t *VersionTracker) saveLocked(ctx context.Context) error {
	snapshot := make(store.VersionState, len(t.versions))
	for key, version := range t.versions {
		snapshot[key] = version
	}
	return t.store.SaveVersions(ctx, snapshot)
}
