package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/figwatch/figwatch/internal/store"
)

type fakeVersionFetcher struct {
	mu       sync.Mutex
	versions map[string]string
	errs     map[string]error
	calls    map[string]int
}

func newFakeVersionFetcher() *fakeVersionFetcher {
	return &fakeVersionFetcher{
		versions: make(map[string]string),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeVersionFetcher) FileVersion(ctx context.Context, fileKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[fileKey]++
	if err := f.errs[fileKey]; err != nil {
		return "", err
	}
	return f.versions[fileKey], nil
}

func (f *fakeVersionFetcher) set(fileKey, version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[fileKey] = version
}

func (f *fakeVersionFetcher) fail(fileKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[fileKey] = err
}

func (f *fakeVersionFetcher) callCount(fileKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fileKey]
}

type fakeVersionStore struct {
	mu      sync.Mutex
	state   store.VersionState
	saves   []store.VersionState
	loadErr error
	saveErr error
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{state: make(store.VersionState)}
}

func (f *fakeVersionStore) LoadVersions(ctx context.Context) (store.VersionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.state, nil
}

func (f *fakeVersionStore) SaveVersions(ctx context.Context, state store.VersionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, state)
	f.state = state
	return nil
}

func (f *fakeVersionStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeVersionStore) lastSave() store.VersionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logRecorder) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newTestVersionTracker(t *testing.T, fetcher *fakeVersionFetcher, fs *fakeVersionStore, logs *logRecorder) *VersionTracker {
	t.Helper()
	cfg := Config{}
	if logs != nil {
		cfg.Logf = logs.logf
	} else {
		cfg.Logf = func(string, ...any) {}
	}
	tr, err := NewVersionTracker(context.Background(), fetcher, fs, cfg)
	require.NoError(t, err)
	return tr
}

func TestVersionTrackSetsBaseline(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	fs := newFakeVersionStore()
	tr := newTestVersionTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.True(t, tr.IsTracked("abc"))
	require.Equal(t, store.VersionState{"abc": "100"}, fs.lastSave())

	change, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "100", change.Old)
	require.Equal(t, "100", change.New)
}

func TestVersionTrackTwiceNeverRefetches(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.set("abc", "101")
	require.NoError(t, tr.Track(ctx, "abc"))
	require.Equal(t, 1, fetcher.callCount("abc"))

	// The baseline stayed at the first observation, so the bump shows up
	// as a change.
	change, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "100", change.Old)
	require.Equal(t, "101", change.New)
}

func TestVersionCheckOneReportsTransitionOnce(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	fs := newFakeVersionStore()
	tr := newTestVersionTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.set("abc", "101")

	change, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, VersionChange{FileKey: "abc", Old: "100", New: "101"}, change)
	require.Equal(t, store.VersionState{"abc": "101"}, fs.lastSave())

	_, changed, err = tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestVersionCheckTreatsAnyDifferenceAsChange(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "200")
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))

	// A revert to a lower stamp still counts; comparison is pure string
	// inequality.
	fetcher.set("abc", "100")
	change, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "200", change.Old)
	require.Equal(t, "100", change.New)
}

func TestVersionCheckFetchFailureKeepsBaseline(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.fail("abc", errors.New("api down"))

	change, changed, err := tr.CheckOne(ctx, "abc")
	require.Error(t, err)
	require.False(t, changed)
	require.Equal(t, "100", change.Old)
	require.Empty(t, change.New)

	// Recovery reports the change against the untouched baseline.
	fetcher.fail("abc", nil)
	fetcher.set("abc", "101")
	change, changed, err = tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "100", change.Old)
	require.Equal(t, "101", change.New)
}

func TestVersionCheckUntrackedWarnsInsteadOfFailing(t *testing.T) {
	logs := &logRecorder{}
	tr := newTestVersionTracker(t, newFakeVersionFetcher(), newFakeVersionStore(), logs)

	_, changed, err := tr.CheckOne(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, changed)
	require.True(t, logs.contains("ghost"))
}

func TestVersionTrackFetchFailureLeavesUntracked(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.fail("abc", errors.New("api down"))
	fs := newFakeVersionStore()
	tr := newTestVersionTracker(t, fetcher, fs, nil)

	require.Error(t, tr.Track(context.Background(), "abc"))
	require.False(t, tr.IsTracked("abc"))
	require.Zero(t, fs.saveCount())
}

func TestVersionUntrackThenTrackRebaselines(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Untrack(ctx, "abc"))
	require.False(t, tr.IsTracked("abc"))

	fetcher.set("abc", "101")
	require.NoError(t, tr.Track(ctx, "abc"))

	_, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestVersionUntrackUnknownIsSilentNoOp(t *testing.T) {
	fs := newFakeVersionStore()
	tr := newTestVersionTracker(t, newFakeVersionFetcher(), fs, nil)

	require.NoError(t, tr.Untrack(context.Background(), "ghost"))
	require.Zero(t, fs.saveCount())
}

func TestVersionCheckAllReturnsOnlyChanges(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	fetcher.set("def", "200")
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Track(ctx, "def"))
	fetcher.set("def", "201")

	changes := tr.CheckAll(ctx)
	require.Equal(t, []VersionChange{{FileKey: "def", Old: "200", New: "201"}}, changes)
}

func TestVersionCheckAllSkipsFailedFetch(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	fetcher.set("def", "200")
	logs := &logRecorder{}
	tr := newTestVersionTracker(t, fetcher, newFakeVersionStore(), logs)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Track(ctx, "def"))
	fetcher.fail("abc", errors.New("api down"))
	fetcher.set("def", "201")

	changes := tr.CheckAll(ctx)
	require.Equal(t, []VersionChange{{FileKey: "def", Old: "200", New: "201"}}, changes)
	require.True(t, logs.contains("abc"))

	// The failed file's baseline is intact for the next sweep.
	fetcher.fail("abc", nil)
	fetcher.set("abc", "101")
	changes = tr.CheckAll(ctx)
	require.Equal(t, []VersionChange{{FileKey: "abc", Old: "100", New: "101"}}, changes)
}

func TestVersionSaveFailureStillReportsChange(t *testing.T) {
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "100")
	fs := newFakeVersionStore()
	logs := &logRecorder{}
	tr := newTestVersionTracker(t, fetcher, fs, logs)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fs.saveErr = errors.New("disk full")
	fetcher.set("abc", "101")

	change, changed, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "101", change.New)
	require.True(t, logs.contains("save failed"))

	// The in-memory baseline advanced, so the change is not re-reported.
	_, changed, err = tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestVersionNewRestoresBaselines(t *testing.T) {
	fs := newFakeVersionStore()
	fs.state["abc"] = "100"
	fetcher := newFakeVersionFetcher()
	fetcher.set("abc", "101")
	tr := newTestVersionTracker(t, fetcher, fs, nil)

	change, changed, err := tr.CheckOne(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "100", change.Old)
}
