package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/store"
)

type fakeCommentFetcher struct {
	mu       sync.Mutex
	comments map[string][]figma.Comment
	errs     map[string]error
}

func newFakeCommentFetcher() *fakeCommentFetcher {
	return &fakeCommentFetcher{
		comments: make(map[string][]figma.Comment),
		errs:     make(map[string]error),
	}
}

func (f *fakeCommentFetcher) FileComments(ctx context.Context, fileKey string) ([]figma.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[fileKey]; err != nil {
		return nil, err
	}
	return f.comments[fileKey], nil
}

func (f *fakeCommentFetcher) set(fileKey string, comments ...figma.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[fileKey] = comments
}

func (f *fakeCommentFetcher) fail(fileKey string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[fileKey] = err
}

type fakeCommentStore struct {
	mu      sync.Mutex
	state   store.CommentState
	saves   []store.CommentState
	loadErr error
	saveErr error
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{state: make(store.CommentState)}
}

func (f *fakeCommentStore) LoadComments(ctx context.Context) (store.CommentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.state, nil
}

func (f *fakeCommentStore) SaveComments(ctx context.Context, state store.CommentState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, state)
	f.state = state
	return nil
}

func (f *fakeCommentStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeCommentStore) lastSave() store.CommentState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

func comment(id, message string) figma.Comment {
	return figma.Comment{ID: id, Message: message}
}

func newTestCommentTracker(t *testing.T, fetcher *fakeCommentFetcher, fs *fakeCommentStore, logs *logRecorder) *CommentTracker {
	t.Helper()
	cfg := Config{}
	if logs != nil {
		cfg.Logf = logs.logf
	} else {
		cfg.Logf = func(string, ...any) {}
	}
	tr, err := NewCommentTracker(context.Background(), fetcher, fs, cfg)
	require.NoError(t, err)
	return tr
}

func commentIDs(comments []figma.Comment) []string {
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestCommentTrackSeedsSeenSet(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.True(t, tr.IsTracked("abc"))
	require.Equal(t, []string{"c1", "c2"}, fs.lastSave()["abc"])

	// Everything present at track time is already seen.
	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, news)
}

func TestCommentCheckOneReportsNewCommentsOnce(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))

	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, commentIDs(news))

	news, err = tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, news)
}

func TestCommentCheckPreservesFetchOrder(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc")
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.set("abc", comment("c9", "latest"), comment("c2", "older"), comment("c5", "middle"))

	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c9", "c2", "c5"}, commentIDs(news))
}

func TestCommentRetrackMergesAndNeverShrinks(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))

	// c1 was deleted upstream; re-tracking must not forget it.
	fetcher.set("abc", comment("c2", "second"), comment("c3", "third"))
	require.NoError(t, tr.Track(ctx, "abc"))
	require.Equal(t, []string{"c1", "c2", "c3"}, fs.lastSave()["abc"])

	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, news)
}

func TestCommentCheckSkipsEmptyIDs(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc")
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.set("abc", figma.Comment{Message: "no id"}, comment("c1", "real"))

	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c1"}, commentIDs(news))
}

func TestCommentCheckUntrackedWarnsAndReturnsEmpty(t *testing.T) {
	logs := &logRecorder{}
	tr := newTestCommentTracker(t, newFakeCommentFetcher(), newFakeCommentStore(), logs)

	news, err := tr.CheckOne(context.Background(), "ghost")
	require.NoError(t, err)
	require.Empty(t, news)
	require.True(t, logs.contains("ghost"))
}

func TestCommentCheckFetchFailureKeepsSeenSet(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	fetcher.fail("abc", errors.New("api down"))

	_, err := tr.CheckOne(ctx, "abc")
	require.Error(t, err)

	fetcher.fail("abc", nil)
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))
	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, commentIDs(news))
}

func TestCommentTrackFetchFailureLeavesUntracked(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.fail("abc", errors.New("api down"))
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, fetcher, fs, nil)

	require.Error(t, tr.Track(context.Background(), "abc"))
	require.False(t, tr.IsTracked("abc"))
	require.Zero(t, fs.saveCount())
}

func TestCommentResetTrackingClearsSeenSet(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))

	wasTracked, err := tr.ResetTracking(ctx, "abc")
	require.NoError(t, err)
	require.True(t, wasTracked)
	require.Empty(t, fs.lastSave()["abc"])
	require.Zero(t, tr.SeenCount("abc"))

	// Every current comment now counts as new again.
	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, commentIDs(news))
}

func TestCommentResetTrackingUnknownReportsFalse(t *testing.T) {
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, newFakeCommentFetcher(), fs, nil)

	wasTracked, err := tr.ResetTracking(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, wasTracked)
	require.Zero(t, fs.saveCount())
}

func TestCommentUntrackForgetsSeenSet(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Untrack(ctx, "abc"))
	require.False(t, tr.IsTracked("abc"))
	require.NoError(t, tr.Untrack(ctx, "abc"))
}

func TestCommentCheckAllRestrictsToFilesWithNews(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	fetcher.set("def", comment("d1", "first"))
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Track(ctx, "def"))
	fetcher.set("def", comment("d1", "first"), comment("d2", "second"))

	news := tr.CheckAll(ctx)
	require.Len(t, news, 1)
	require.Equal(t, []string{"d2"}, commentIDs(news["def"]))
}

func TestCommentCheckAllSkipsFailedFetch(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	fetcher.set("def", comment("d1", "first"))
	logs := &logRecorder{}
	tr := newTestCommentTracker(t, fetcher, newFakeCommentStore(), logs)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	require.NoError(t, tr.Track(ctx, "def"))
	fetcher.fail("abc", errors.New("api down"))
	fetcher.set("def", comment("d1", "first"), comment("d2", "second"))

	news := tr.CheckAll(ctx)
	require.Len(t, news, 1)
	require.Equal(t, []string{"d2"}, commentIDs(news["def"]))
	require.True(t, logs.contains("abc"))
}

func TestCommentCheckWithoutNewsDoesNotSave(t *testing.T) {
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"))
	fs := newFakeCommentStore()
	tr := newTestCommentTracker(t, fetcher, fs, nil)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, "abc"))
	saves := fs.saveCount()

	news, err := tr.CheckOne(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, news)
	require.Equal(t, saves, fs.saveCount())
}

func TestCommentNewRestoresSeenSets(t *testing.T) {
	fs := newFakeCommentStore()
	fs.state["abc"] = []string{"c1"}
	fetcher := newFakeCommentFetcher()
	fetcher.set("abc", comment("c1", "first"), comment("c2", "second"))
	tr := newTestCommentTracker(t, fetcher, fs, nil)

	news, err := tr.CheckOne(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, []string{"c2"}, commentIDs(news))
}
