package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/figwatch/figwatch/internal/poller"
)

type fakeRunner struct {
	result *poller.CycleResult
	err    error
	calls  int
}

func (f *fakeRunner) RunOnce(ctx context.Context) (*poller.CycleResult, error) {
	f.calls++
	return f.result, f.err
}

func TestTriggerPollWithoutPoller(t *testing.T) {
	router := NewRouter(Deps{Watch: &fakeWatch{}}, Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerPollReturnsCycleResult(t *testing.T) {
	runner := &fakeRunner{
		result: &poller.CycleResult{
			StartedAt:      time.Now(),
			CompletedAt:    time.Now(),
			VersionChanges: 2,
			JobsDispatched: 3,
		},
	}
	router := NewRouter(Deps{Watch: &fakeWatch{}, Poller: runner}, Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, runner.calls)
	require.Contains(t, rec.Body.String(), `"version_changes":2`)
	require.Contains(t, rec.Body.String(), `"jobs_dispatched":3`)
}

func TestTriggerPollSurfacesRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("poller is missing a dispatcher")}
	router := NewRouter(Deps{Watch: &fakeWatch{}, Poller: runner}, Config{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/poll", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "dispatcher")
}
