// Package poller runs the recurring sweep that turns tracker diffs into
// per-subscriber notification jobs.
package poller

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/notify"
	"github.com/figwatch/figwatch/internal/pollstats"
	"github.com/figwatch/figwatch/internal/tracker"
)

const (
	defaultInterval     = 5 * time.Minute
	defaultInitialDelay = 10 * time.Second
	defaultFetchTimeout = 15 * time.Second
)

// VersionSweeper reports version changes across the tracked set.
type VersionSweeper interface {
	CheckAll(ctx context.Context) []tracker.VersionChange
}

// CommentSweeper reports new comments across the tracked set.
type CommentSweeper interface {
	CheckAll(ctx context.Context) map[string][]figma.Comment
}

// SubscriberDirectory resolves who gets told about a file's changes.
type SubscriberDirectory interface {
	UpdateSubscribersOf(fileKey string) []string
	CommentSubscribersOf(fileKey string) []string
}

// FileMetadata fetches display metadata for a changed file. GetFile
// failures skip the file's notifications; FileVersions failures only
// drop the who-and-when enrichment.
type FileMetadata interface {
	GetFile(ctx context.Context, fileKey string) (*figma.File, error)
	FileVersions(ctx context.Context, fileKey string) ([]figma.Version, error)
}

// Dispatcher delivers one notification job.
type Dispatcher interface {
	Deliver(ctx context.Context, job notify.Job) error
}

// CycleResult summarizes one completed poll cycle.
type CycleResult struct {
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	VersionChanges   int       `json:"version_changes"`
	NewComments      int       `json:"new_comments"`
	JobsDispatched   int       `json:"jobs_dispatched"`
	DeliveryFailures int       `json:"delivery_failures"`
	MetadataFailures int       `json:"metadata_failures"`
}

// Config carries the poll loop knobs.
type Config struct {
	// Interval between cycle starts. Zero means 5 minutes.
	Interval time.Duration
	// InitialDelay before the first cycle. Zero means 10 seconds.
	InitialDelay time.Duration
	// FetchTimeout bounds each metadata fetch. Zero means 15 seconds.
	FetchTimeout time.Duration
	// Logf receives cycle summaries and soft failures. Nil means log.Printf.
	Logf func(string, ...any)
}

// Poller orchestrates one sweep per tick: version diffs first, then
// comment diffs, fanning each change out as one job per subscriber.
// Cycles never overlap; RunOnce serializes against itself.
type Poller struct {
	Versions    VersionSweeper
	Comments    CommentSweeper
	Subscribers SubscriberDirectory
	Metadata    FileMetadata
	Dispatcher  Dispatcher

	interval     time.Duration
	initialDelay time.Duration
	fetchTimeout time.Duration
	logf         func(string, ...any)

	runMu     sync.Mutex
	now       func() time.Time
	newTicker func(interval time.Duration) intervalTicker
	newID     func() string
}

type intervalTicker interface {
	C() <-chan time.Time
	Stop()
}

type stdIntervalTicker struct {
	ticker *time.Ticker
}

func (t stdIntervalTicker) C() <-chan time.Time { return t.ticker.C }
func (t stdIntervalTicker) Stop()               { t.ticker.Stop() }

func New(
	versions VersionSweeper,
	comments CommentSweeper,
	subscribers SubscriberDirectory,
	metadata FileMetadata,
	dispatcher Dispatcher,
	cfg Config,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Poller{
		Versions:     versions,
		Comments:     comments,
		Subscribers:  subscribers,
		Metadata:     metadata,
		Dispatcher:   dispatcher,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
		fetchTimeout: cfg.FetchTimeout,
		logf:         cfg.Logf,
		now:          time.Now,
		newTicker: func(interval time.Duration) intervalTicker {
			return stdIntervalTicker{ticker: time.NewTicker(interval)}
		},
		newID: func() string {
			return ulid.Make().String()
		},
	}
}

// Start runs the first cycle after the initial delay and then one cycle
// per interval until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	if p == nil || p.Versions == nil || p.Comments == nil || p.Subscribers == nil || p.Metadata == nil || p.Dispatcher == nil {
		return
	}

	if err := sleepWithContext(ctx, p.initialDelay); err != nil {
		return
	}
	if _, err := p.RunOnce(ctx); err != nil {
		p.logf("poll cycle failed: %v", err)
	}

	ticker := p.newTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := p.RunOnce(ctx); err != nil {
				p.logf("poll cycle failed: %v", err)
			}
		}
	}
}

// RunOnce performs one full sweep and returns its summary. Every failure
// inside the sweep is soft: a fetch failure skips that file, a delivery
// failure skips that job, and the cycle always runs to completion.
func (p *Poller) RunOnce(ctx context.Context) (*CycleResult, error) {
	if p == nil {
		return nil, fmt.Errorf("poller is required")
	}
	if p.Versions == nil || p.Comments == nil || p.Subscribers == nil || p.Metadata == nil || p.Dispatcher == nil {
		return nil, fmt.Errorf("poller dependencies are not configured")
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	result := CycleResult{StartedAt: p.now().UTC()}
	fileNames := make(map[string]string)

	for _, change := range p.Versions.CheckAll(ctx) {
		result.VersionChanges++
		subscribers := p.Subscribers.UpdateSubscribersOf(change.FileKey)
		if len(subscribers) == 0 {
			continue
		}
		name, err := p.fileName(ctx, fileNames, change.FileKey)
		if err != nil {
			result.MetadataFailures++
			p.logf("metadata fetch for %s failed, skipping its notifications: %v", change.FileKey, err)
			continue
		}
		author, label, createdAt := p.latestVersionDetails(ctx, change.FileKey)
		for _, subscriberID := range subscribers {
			job := notify.Job{
				ID:               p.newID(),
				Kind:             notify.KindVersionChanged,
				SubscriberID:     subscriberID,
				FileKey:          change.FileKey,
				FileName:         name,
				OldVersion:       change.Old,
				NewVersion:       change.New,
				VersionAuthor:    author,
				VersionLabel:     label,
				VersionCreatedAt: createdAt,
				OccurredAt:       p.now().UTC(),
			}
			p.dispatch(ctx, job, &result)
		}
	}

	news := p.Comments.CheckAll(ctx)
	for _, fileKey := range sortedFileKeys(news) {
		comments := news[fileKey]
		result.NewComments += len(comments)
		subscribers := p.Subscribers.CommentSubscribersOf(fileKey)
		if len(subscribers) == 0 {
			continue
		}
		name, err := p.fileName(ctx, fileNames, fileKey)
		if err != nil {
			result.MetadataFailures++
			p.logf("metadata fetch for %s failed, skipping its notifications: %v", fileKey, err)
			continue
		}
		for _, subscriberID := range subscribers {
			for i := range comments {
				comment := comments[i]
				job := notify.Job{
					ID:           p.newID(),
					Kind:         notify.KindNewComment,
					SubscriberID: subscriberID,
					FileKey:      fileKey,
					FileName:     name,
					Comment:      &comment,
					OccurredAt:   p.now().UTC(),
				}
				p.dispatch(ctx, job, &result)
			}
		}
	}

	result.CompletedAt = p.now().UTC()
	pollstats.RecordCycle(pollstats.CycleReport{
		StartedAt:        result.StartedAt,
		DurationMillis:   result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
		VersionChanges:   result.VersionChanges,
		NewComments:      result.NewComments,
		JobsDispatched:   result.JobsDispatched,
		DeliveryFailures: result.DeliveryFailures,
		MetadataFailures: result.MetadataFailures,
	})
	p.logf("poll cycle done: %d version changes, %d new comments, %d jobs dispatched, %d delivery failures",
		result.VersionChanges, result.NewComments, result.JobsDispatched, result.DeliveryFailures)
	return &result, nil
}

func (p *Poller) dispatch(ctx context.Context, job notify.Job, result *CycleResult) {
	result.JobsDispatched++
	if err := p.Dispatcher.Deliver(ctx, job); err != nil {
		result.DeliveryFailures++
		p.logf("delivery of job %s to subscriber %s failed: %v", job.ID, job.SubscriberID, err)
	}
}

// latestVersionDetails pulls who made the newest version and when. Best
// effort: any failure just leaves the job unenriched.
func (p *Poller) latestVersionDetails(ctx context.Context, fileKey string) (author, label string, createdAt *time.Time) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	versions, err := p.Metadata.FileVersions(fetchCtx, fileKey)
	if err != nil {
		p.logf("version history fetch for %s failed: %v", fileKey, err)
		return "", "", nil
	}
	if len(versions) == 0 {
		return "", "", nil
	}
	latest := versions[0]
	if !latest.CreatedAt.IsZero() {
		createdAt = &latest.CreatedAt
	}
	return latest.User.Handle, latest.Label, createdAt
}

// fileName resolves a file's display name once per cycle.
func (p *Poller) fileName(ctx context.Context, cache map[string]string, fileKey string) (string, error) {
	if name, ok := cache[fileKey]; ok {
		return name, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()
	file, err := p.Metadata.GetFile(fetchCtx, fileKey)
	if err != nil {
		return "", err
	}
	cache[fileKey] = file.Name
	return file.Name, nil
}

func sortedFileKeys(news map[string][]figma.Comment) []string {
	keys := make([]string, 0, len(news))
	for key := range news {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
