// Package notify defines the notification job emitted by the poll cycle
// and the sink interface that delivers it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/figwatch/figwatch/internal/figma"
)

// Kind classifies what a job announces.
type Kind string

const (
	KindVersionChanged Kind = "version-changed"
	KindNewComment     Kind = "new-comment"
)

// Job is one notification for one subscriber about one change. The poll
// cycle emits one job per (subscriber, change) pair. The version-history
// fields are best effort; they stay empty when the history fetch failed.
type Job struct {
	ID               string         `json:"id"`
	Kind             Kind           `json:"kind"`
	SubscriberID     string         `json:"subscriber_id"`
	FileKey          string         `json:"file_key"`
	FileName         string         `json:"file_name,omitempty"`
	OldVersion       string         `json:"old_version,omitempty"`
	NewVersion       string         `json:"new_version,omitempty"`
	VersionAuthor    string         `json:"version_author,omitempty"`
	VersionLabel     string         `json:"version_label,omitempty"`
	VersionCreatedAt *time.Time     `json:"version_created_at,omitempty"`
	Comment          *figma.Comment `json:"comment,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

// FileURL returns the Figma deep link for the job. Comment jobs link to
// the comment's canvas position when the position is known.
func (j Job) FileURL() string {
	url := "https://www.figma.com/file/" + j.FileKey
	if j.Kind == KindNewComment && j.Comment != nil && j.Comment.ClientMeta != nil && j.Comment.ClientMeta.NodeID != "" {
		return fmt.Sprintf("%s?node-id=%s&t=%s", url, j.Comment.ClientMeta.NodeID, j.Comment.ID)
	}
	return url
}

// Notifier delivers one job to its subscriber. Implementations decide the
// transport and the message shape.
type Notifier interface {
	Deliver(ctx context.Context, job Job) error
}

// Fanout delivers each job to every sink and joins the per-sink errors.
// A failing sink never blocks the others.
type Fanout []Notifier

func (f Fanout) Deliver(ctx context.Context, job Job) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Deliver(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
