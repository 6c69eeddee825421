package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/notify"
)

type fakeSender struct {
	sent []SendMessageRequest
	err  error
}

func (s *fakeSender) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	s.sent = append(s.sent, req)
	if s.err != nil {
		return nil, s.err
	}
	return &Message{}, nil
}

func TestDeliverSkipsNonNumericSubscribers(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender)

	err := notifier.Deliver(context.Background(), notify.Job{
		Kind:         notify.KindVersionChanged,
		SubscriberID: "ws:dashboard",
		FileKey:      "ABC123",
	})
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}

func TestDeliverFormatsVersionChange(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender)
	createdAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	err := notifier.Deliver(context.Background(), notify.Job{
		Kind:             notify.KindVersionChanged,
		SubscriberID:     "42",
		FileKey:          "ABC123",
		FileName:         "Design <System>",
		OldVersion:       "100",
		NewVersion:       "101",
		VersionAuthor:    "maya",
		VersionLabel:     "Handoff",
		VersionCreatedAt: &createdAt,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	req := sender.sent[0]
	require.Equal(t, int64(42), req.ChatID)
	require.Equal(t, "HTML", req.ParseMode)
	require.True(t, req.DisableWebPagePreview)
	require.Contains(t, req.Text, "<b>Design &lt;System&gt;</b> has a new version: Handoff")
	require.Contains(t, req.Text, "Version 100 → 101")
	require.Contains(t, req.Text, "By maya at 2026-03-14 09:30")

	require.NotNil(t, req.ReplyMarkup)
	button := req.ReplyMarkup.InlineKeyboard[0][0]
	require.Equal(t, "Open in Figma", button.Text)
	require.Equal(t, "https://www.figma.com/file/ABC123", button.URL)
}

func TestDeliverVersionChangeWithoutEnrichment(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender)

	err := notifier.Deliver(context.Background(), notify.Job{
		Kind:         notify.KindVersionChanged,
		SubscriberID: "42",
		FileKey:      "ABC123",
		OldVersion:   "100",
		NewVersion:   "101",
	})
	require.NoError(t, err)

	text := sender.sent[0].Text
	// The key stands in when the name fetch failed.
	require.Contains(t, text, "<b>ABC123</b> has a new version")
	require.NotContains(t, text, "By ")
}

func TestDeliverFormatsComment(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender)

	err := notifier.Deliver(context.Background(), notify.Job{
		Kind:         notify.KindNewComment,
		SubscriberID: "42",
		FileKey:      "ABC123",
		FileName:     "Design System",
		Comment: &figma.Comment{
			ID:         "900100",
			Message:    "Can we make the logo <bigger>?",
			User:       figma.User{Handle: "sam"},
			CreatedAt:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			ClientMeta: &figma.ClientMeta{NodeID: "1:23"},
		},
	})
	require.NoError(t, err)

	req := sender.sent[0]
	require.Contains(t, req.Text, "New comment on <b>Design System</b>")
	require.Contains(t, req.Text, "From sam on 2026-03-14 10:00")
	require.Contains(t, req.Text, "Can we make the logo &lt;bigger&gt;?")

	button := req.ReplyMarkup.InlineKeyboard[0][0]
	require.Equal(t, "Open comment", button.Text)
	require.Equal(t, "https://www.figma.com/file/ABC123?node-id=1:23&t=900100", button.URL)
}

func TestDeliverWrapsSendFailures(t *testing.T) {
	sender := &fakeSender{err: &APIError{ErrorCode: 403, Description: "Forbidden: bot was blocked by the user"}}
	notifier := NewNotifier(sender)

	err := notifier.Deliver(context.Background(), notify.Job{
		Kind:         notify.KindVersionChanged,
		SubscriberID: "42",
		FileKey:      "ABC123",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "send to chat 42")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
}
