package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/figwatch/figwatch/internal/notify"
)

// Sender is the one Bot API call deliveries need.
type Sender interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
}

// Notifier delivers poll jobs to Telegram chats. Subscriber IDs that
// are not chat IDs belong to other sinks and are skipped silently.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) Deliver(ctx context.Context, job notify.Job) error {
	chatID, err := strconv.ParseInt(job.SubscriberID, 10, 64)
	if err != nil {
		return nil
	}

	var text string
	switch job.Kind {
	case notify.KindVersionChanged:
		text = formatVersionJob(job)
	case notify.KindNewComment:
		text = formatCommentJob(job)
	default:
		return nil
	}

	req := SendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if url := job.FileURL(); url != "" {
		req.ReplyMarkup = &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{{Text: buttonLabel(job.Kind), URL: url}},
			},
		}
	}
	if _, err := n.sender.SendMessage(ctx, req); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

func buttonLabel(kind notify.Kind) string {
	if kind == notify.KindNewComment {
		return "Open comment"
	}
	return "Open in Figma"
}

func formatVersionJob(job notify.Job) string {
	name := job.FileName
	if name == "" {
		name = job.FileKey
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔄 <b>%s</b> has a new version", html.EscapeString(name))
	if job.VersionLabel != "" {
		fmt.Fprintf(&sb, ": %s", html.EscapeString(job.VersionLabel))
	}
	if job.OldVersion != "" || job.NewVersion != "" {
		fmt.Fprintf(&sb, "\nVersion %s → %s", html.EscapeString(job.OldVersion), html.EscapeString(job.NewVersion))
	}
	if job.VersionAuthor != "" {
		fmt.Fprintf(&sb, "\nBy %s", html.EscapeString(job.VersionAuthor))
		if job.VersionCreatedAt != nil {
			fmt.Fprintf(&sb, " at %s", job.VersionCreatedAt.Format("2006-01-02 15:04"))
		}
	}
	return sb.String()
}

func formatCommentJob(job notify.Job) string {
	name := job.FileName
	if name == "" {
		name = job.FileKey
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 New comment on <b>%s</b>", html.EscapeString(name))
	if job.Comment == nil {
		return sb.String()
	}
	if job.Comment.User.Handle != "" {
		fmt.Fprintf(&sb, "\nFrom %s", html.EscapeString(job.Comment.User.Handle))
		if !job.Comment.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, " on %s", job.Comment.CreatedAt.Format("2006-01-02 15:04"))
		}
	}
	if job.Comment.Message != "" {
		fmt.Fprintf(&sb, "\n\n%s", html.EscapeString(job.Comment.Message))
	}
	return sb.String()
}
