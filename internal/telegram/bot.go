package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/figwatch/figwatch/internal/figma"
	"github.com/figwatch/figwatch/internal/watch"
)

const (
	defaultPollTimeout = 30 * time.Second
	pollRetryDelay     = 5 * time.Second
)

const helpText = `I watch Figma files and tell you when they change.

/subscribe &lt;key or URL&gt; - watch a file for new versions
/unsubscribe &lt;key&gt; - stop watching a file
/comments_on &lt;key&gt; - also get new comments on a file
/comments_off &lt;key&gt; - stop comment notifications
/reset_comments &lt;key&gt; - re-announce every current comment
/list - show what you're watching`

// API is the slice of the Bot API the command loop needs.
type API interface {
	GetMe(ctx context.Context) (*User, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error)
}

// WatchService is the slice of the command layer the bot drives. The
// subscriber ID is the chat ID in decimal form.
type WatchService interface {
	Subscribe(ctx context.Context, subscriber, fileKey string) (*watch.SubscribeResult, error)
	Unsubscribe(ctx context.Context, subscriber, fileKey string) bool
	SubscribeComments(ctx context.Context, subscriber, fileKey string) (*watch.CommentSubscribeResult, error)
	UnsubscribeComments(ctx context.Context, subscriber, fileKey string) bool
	ResetComments(ctx context.Context, subscriber, fileKey string) bool
	List(ctx context.Context, subscriber string) []watch.Subscription
}

// BotConfig carries the command loop knobs.
type BotConfig struct {
	// PollTimeout is the getUpdates long-poll window. Zero means 30s.
	PollTimeout time.Duration
	// Logf receives loop diagnostics. Nil means log.Printf.
	Logf func(string, ...any)
}

// Bot runs the long-polling command loop. Commands are handled in
// arrival order; every reply failure is logged and dropped.
type Bot struct {
	api     API
	service WatchService

	pollTimeout time.Duration
	logf        func(string, ...any)
}

func NewBot(api API, service WatchService, cfg BotConfig) *Bot {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Bot{
		api:         api,
		service:     service,
		pollTimeout: cfg.PollTimeout,
		logf:        cfg.Logf,
	}
}

// Run verifies the token and polls for commands until the context is
// cancelled. A failing getUpdates call backs off and retries; only
// cancellation and a bad token end the loop.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	b.logf("telegram bot @%s ready", me.Username)

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logf("get updates failed: %v", err)
			if err := sleepWithContext(ctx, pollRetryDelay); err != nil {
				return err
			}
			continue
		}
		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *Message) {
	text := strings.TrimSpace(message.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	command := fields[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	subscriber := strconv.FormatInt(message.Chat.ID, 10)

	var reply string
	switch command {
	case "/start", "/help":
		reply = helpText
	case "/subscribe":
		reply = b.handleSubscribe(ctx, subscriber, arg)
	case "/unsubscribe":
		reply = b.handleUnsubscribe(ctx, subscriber, arg)
	case "/comments_on":
		reply = b.handleCommentsOn(ctx, subscriber, arg)
	case "/comments_off":
		reply = b.handleCommentsOff(ctx, subscriber, arg)
	case "/reset_comments":
		reply = b.handleResetComments(ctx, subscriber, arg)
	case "/list":
		reply = b.handleList(ctx, subscriber)
	default:
		reply = "Unknown command. Send /help for the list of commands."
	}
	if reply == "" {
		return
	}
	_, err := b.api.SendMessage(ctx, SendMessageRequest{
		ChatID:                message.Chat.ID,
		Text:                  reply,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		b.logf("reply to chat %d failed: %v", message.Chat.ID, err)
	}
}

func (b *Bot) handleSubscribe(ctx context.Context, subscriber, arg string) string {
	fileKey := figma.ParseFileKey(arg)
	if fileKey == "" {
		return "Usage: /subscribe &lt;file key or Figma URL&gt;"
	}
	result, err := b.service.Subscribe(ctx, subscriber, fileKey)
	if err != nil {
		b.logf("subscribe %s to %s failed: %v", subscriber, fileKey, err)
		return fmt.Sprintf("Could not subscribe to <b>%s</b>: %s.", html.EscapeString(fileKey), describeLookupError(err))
	}
	if result.AlreadySubscribed {
		return fmt.Sprintf("You're already watching <b>%s</b>.", html.EscapeString(result.FileName))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Now watching <b>%s</b> for new versions.", html.EscapeString(result.FileName))
	if result.Version != "" {
		fmt.Fprintf(&sb, "\nCurrent version: %s", html.EscapeString(result.Version))
	}
	if result.AutoComments {
		fmt.Fprintf(&sb, "\nComment notifications are on as well (%d existing comments stay quiet).", result.SeenComments)
	}
	return sb.String()
}

func (b *Bot) handleUnsubscribe(ctx context.Context, subscriber, arg string) string {
	fileKey := figma.ParseFileKey(arg)
	if fileKey == "" {
		return "Usage: /unsubscribe &lt;file key&gt;"
	}
	if !b.service.Unsubscribe(ctx, subscriber, fileKey) {
		return fmt.Sprintf("You're not watching <b>%s</b>.", html.EscapeString(fileKey))
	}
	return fmt.Sprintf("Stopped watching <b>%s</b>.", html.EscapeString(fileKey))
}

func (b *Bot) handleCommentsOn(ctx context.Context, subscriber, arg string) string {
	fileKey := figma.ParseFileKey(arg)
	if fileKey == "" {
		return "Usage: /comments_on &lt;file key or Figma URL&gt;"
	}
	result, err := b.service.SubscribeComments(ctx, subscriber, fileKey)
	if err != nil {
		b.logf("comment subscribe %s to %s failed: %v", subscriber, fileKey, err)
		return fmt.Sprintf("Could not watch comments on <b>%s</b>: %s.", html.EscapeString(fileKey), describeLookupError(err))
	}
	if result.AlreadySubscribed {
		return fmt.Sprintf("Comment notifications for <b>%s</b> were already on.", html.EscapeString(result.FileName))
	}
	return fmt.Sprintf("Comment notifications for <b>%s</b> are on (%d existing comments stay quiet).",
		html.EscapeString(result.FileName), result.SeenComments)
}

func (b *Bot) handleCommentsOff(ctx context.Context, subscriber, arg string) string {
	fileKey := figma.ParseFileKey(arg)
	if fileKey == "" {
		return "Usage: /comments_off &lt;file key&gt;"
	}
	if !b.service.UnsubscribeComments(ctx, subscriber, fileKey) {
		return fmt.Sprintf("Comment notifications for <b>%s</b> weren't on.", html.EscapeString(fileKey))
	}
	return fmt.Sprintf("Comment notifications for <b>%s</b> are off.", html.EscapeString(fileKey))
}

func (b *Bot) handleResetComments(ctx context.Context, subscriber, arg string) string {
	fileKey := figma.ParseFileKey(arg)
	if fileKey == "" {
		return "Usage: /reset_comments &lt;file key&gt;"
	}
	if !b.service.ResetComments(ctx, subscriber, fileKey) {
		return fmt.Sprintf("You're not watching comments on <b>%s</b>.", html.EscapeString(fileKey))
	}
	return fmt.Sprintf("Comment tracking for <b>%s</b> was reset; every current comment counts as new again.",
		html.EscapeString(fileKey))
}

func (b *Bot) handleList(ctx context.Context, subscriber string) string {
	subscriptions := b.service.List(ctx, subscriber)
	if len(subscriptions) == 0 {
		return "You're not watching any files. Send /subscribe &lt;key&gt; to start."
	}
	var sb strings.Builder
	sb.WriteString("Files you're watching:")
	for _, sub := range subscriptions {
		name := sub.FileName
		if name == "" {
			name = sub.FileKey
		}
		fmt.Fprintf(&sb, "\n• <b>%s</b> (%s)", html.EscapeString(name), describeClasses(sub))
		if sub.Updates && sub.Version != "" {
			fmt.Fprintf(&sb, "\n   version %s", html.EscapeString(sub.Version))
		}
	}
	return sb.String()
}

func describeClasses(sub watch.Subscription) string {
	switch {
	case sub.Updates && sub.Comments:
		return "versions + comments"
	case sub.Updates:
		return "versions"
	default:
		return "comments only"
	}
}

func describeLookupError(err error) string {
	var apiErr *figma.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404:
			return "file not found"
		case 403:
			return "access denied, check the API token"
		default:
			return fmt.Sprintf("Figma API error %d", apiErr.StatusCode)
		}
	}
	return "Figma API unreachable"
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
