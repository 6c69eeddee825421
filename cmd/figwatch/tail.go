package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"
)

// tailFrame is the slice of a notification job the tail output needs.
type tailFrame struct {
	Kind          string    `json:"kind"`
	SubscriberID  string    `json:"subscriber_id"`
	FileKey       string    `json:"file_key"`
	FileName      string    `json:"file_name,omitempty"`
	OldVersion    string    `json:"old_version,omitempty"`
	NewVersion    string    `json:"new_version,omitempty"`
	VersionAuthor string    `json:"version_author,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	Comment       *struct {
		Message string `json:"message"`
		User    struct {
			Handle string `json:"handle"`
		} `json:"user"`
	} `json:"comment,omitempty"`
}

func handleTail(args []string) {
	flags := flag.NewFlagSet("tail", flag.ExitOnError)
	subscriber := flags.String("subscriber", "", "only this subscriber's notifications (default: all)")
	jsonOut := flags.Bool("json", false, "print raw frames")
	_ = flags.Parse(args)

	client := mustClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *subscriber == "" {
		fmt.Println("Tailing all notifications (Ctrl-C to stop)...")
	} else {
		fmt.Printf("Tailing notifications for %s (Ctrl-C to stop)...\n", *subscriber)
	}

	err := client.Tail(ctx, *subscriber, func(payload []byte) error {
		if *jsonOut {
			fmt.Println(string(payload))
			return nil
		}
		fmt.Println(formatFrame(payload))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		dieIf(err)
	}
}

// formatFrame renders one notification as a log line. Frames it cannot
// make sense of pass through raw.
func formatFrame(payload []byte) string {
	var frame tailFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return string(payload)
	}

	name := frame.FileName
	if name == "" {
		name = frame.FileKey
	}
	stamp := frame.OccurredAt.Local().Format("15:04:05")

	switch frame.Kind {
	case "version-changed":
		line := fmt.Sprintf("%s  %-14s  %s", stamp, frame.Kind, name)
		if frame.OldVersion != "" || frame.NewVersion != "" {
			line += fmt.Sprintf("  %s -> %s", frame.OldVersion, frame.NewVersion)
		}
		if frame.VersionAuthor != "" {
			line += "  by " + frame.VersionAuthor
		}
		return line
	case "new-comment":
		line := fmt.Sprintf("%s  %-14s  %s", stamp, frame.Kind, name)
		if frame.Comment != nil {
			if frame.Comment.User.Handle != "" {
				line += "  " + frame.Comment.User.Handle + ":"
			}
			line += " " + frame.Comment.Message
		}
		return line
	default:
		return string(payload)
	}
}
