package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/figwatch/figwatch/internal/figwatchcli"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "config":
		handleConfig(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	case "list":
		handleList(os.Args[2:])
	case "subscribe":
		handleSubscribe(os.Args[2:])
	case "unsubscribe":
		handleUnsubscribe(os.Args[2:])
	case "files":
		handleFiles(os.Args[2:])
	case "reset-comments":
		handleResetComments(os.Args[2:])
	case "poll":
		handlePoll(os.Args[2:])
	case "tail":
		handleTail(os.Args[2:])
	case "version":
		fmt.Println("figwatch dev")
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`figwatch <command> [args]

Commands:
  config           Show or set daemon address and API token
  status           Daemon health and poll counters
  list             List one subscriber's watched files
  subscribe        Watch a file for versions or comments
  unsubscribe      Stop watching a file
  files            List every tracked file
  reset-comments   Clear a file's seen-comment baseline
  poll             Trigger a poll cycle now
  tail             Stream notifications over WebSocket
  version          Show CLI version`)
}

func handleConfig(args []string) {
	if len(args) == 0 {
		cfg, err := figwatchcli.LoadConfig()
		dieIf(err)
		fmt.Println("Config:", mustConfigPath())
		fmt.Println("  api:  ", cfg.APIBaseURL)
		if strings.TrimSpace(cfg.Token) != "" {
			fmt.Println("  token: set")
		} else {
			fmt.Println("  token: (none)")
		}
		return
	}

	switch args[0] {
	case "set":
		flags := flag.NewFlagSet("config set", flag.ExitOnError)
		api := flags.String("api", "", "daemon base URL, e.g. http://localhost:8080")
		token := flags.String("token", "", "API token (matches FIGWATCH_API_TOKEN on the daemon)")
		clearToken := flags.Bool("clear-token", false, "remove the stored token")
		_ = flags.Parse(args[1:])

		if *api == "" && *token == "" && !*clearToken {
			die("usage: figwatch config set [--api <url>] [--token <token>] [--clear-token]")
		}

		cfg, err := figwatchcli.LoadConfig()
		dieIf(err)
		if *api != "" {
			cfg.APIBaseURL = strings.TrimSpace(*api)
		}
		if *token != "" {
			cfg.Token = strings.TrimSpace(*token)
		}
		if *clearToken {
			cfg.Token = ""
		}
		dieIf(figwatchcli.SaveConfig(cfg))
		fmt.Println("Saved config to", mustConfigPath())
	default:
		die("usage: figwatch config [set --api <url> --token <token>]")
	}
}

func handleStatus(args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	client := mustClient()
	info, err := client.Status()
	dieIf(err)

	if *jsonOut {
		out, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Status:      %s (up %s)\n", info.Status, info.Uptime)
	t := info.Poll.Totals
	fmt.Printf("Cycles:      %d total, %d version changes, %d new comments, %d jobs\n",
		t.Cycles, t.VersionChanges, t.NewComments, t.JobsDispatched)
	if t.DeliveryFailures > 0 || t.MetadataFailures > 0 {
		fmt.Printf("Failures:    %d delivery, %d metadata\n", t.DeliveryFailures, t.MetadataFailures)
	}
	if last := info.Poll.LastCycle; last != nil {
		fmt.Printf("Last cycle:  %s in %dms (%d version changes, %d new comments)\n",
			last.StartedAt.Format("2006-01-02 15:04:05"), last.DurationMillis,
			last.VersionChanges, last.NewComments)
	}
	w := info.Watch
	fmt.Printf("Tracked:     %d version files, %d comment files\n", w.TrackedVersionFiles, w.TrackedCommentFiles)
	fmt.Printf("Subscribers: %d updates, %d comments\n", w.UpdateSubscribers, w.CommentSubscribers)
}

func handleList(args []string) {
	flags := flag.NewFlagSet("list", flag.ExitOnError)
	subscriber := flags.String("subscriber", "", "subscriber id (chat id or dashboard handle)")
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	if strings.TrimSpace(*subscriber) == "" {
		die("usage: figwatch list --subscriber <id>")
	}

	client := mustClient()
	subs, err := client.ListSubscriptions(*subscriber)
	dieIf(err)

	if *jsonOut {
		out, _ := json.MarshalIndent(subs, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(subs) == 0 {
		fmt.Println("No subscriptions.")
		return
	}
	for _, s := range subs {
		name := s.FileName
		if name == "" {
			name = s.FileKey
		}
		detail := ""
		if s.Updates && s.Version != "" {
			detail = "  version " + s.Version
		}
		fmt.Printf("%-24s  %-18s  %s%s\n", s.FileKey, describeClasses(s.Updates, s.Comments), name, detail)
	}
}

func handleSubscribe(args []string) {
	flags := flag.NewFlagSet("subscribe", flag.ExitOnError)
	subscriber := flags.String("subscriber", "", "subscriber id (chat id or dashboard handle)")
	comments := flags.Bool("comments", false, "watch comments instead of versions")
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	file := strings.TrimSpace(flags.Arg(0))
	if strings.TrimSpace(*subscriber) == "" || file == "" {
		die("usage: figwatch subscribe --subscriber <id> [--comments] <file key or Figma URL>")
	}

	class := "updates"
	if *comments {
		class = "comments"
	}

	client := mustClient()
	result, err := client.Subscribe(*subscriber, file, class)
	dieIf(err)

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	name := result.FileName
	if name == "" {
		name = result.FileKey
	}
	switch {
	case result.AlreadySubscribed:
		fmt.Printf("Already watching %s (%s).\n", name, result.FileKey)
	case *comments:
		fmt.Printf("Watching comments on %s (%s); %d existing comments stay quiet.\n",
			name, result.FileKey, result.SeenComments)
	default:
		fmt.Printf("Watching %s (%s) for new versions", name, result.FileKey)
		if result.Version != "" {
			fmt.Printf(", currently at version %s", result.Version)
		}
		fmt.Println(".")
		if result.AutoComments {
			fmt.Printf("Comment notifications are on as well (%d existing comments stay quiet).\n",
				result.SeenComments)
		}
	}
}

func handleUnsubscribe(args []string) {
	flags := flag.NewFlagSet("unsubscribe", flag.ExitOnError)
	subscriber := flags.String("subscriber", "", "subscriber id (chat id or dashboard handle)")
	comments := flags.Bool("comments", false, "drop only the comment subscription")
	_ = flags.Parse(args)

	file := strings.TrimSpace(flags.Arg(0))
	if strings.TrimSpace(*subscriber) == "" || file == "" {
		die("usage: figwatch unsubscribe --subscriber <id> [--comments] <file key or Figma URL>")
	}

	class := "updates"
	if *comments {
		class = "comments"
	}

	client := mustClient()
	removed, err := client.Unsubscribe(*subscriber, file, class)
	dieIf(err)

	if removed {
		fmt.Printf("Stopped watching %s.\n", file)
	} else {
		fmt.Println("No matching subscription.")
	}
}

func handleFiles(args []string) {
	flags := flag.NewFlagSet("files", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	client := mustClient()
	files, err := client.ListFiles()
	dieIf(err)

	if *jsonOut {
		out, _ := json.MarshalIndent(files, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(files) == 0 {
		fmt.Println("No tracked files.")
		return
	}
	for _, f := range files {
		version := f.Version
		if version == "" {
			version = "-"
		}
		fmt.Printf("%-24s  %-18s  version %-10s  %d+%d subscribers\n",
			f.FileKey, describeClasses(f.TrackedVersions, f.TrackedComments), version,
			f.UpdateSubscribers, f.CommentSubscribers)
	}
}

func handleResetComments(args []string) {
	flags := flag.NewFlagSet("reset-comments", flag.ExitOnError)
	_ = flags.Parse(args)

	fileKey := strings.TrimSpace(flags.Arg(0))
	if fileKey == "" {
		die("usage: figwatch reset-comments <file key>")
	}

	client := mustClient()
	reset, err := client.ResetComments(fileKey)
	dieIf(err)

	if reset {
		fmt.Printf("Comment baseline for %s reset; every current comment counts as new again.\n", fileKey)
	} else {
		fmt.Printf("%s is not comment-tracked.\n", fileKey)
	}
}

func handlePoll(args []string) {
	flags := flag.NewFlagSet("poll", flag.ExitOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	_ = flags.Parse(args)

	client := mustClient()
	result, err := client.TriggerPoll()
	dieIf(err)

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	duration := result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond)
	fmt.Printf("Cycle finished in %s: %d version changes, %d new comments, %d notifications sent.\n",
		duration, result.VersionChanges, result.NewComments, result.JobsDispatched)
	if result.DeliveryFailures > 0 || result.MetadataFailures > 0 {
		fmt.Printf("Failures: %d delivery, %d metadata.\n", result.DeliveryFailures, result.MetadataFailures)
	}
}

func describeClasses(updates, comments bool) string {
	switch {
	case updates && comments:
		return "updates+comments"
	case updates:
		return "updates"
	default:
		return "comments"
	}
}

func mustClient() *figwatchcli.Client {
	cfg, err := figwatchcli.LoadConfig()
	dieIf(err)
	return figwatchcli.NewClient(cfg)
}

func die(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func dieIf(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	die(formatCLIError(err))
}

func formatCLIError(err error) string {
	if err == nil {
		return ""
	}
	message := strings.TrimSpace(err.Error())
	lower := strings.ToLower(message)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return fmt.Sprintf("%s\n\nCannot reach the figwatch daemon. Check that figwatchd is running and that\nthe address is right:\n\n  figwatch config set --api <url>", message)
	}
	if status, ok := figwatchcli.HTTPStatusCode(err); ok && status == 401 {
		return fmt.Sprintf("%s\n\nThe daemon requires a token. Store it with:\n\n  figwatch config set --token <token>", message)
	}
	return message
}

func mustConfigPath() string {
	path, err := figwatchcli.ConfigPath()
	if err != nil {
		return "config"
	}
	return path
}
