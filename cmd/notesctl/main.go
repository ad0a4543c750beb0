// notesctl shares notes and edits shared notes from a terminal.
//
// Usage:
//
//	notesctl [global flags] share --title T [--content C]
//	notesctl [global flags] open [--surfaces N] <link|id>
//	notesctl [global flags] delete <link|id>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shared-notes-server/internal/client"
	"shared-notes-server/internal/share"
	"shared-notes-server/pkg/logger/slogx"

	"github.com/spf13/pflag"
)

type globalOptions struct {
	server       string
	logLevel     string
	pollInterval time.Duration
	debounce     time.Duration
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts globalOptions

	flagSet := pflag.NewFlagSet("notesctl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.server, "server", envOr("NOTES_SERVER", "http://localhost:8080"), "shared notes server base URL")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flagSet.DurationVar(&opts.pollInterval, "poll-interval", 2*time.Second, "how often open surfaces poll the server")
	flagSet.DurationVar(&opts.debounce, "debounce", 1500*time.Millisecond, "quiet period before an edit is saved")
	flagSet.SetInterspersed(false)
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if err := slogx.InitGlobal(os.Stderr, opts.logLevel, true); err != nil {
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(flagSet)
		return fmt.Errorf("missing command")
	}

	api, err := client.New(opts.server)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch rest[0] {
	case "share":
		return runShare(ctx, api, rest[1:])
	case "open":
		return runOpen(ctx, api, opts, rest[1:])
	case "delete":
		return runDelete(ctx, api, rest[1:])
	default:
		printUsage(flagSet)
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func runShare(ctx context.Context, api *client.Client, args []string) error {
	var title, content string

	flagSet := pflag.NewFlagSet("share", pflag.ContinueOnError)
	flagSet.StringVar(&title, "title", "", "note title")
	flagSet.StringVar(&content, "content", "", "initial note content")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	link, err := api.Share(ctx, title, content)
	if err != nil {
		return err
	}

	fmt.Println(link.URL)
	fmt.Fprintf(os.Stderr, "shared %q as %s\n", link.Note.Title, link.Note.ID)
	return nil
}

func runDelete(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("delete takes exactly one link or id")
	}
	id, err := share.ParseLink(args[0])
	if err != nil {
		return err
	}

	if err := api.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "deleted %s\n", id)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `notesctl shares notes and edits shared notes.

Usage:
  notesctl [flags] share --title T [--content C]
  notesctl [flags] open [--surfaces N] [--no-push] <link|id>
  notesctl [flags] delete <link|id>

While a note is open, each input line is a command:
  title <text>    replace the title
  append <text>   append a line to the content
  set <text>      replace the content
  use <n>         switch the active surface
  show            print the active surface
  quit            close every surface and exit

Flags:
%s`, flagSet.FlagUsages())
}
