package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"shared-notes-server/internal/broadcast"
	"shared-notes-server/internal/client"
	"shared-notes-server/internal/share"
	"shared-notes-server/internal/syncengine"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type commandKind int

const (
	cmdTitle commandKind = iota
	cmdAppend
	cmdSet
	cmdUse
	cmdShow
	cmdQuit
)

type command struct {
	kind commandKind
	text string
	n    int
}

func parseCommand(line string) (command, error) {
	verb, text, _ := strings.Cut(strings.TrimRight(line, "\r\n"), " ")

	switch verb {
	case "title":
		return command{kind: cmdTitle, text: text}, nil
	case "append":
		return command{kind: cmdAppend, text: text}, nil
	case "set":
		return command{kind: cmdSet, text: text}, nil
	case "use":
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return command{}, fmt.Errorf("use takes a surface number")
		}
		return command{kind: cmdUse, n: n}, nil
	case "show":
		return command{kind: cmdShow}, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", verb)
	}
}

// applyEdit returns the draft that results from cmd on the snapshot.
func applyEdit(cmd command, s syncengine.Snapshot) (string, string) {
	switch cmd.kind {
	case cmdTitle:
		return cmd.text, s.Content
	case cmdAppend:
		if s.Content == "" {
			return s.Title, cmd.text
		}
		return s.Title, s.Content + "\n" + cmd.text
	case cmdSet:
		return s.Title, cmd.text
	default:
		return s.Title, s.Content
	}
}

func runOpen(ctx context.Context, api *client.Client, opts globalOptions, args []string) error {
	var surfaces int
	var noPush bool

	flagSet := pflag.NewFlagSet("open", pflag.ContinueOnError)
	flagSet.IntVar(&surfaces, "surfaces", 1, "number of editing surfaces to open in this process")
	flagSet.BoolVar(&noPush, "no-push", false, "rely on polling instead of the server push channel")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("open takes exactly one link or id")
	}
	if surfaces < 1 {
		return fmt.Errorf("--surfaces must be at least 1")
	}

	id, err := share.ParseLink(flagSet.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := broadcast.NewBus()
	engines := make([]*syncengine.Engine, surfaces)
	eg, egCtx := errgroup.WithContext(ctx)

	for i := range engines {
		n := i + 1
		engineOpts := syncengine.Options{
			PollInterval: opts.pollInterval,
			Debounce:     opts.debounce,
			Bus:          bus,
			OnChange:     stateReporter(os.Stderr, n),
		}
		if !noPush {
			engineOpts.Feed = api.Subscribe(ctx, id)
		}

		e := syncengine.New(id, api, engineOpts)
		engines[i] = e
		eg.Go(func() error { return e.Run(egCtx) })
	}

	eg.Go(func() error {
		defer cancel()
		if err := readCommands(egCtx, os.Stdin, os.Stdout, engines); err != nil {
			return err
		}
		drain(egCtx, engines, opts.debounce+drainGrace)
		return nil
	})

	return eg.Wait()
}

// readCommands feeds stdin lines to the surfaces until quit, EOF or ctx.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, engines []*syncengine.Engine) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	active := engines[0]
	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}

		switch cmd.kind {
		case cmdQuit:
			return nil
		case cmdShow:
			printSnapshot(out, active.Snapshot())
		case cmdUse:
			if cmd.n < 1 || cmd.n > len(engines) {
				fmt.Fprintf(out, "surface %d does not exist\n", cmd.n)
				continue
			}
			active = engines[cmd.n-1]
		default:
			title, content := applyEdit(cmd, active.Snapshot())
			if err := active.Edit(title, content); err != nil {
				return err
			}
		}
	}
}

const drainGrace = 5 * time.Second

// drain waits until no surface holds unsaved changes, or until timeout.
func drain(ctx context.Context, engines []*syncengine.Engine, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		settled := true
		for _, e := range engines {
			s := e.Snapshot()
			if s.State == syncengine.StateError {
				continue
			}
			if s.Dirty() || s.SavePending {
				settled = false
			}
		}
		if settled {
			return
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				fmt.Fprintln(os.Stderr, "gave up waiting for unsaved changes")
			}
			return
		case <-ticker.C:
		}
	}
}

func printSnapshot(w io.Writer, s syncengine.Snapshot) {
	status := "online"
	if !s.Online {
		status = "offline"
	}
	fmt.Fprintf(w, "# %s\n%s\n-- %s, %s, version %s", s.Title, s.Content, s.State, status, s.LastKnownUpdatedAt)
	if s.Editors > 0 {
		fmt.Fprintf(w, ", %d editing", s.Editors)
	}
	if s.Dirty() {
		fmt.Fprint(w, ", unsaved changes")
	}
	if s.LastError != nil {
		fmt.Fprintf(w, ", last error: %v", s.LastError)
	}
	fmt.Fprintln(w)
}

func stateReporter(w io.Writer, surface int) func(syncengine.Snapshot) {
	last := syncengine.State(-1)
	return func(s syncengine.Snapshot) {
		if s.State == last {
			return
		}
		last = s.State
		fmt.Fprintf(w, "[surface %d] %s\n", surface, s.State)
	}
}
