// Package main implements twinctl, a command line client for digital twin
// backends speaking the Ditto protocol. It covers the day-to-day
// operations: reading twins, watching change events, streaming searches,
// messaging things and validating configuration files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/c360/twinstreams"
	"github.com/c360/twinstreams/events"
	"github.com/c360/twinstreams/live"
	"github.com/c360/twinstreams/model"
	"github.com/c360/twinstreams/search"
)

const appName = "twinctl"

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("missing command")
	}

	command, rest := args[0], args[1:]
	switch command {
	case "retrieve":
		return runRetrieve(rest)
	case "watch":
		return runWatch(rest)
	case "search":
		return runSearch(rest)
	case "message":
		return runMessage(rest)
	case "validate":
		return runValidate(rest)
	case "version":
		printVersion()
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func runRetrieve(args []string) error {
	flags := newCommandFlags("retrieve", "retrieve [options] <thing-id>")
	fs := flags.flagSet
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("retrieve expects exactly one thing id")
	}
	id, err := model.ParseNamespacedID(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := flags.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	thing, err := client.Twin().Thing(id).Retrieve(ctx)
	if err != nil {
		return err
	}
	return printJSON(thing)
}

func runWatch(args []string) error {
	flags := newCommandFlags("watch", "watch [options] <thing-id>")
	fs := flags.flagSet
	channel := fs.String("channel", "twin", "Channel to watch: twin or live")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("watch expects exactly one thing id")
	}
	id, err := model.ParseNamespacedID(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := flags.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	register := client.Twin().RegisterForThingChanges
	switch *channel {
	case "twin":
	case "live":
		register = client.Live().RegisterForThingChanges
	default:
		return fmt.Errorf("unknown channel %q", *channel)
	}

	// One change per output line; the handler runs on the dispatch
	// goroutine so the encoder needs no locking.
	enc := json.NewEncoder(os.Stdout)
	err = register("twinctl-watch", id, func(change events.Change) {
		line := map[string]any{
			"action":  string(change.Action),
			"thingId": change.ThingID.String(),
			"path":    change.Path,
		}
		if change.Revision > 0 {
			line["revision"] = change.Revision
		}
		if len(change.Value) > 0 {
			line["value"] = json.RawMessage(change.Value)
		}
		if err := enc.Encode(line); err != nil {
			slog.Warn("write change", "error", err)
		}
	})
	if err != nil {
		return err
	}

	slog.Info("watching for changes", "thing", id.String(), "channel", *channel)
	<-ctx.Done()
	return nil
}

func runSearch(args []string) error {
	flags := newCommandFlags("search", "search [options]")
	fs := flags.flagSet
	filter := fs.String("filter", "", "RQL filter expression, empty matches everything")
	namespaces := fs.String("namespaces", "", "Comma-separated namespaces to search")
	fields := fs.String("fields", "", "Projection, such as thingId,attributes")
	sortBy := fs.String("sort", "", "Sort option, such as +thingId")
	pageSize := fs.Int("page-size", 0, "Things per page, 0 for the backend default")
	limit := fs.Int("limit", 0, "Stop after this many things, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := flags.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	q := search.Query{
		Filter:   *filter,
		Fields:   *fields,
		PageSize: *pageSize,
	}
	if *namespaces != "" {
		q.Namespaces = strings.Split(*namespaces, ",")
	}
	if *sortBy != "" {
		q.Options = append(q.Options, "sort("+*sortBy+")")
	}

	stream, err := client.Twin().Search().Stream(ctx, q)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	enc := json.NewEncoder(os.Stdout)
	count := 0
	for stream.Next(ctx) {
		thing := stream.Thing()
		if err := enc.Encode(thing); err != nil {
			return err
		}
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	slog.Info("search finished", "things", count)
	return nil
}

func runMessage(args []string) error {
	flags := newCommandFlags("message", "message [options] <thing-id> <subject> [payload]")
	fs := flags.flagSet
	direction := fs.String("direction", "inbox", "Message direction: inbox or outbox")
	contentType := fs.String("content-type", "application/json", "Payload content type")
	reply := fs.Bool("reply", false, "Wait for a reply and print it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		fs.Usage()
		return fmt.Errorf("message expects a thing id, a subject and an optional payload")
	}
	id, err := model.ParseNamespacedID(fs.Arg(0))
	if err != nil {
		return err
	}

	opts := live.MessageOpts{
		ThingID:     id,
		Subject:     fs.Arg(1),
		Direction:   live.Direction(*direction),
		ContentType: *contentType,
	}
	if fs.NArg() == 3 {
		raw := fs.Arg(2)
		if *contentType == "application/json" && json.Valid([]byte(raw)) {
			opts.Payload = json.RawMessage(raw)
		} else {
			opts.Payload = raw
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := flags.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if *reply {
		resp, err := client.Live().RequestMessage(ctx, opts)
		if err != nil {
			return err
		}
		if len(resp) > 0 {
			fmt.Println(string(resp))
		}
		return nil
	}
	return client.Live().SendMessage(ctx, opts)
}

func runValidate(args []string) error {
	flags := newCommandFlags("validate", "validate [options]")
	if err := flags.flagSet.Parse(args); err != nil {
		return err
	}
	if _, err := twinstreams.LoadConfig(flags.configPath); err != nil {
		return err
	}
	fmt.Printf("%s: configuration is valid\n", flags.configPath)
	return nil
}

func printVersion() {
	info := twinstreams.Version()
	out := appName + " " + info.Version
	if info.Revision != "" {
		rev := info.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if info.Dirty {
			rev += "-dirty"
		}
		out += " (" + rev + ")"
	}
	fmt.Printf("%s %s\n", out, info.GoVersion)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
