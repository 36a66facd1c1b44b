// Package main is the command line client of the jsondocs store.
//
// jsondocs reads and writes the per-key JSON documents of a store directory,
// going through the same locking, caching and atomic replacement as any other
// user of the store. Configuration is read from an optional YAML file and CLI
// flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/jsondocs/internal/config"
	"github.com/maruel/jsondocs/internal/docstore"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: jsondocs [flags] <command> [args]

commands:
  get KEY...      print the documents for the keys
  put KEY [FILE]  save the JSON document read from FILE or stdin
  history KEY     list the saved revisions of KEY
  show KEY HASH   print KEY as saved in revision HASH

flags:
`

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "jsondocs: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "jsondocs.yaml", "Path to the YAML configuration file (optional)")
	dataDir := flag.String("data-dir", "", "Data directory, overrides the configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error), overrides the configuration file")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		printVersion(os.Stdout)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(ll))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Flags explicitly set win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			cfg.DataDir = *dataDir
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch cfg.LogLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	opts := []docstore.Option{
		docstore.WithCacheTTL(cfg.Cache.TTL),
		docstore.WithCacheCapacity(uint64(cfg.Cache.Capacity)),
	}
	if cfg.History.Enabled {
		opts = append(opts, docstore.WithHistory(cfg.History.Name, cfg.History.Email))
	}
	store, err := docstore.New(cfg.DataDir, cfg.Default, opts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()
	slog.DebugContext(ctx, "Opened store", "dir", store.Dir())

	return run(ctx, store, args, os.Stdin, os.Stdout)
}

// run executes one command against store.
func run(ctx context.Context, store *docstore.Store, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "get":
		if len(args) == 0 {
			return errors.New("get: at least one key is required")
		}
		return get(ctx, store, args, stdout)
	case "put":
		if len(args) != 1 && len(args) != 2 {
			return errors.New("put: usage: put KEY [FILE]")
		}
		r := stdin
		if len(args) == 2 {
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("put: %w", err)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		return put(ctx, store, args[0], r)
	case "history":
		if len(args) != 1 {
			return errors.New("history: usage: history KEY")
		}
		revs, err := store.History(ctx, args[0], 0)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		for _, r := range revs {
			if _, err := fmt.Fprintf(stdout, "%s %s %s %s\n", r.Hash, r.When.Format(time.RFC3339), r.Author, r.Message); err != nil {
				return err
			}
		}
		return nil
	case "show":
		if len(args) != 2 {
			return errors.New("show: usage: show KEY HASH")
		}
		doc, err := store.LoadRevision(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("show: %w", err)
		}
		return printJSON(stdout, doc)
	default:
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

// get loads all keys concurrently and prints them in argument order.
func get(ctx context.Context, store *docstore.Store, keys []string, stdout io.Writer) error {
	docs := make([]any, len(keys))
	eg, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		eg.Go(func() error {
			doc, err := store.Load(ctx, key)
			if err != nil {
				return fmt.Errorf("get %q: %w", key, err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := printJSON(stdout, doc); err != nil {
			return err
		}
	}
	return nil
}

func put(ctx context.Context, store *docstore.Store, key string, r io.Reader) error {
	var doc any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("put: invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("put: expected a single JSON document")
	}
	if err := store.Save(ctx, key, doc); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	slog.InfoContext(ctx, "Saved document", "key", key)
	return nil
}

func printJSON(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func newLogger(ll *slog.LevelVar) *slog.Logger {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion(w io.Writer) {
	version, revision := "unknown", ""
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
		if version == "" || version == "(devel)" {
			version = "dev"
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				if setting.Value == "true" {
					revision += "-dirty"
				}
			}
		}
		version += " " + info.GoVersion
	}
	fmt.Fprintf(w, "jsondocs %s\n", version)
	if revision != "" {
		fmt.Fprintf(w, "  Revision: %s\n", revision)
	}
}
