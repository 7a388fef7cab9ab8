package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/metacache"
	"github.com/unkn0wn-root/metacache/config"
	zaplog "github.com/unkn0wn-root/metacache/log/zap"
)

const usage = `usage: metacache [-config path] <command> [args]

commands:
  kinds                            list kinds and how long they stay fresh
  get [-behaviour b] <kind> <key>...  resolve keys and print entries as JSON
  hash [-behaviour b] <path>...    hash files under cache.profiles_dir
`

const closeTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("metacache", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "kinds":
		return printKinds(out)
	case "get", "hash":
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	sub := flag.NewFlagSet(cmd, flag.ContinueOnError)
	sub.SetOutput(out)
	behaviour := sub.String("behaviour", cfg.Cache.Behaviour, "stale_while_revalidate | must_revalidate | bypass | stale_if_offline")
	if err := sub.Parse(rest); err != nil {
		return err
	}
	b, err := metacache.ParseBehaviour(*behaviour)
	if err != nil {
		return err
	}

	kind := metacache.KindContentHash
	keys := sub.Args()
	if cmd == "get" {
		if len(keys) < 2 {
			return errors.New("get: want <kind> <key>...")
		}
		if kind, err = metacache.ParseKind(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	if len(keys) == 0 {
		return fmt.Errorf("%s: no keys", cmd)
	}

	zl, err := zaplog.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zaplog.ZapLogger{L: zl.With(zap.String("module", "metacache"))}

	store, err := cfg.OpenStore(ctx, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			log.Warn("close store", metacache.Fields{"err": err})
		}
	}()

	c, err := metacache.New(cfg.Options(store, cfg.NewOrigin(log), log, prometheus.NewRegistry()))
	if err != nil {
		return err
	}
	// drains stale refreshes scheduled by this lookup before the store closes
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = c.Close(cctx)
	}()

	entries, err := c.GetMany(ctx, kind, keys, b)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func printKinds(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tFRESH FOR\tSINGLETON\tCASE-INSENSITIVE ALIAS")
	for _, k := range metacache.AllKinds() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", k, k.Freshness(), k.Singleton(), k.FoldAlias())
	}
	return tw.Flush()
}
