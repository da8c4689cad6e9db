// Package main is the entry point for the agenthook policy daemon. It
// reads event requests from stdin, one JSON object per line, and writes
// one decision per line to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/agenthook/audit"
	"github.com/dshills/agenthook/config"
	"github.com/dshills/agenthook/dispatch"
	"github.com/dshills/agenthook/handlers/command"
	"github.com/dshills/agenthook/handlers/pattern"
	"github.com/dshills/agenthook/handlers/script"
	"github.com/dshills/agenthook/host"
	"github.com/dshills/agenthook/internal/log"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	ConfigPath string
	AuditPath  string
	LogLevel   string
	NoReload   bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	switch opts.LogLevel {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "info":
		log.SetLevel(log.LevelInfo)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	}

	rt, err := buildRuntime(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	var mu sync.Mutex
	current := rt
	defer func() {
		mu.Lock()
		current.close()
		mu.Unlock()
	}()

	h := host.New(rt.dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.ConfigPath != "" && !opts.NoReload {
		watcher, err := config.NewWatcher(opts.ConfigPath, config.DefaultDebounce, func() {
			next, err := buildRuntime(opts)
			if err != nil {
				log.Error("config reload failed, keeping previous policy: %v", err)
				return
			}
			h.Swap(next.dispatcher)
			mu.Lock()
			current.close()
			current = next
			mu.Unlock()
			log.Info("configuration reloaded from %s", opts.ConfigPath)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to watch config: %v\n", err)
			return 1
		}
		defer watcher.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Serve(ctx, os.Stdin, os.Stdout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runtime holds one generation of policy: the dispatcher plus everything
// that must be released when it is replaced or the process exits.
type runtime struct {
	dispatcher *dispatch.Dispatcher
	closers    []func()
}

func (r *runtime) close() {
	if r.dispatcher != nil {
		if err := r.dispatcher.Close(); err != nil {
			log.Error("closing dispatcher: %v", err)
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime loads the configuration and assembles the registry, audit
// sink, and dispatcher.
func buildRuntime(opts options) (*runtime, error) {
	cfg := &config.File{}
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	rt := &runtime{}
	reg := dispatch.NewRegistry()

	for _, def := range cfg.Rules {
		h, err := pattern.FromDef(def)
		if err != nil {
			rt.close()
			return nil, err
		}
		if err := reg.Register(h, dispatch.WithPriority(def.Priority)); err != nil {
			rt.close()
			return nil, err
		}
	}
	for _, def := range cfg.Scripts {
		h, err := script.FromDef(def)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, h.Close)
		if err := reg.Register(h, dispatch.WithPriority(def.Priority)); err != nil {
			rt.close()
			return nil, err
		}
	}
	for _, def := range cfg.Commands {
		h, err := command.FromDef(def)
		if err != nil {
			rt.close()
			return nil, err
		}
		if err := reg.Register(h, dispatch.WithPriority(def.Priority)); err != nil {
			rt.close()
			return nil, err
		}
	}
	reg.Seal()

	auditPath := cfg.Audit.Path
	if opts.AuditPath != "" {
		auditPath = opts.AuditPath
	}
	var sink audit.Sink
	if auditPath != "" {
		fs, err := audit.NewFileSink(auditPath)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() {
			if err := fs.Close(); err != nil {
				log.Error("closing audit sink: %v", err)
			}
		})
		sink = fs
	}

	rt.dispatcher = dispatch.New(reg, sink, cfg.DispatchConfig())
	return rt, nil
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to policy configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to policy configuration file (shorthand)")
	flag.StringVar(&opts.AuditPath, "audit", "", "Audit log file (overrides configuration)")
	flag.StringVar(&opts.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.NoReload, "no-reload", false, "Disable configuration hot reload")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "agenthookd - lifecycle hook policy daemon\n\n")
		fmt.Fprintf(os.Stderr, "Usage: agenthookd [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  agenthookd -c hooks.toml              Serve the policy in hooks.toml\n")
		fmt.Fprintf(os.Stderr, "  agenthookd -c hooks.toml -audit a.log Audit decisions to a.log\n")
		fmt.Fprintf(os.Stderr, "  echo '{\"kind\":\"SessionStart\"}' | agenthookd\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("agenthookd %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	return opts
}

