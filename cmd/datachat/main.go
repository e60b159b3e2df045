// DataChat is a conversational data analysis service.
//
// Users upload a tabular dataset into a session and converse with it in
// free text. An inference backend decides which analysis operations to
// run; the orchestrator runs them, synthesizes a narrative answer, and
// persists the exchange. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	datachat serve                 Start the API server
//	datachat adduser <name>        Create a user and print their API key
//	datachat adduser -unlimited <name>
//	datachat version               Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/datachat-ai/datachat/internal/analyze"
	"github.com/datachat-ai/datachat/internal/buildinfo"
	"github.com/datachat-ai/datachat/internal/config"
	"github.com/datachat-ai/datachat/internal/dataset"
	"github.com/datachat-ai/datachat/internal/dispatch"
	"github.com/datachat-ai/datachat/internal/llm"
	"github.com/datachat-ai/datachat/internal/ops"
	"github.com/datachat-ai/datachat/internal/orchestrator"
	"github.com/datachat-ai/datachat/internal/quota"
	"github.com/datachat-ai/datachat/internal/store"
	"github.com/datachat-ai/datachat/internal/web"
)

// main constructs the OS-level environment and delegates to run, which
// keeps os.Exit and os.Args out of the application logic so the startup
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	// Secrets referenced from the config file via ${VAR} can live in a
	// local .env during development. Missing file is fine.
	_ = godotenv.Load()

	var configPath string
	var unlimited bool
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-unlimited":
			unlimited = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "serve", "":
		return serve(ctx, stdout, configPath)
	case "adduser":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: datachat adduser [-unlimited] <name>")
		}
		return addUser(ctx, stdout, configPath, cmdArgs[0], unlimited)
	default:
		return fmt.Errorf("unknown command %q (try -help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `Usage: datachat [-config path] <command>

Commands:
  serve                       Start the API server (default)
  adduser [-unlimited] <name> Create a user and print their API key
  version                     Print version and build information`)
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.New(filepath.Join(cfg.DataDir, "datachat.db"))
}

// buildClients resolves the configured primary/secondary names into
// backend clients.
func buildClients(cfg *config.Config, logger *slog.Logger) (primary, secondary llm.Client, err error) {
	byName := func(name string) (llm.Client, error) {
		switch name {
		case "anthropic":
			return llm.NewAnthropicClient(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model, logger), nil
		case "openai":
			return llm.NewOpenAIClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.BaseURL, cfg.Providers.OpenAI.Model, logger), nil
		}
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	if primary, err = byName(cfg.Providers.Primary); err != nil {
		return nil, nil, err
	}
	if secondary, err = byName(cfg.Providers.Secondary); err != nil {
		return nil, nil, err
	}
	if cfg.Providers.Primary == cfg.Providers.Secondary {
		return nil, nil, fmt.Errorf("primary and secondary providers must differ")
	}
	return primary, secondary, nil
}

func serve(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting datachat", "version", buildinfo.Version)

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	primary, secondary, err := buildClients(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := dispatch.NewDispatcher(
		primary,
		secondary,
		time.Duration(cfg.Providers.RequestTimeoutSec)*time.Second,
		time.Duration(cfg.Providers.RetryBackoffMS)*time.Millisecond,
		logger,
	)

	registry := dataset.NewRegistry()
	catalog := analyze.Catalog()
	invoker := ops.NewInvoker(catalog, registry, logger)
	ledger := quota.NewLedger(st, cfg.Quota.DailyCap)
	hub := web.NewHub(logger)

	orch := orchestrator.New(st, registry, catalog, invoker, dispatcher, ledger, hub, logger)
	server := web.NewServer(cfg.Listen.Address, cfg.Listen.Port, st, registry, orch, hub, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func addUser(ctx context.Context, stdout io.Writer, configPath, name string, unlimited bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	secret, hash, err := store.NewAPISecret()
	if err != nil {
		return err
	}
	user, err := st.CreateUser(ctx, name, hash, unlimited)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(stdout, "user %s created (id %s)\n", user.Name, user.ID)
	fmt.Fprintf(stdout, "API key (shown once, store it now):\n%s\n", store.FormatAPIKey(user.ID, secret))
	return nil
}
