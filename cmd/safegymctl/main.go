package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"safegym/internal/config"
	"safegym/internal/logging"
	"safegym/internal/storage"
	safegym "safegym/pkg/safegym"
)

const (
	defaultDBPath     = "safegym.db"
	defaultExportsDir = "exports"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	storeKind  string
	dbPath     string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "safegymctl",
		Short: "Run and inspect hazard-aware action limiting experiments",
		Long: `safegymctl drives point-hazard navigation episodes with or without the
action limiter, which rescales forward motion as hazards close in ahead or
behind, and keeps the results for later inspection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&g.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&g.dbPath, "db-path", defaultDBPath, "sqlite database path")
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&g.logFormat, "log-format", "text", "log format: text|json")

	root.AddCommand(
		newRunCmd(g),
		newCompareCmd(g),
		newEnvsCmd(),
		newRunsCmd(g),
		newEpisodesCmd(g),
		newDeleteCmd(g),
		newEnvelopeCmd(),
		newExportCmd(g),
	)
	return root
}

// loadConfig reads --config (or the defaults) and applies the global flags
// the user set explicitly.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("store") || cfg.Store.Kind == "" {
		cfg.Store.Kind = g.storeKind
	}
	if flags.Changed("db-path") || cfg.Store.Path == "" {
		cfg.Store.Path = g.dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

func (g *globalFlags) logger(cmd *cobra.Command, cfg config.Config) (*slog.Logger, error) {
	return logging.NewLogger(cfg.Log.Logging(), cmd.ErrOrStderr())
}

func (g *globalFlags) client(cmd *cobra.Command, cfg config.Config, exportsDir string) (*safegym.Client, error) {
	logger, err := g.logger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	if exportsDir == "" {
		exportsDir = cfg.Artifacts
	}
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	return safegym.New(safegym.Options{
		StoreKind:  cfg.Store.Kind,
		DBPath:     cfg.Store.Path,
		ExportsDir: exportsDir,
		Logger:     logger,
	})
}
