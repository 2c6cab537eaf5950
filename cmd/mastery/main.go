// Package main is the command-line front end of the curriculum progression
// tracker: it logs a learner in, lists topics, and records selections and
// completions in the configured store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copilot-mastery/mastery/config"
	"github.com/copilot-mastery/mastery/internal/domain/shared"
	"github.com/copilot-mastery/mastery/pkg/logger"
)

// cli owns the command tree and the environment opened for one invocation.
type cli struct {
	root *cobra.Command
	env  *environment

	// Global flags
	configPath string
	store      string
	verbose    bool
}

func newCLI() *cli {
	c := &cli{}

	c.root = &cobra.Command{
		Use:   "mastery",
		Short: "Track progress through the Copilot Mastery curriculum",
		Long: `mastery keeps track of which curriculum topics a learner has unlocked and
which topic is active. Completing a topic unlocks the next one.

Progress is stored per learner name in a local SQLite file by default;
redis and postgres backends can be selected with --store or mastery.yaml.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
	}

	c.root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Config file (default: ./mastery.yaml, then the user config dir)")
	c.root.PersistentFlags().StringVar(&c.store, "store", "", "Store backend: memory, sqlite, redis or postgres")
	c.root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	current := func() *environment { return c.env }
	c.root.AddCommand(
		newLoginCmd(current),
		newLogoutCmd(current),
		newWhoamiCmd(current),
		newStatusCmd(current),
		newSelectCmd(current),
		newCompleteCmd(current),
		newMigrateCmd(current),
	)

	return c
}

// open loads configuration and opens the store before any subcommand runs.
func (c *cli) open(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Backend = c.store
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	c.env, err = openEnvironment(cmd.Context(), cfg, newLogger(cfg, c.verbose))
	return err
}

// Execute runs the command line in args and closes whatever was opened.
func (c *cli) Execute(ctx context.Context, args []string) error {
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)

	if c.env != nil {
		if cerr := c.env.Close(); cerr != nil && err == nil {
			err = cerr
		}
		c.env = nil
	}
	return err
}

func newLogger(cfg *config.Config, verbose bool) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	opts.FilePath = cfg.Observability.LogFile
	if verbose || cfg.App.Debug {
		opts.Level = logger.LevelDebug
		opts.AddCaller = true
	}

	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for rejected input (bad name, unknown topic) and 1 otherwise.
func exitCode(err error) int {
	if shared.IsValidation(err) {
		return 2
	}
	return 1
}
