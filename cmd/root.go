package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nicklasfrahm/rcmd/pkg/engine"
	"github.com/nicklasfrahm/rcmd/pkg/ops"
)

var version = "dev"
var help bool

// environment holds the defaults that may be set via the environment.
type environment struct {
	Config   string        `env:"RCMD_CONFIG" envDefault:"rcmd.yml"`
	LogLevel string        `env:"RCMD_LOG_LEVEL" envDefault:"info"`
	Timeout  time.Duration `env:"RCMD_TIMEOUT" envDefault:"5s"`
}

var (
	configPath string
	logLevel   string
	timeout    time.Duration
	logger     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rcmd",
	Short: "Run commands on a fleet of hosts",
	Long: `  ____   ____ __  __ ____
 |  _ \ / ___|  \/  |  _ \
 | |_) | |   | |\/| | | | |
 |  _ <| |___| |  | | |_| |
 |_| \_\\____|_|  |_|____/

Run commands on hosts that are reached via SSH, inside
Kubernetes pods or on the local machine. Arguments are
quoted so that every host receives exactly the command
that was typed.

By default the fleet is read from a "rcmd.yml" config
file in the current directory. You may override this
with the --config flag or the RCMD_CONFIG variable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if help {
			cmd.Help()
			os.Exit(0)
		}

		return setup(cmd)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&help, "help", "h", false, "display help for command")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rcmd.yml", "path to the fleet configuration `file`")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log `level` (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "connection timeout")
}

// setup applies the environment to all flags that were not set
// explicitly and configures the logger.
func setup(cmd *cobra.Command) error {
	var defaults environment
	if err := env.Parse(&defaults); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("config") {
		configPath = defaults.Config
	}
	if !flags.Changed("log-level") {
		logLevel = defaults.LogLevel
	}
	if !flags.Changed("timeout") {
		timeout = defaults.Timeout
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()

	return nil
}

// fleetFlags are the flags of all commands that operate on hosts.
type fleetFlags struct {
	hosts       string
	concurrency int
	kubeConfig  string
}

func (f *fleetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.hosts, "hosts", "H", engine.SelectorAll, "comma-separated host names or groups")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "maximum number of hosts processed at the same time")
	cmd.Flags().StringVar(&f.kubeConfig, "kubeconfig", "", "kubeconfig used for pods")
}

// options returns the options shared by all fleet operations.
func (f *fleetFlags) options() []ops.Option {
	return []ops.Option{
		ops.WithLogger(&logger),
		ops.WithConfigPath(configPath),
		ops.WithTimeout(timeout),
		ops.WithSelector(f.hosts),
		ops.WithConcurrency(f.concurrency),
		ops.WithKubeConfigPath(f.kubeConfig),
	}
}

// Execute starts the invocation of the command line interface.
// An interrupt cancels the running operation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
