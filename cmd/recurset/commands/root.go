package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recurset/internal/config"
	"recurset/internal/ics"
	appLog "recurset/internal/log"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	limit      int
	debug      bool
}

// NewRootCommand builds the recurset command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	command := &cobra.Command{
		Use:           "recurset",
		Short:         "Evaluate RRULE/RDATE/EXDATE recurrence rule sets",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.PersistentFlags().StringVar(&opts.configPath, "config", "./recurset.yaml", "Path to config file (serve and watch create it with defaults if missing)")
	command.PersistentFlags().IntVar(&opts.limit, "limit", 0, "Iteration limit override (0 uses the config value)")
	command.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	command.AddCommand(NewNormalizeCommand(opts))
	command.AddCommand(NewInfoCommand(opts))
	command.AddCommand(NewBetweenCommand(opts))
	command.AddCommand(NewNextCommand(opts))
	command.AddCommand(NewServeCommand(opts))
	command.AddCommand(NewWatchCommand(opts))
	return command
}

func Execute() {
	defer appLog.Sync()
	if err := NewRootCommand().Execute(); err != nil {
		appLog.Error("command failed", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// load reads the config file, applies flag overrides and sets the log level.
// A missing file is written with defaults only when create is set.
func (o *globalOptions) load(create bool) (*config.Config, error) {
	read := config.ReadOrDefault
	if create {
		read = config.Load
	}
	cfg, err := read(o.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", o.configPath)
		return nil, err
	}
	if o.limit > 0 {
		cfg.IterationLimit = o.limit
	}
	if o.debug {
		cfg.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"duration", cfg.Duration,
		"iteration_limit", cfg.IterationLimit,
		"rule_count", len(cfg.Rules),
	)
	return cfg, nil
}

// parseFile reads a rule text from path ("-" for stdin) and parses it with
// the configured defaults.
func (o *globalOptions) parseFile(cmd *cobra.Command, path string) (*ics.RecurringIntervalSet, *config.Config, error) {
	cfg, err := o.load(false)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.ParseOptions()
	if err != nil {
		return nil, nil, err
	}

	var data []byte
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, nil, err
	}

	set, err := ics.Parse(string(data), opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
