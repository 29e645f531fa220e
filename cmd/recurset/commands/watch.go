package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"recurset/internal/config"
	appLog "recurset/internal/log"
	"recurset/internal/source"
)

func NewWatchCommand(g *globalOptions) *cobra.Command {
	var once bool

	command := &cobra.Command{
		Use:   "watch",
		Short: "Periodically reload the configured rule sets and report upcoming occurrences",
		Long: `Watch reloads every configured rule source on the cron schedule from the
"watch" config key and prints the next occurrence of each set.

Examples:
  # Report once and exit
  recurset watch --once

  # Follow the configured schedule until interrupted
  recurset watch --config /etc/recurset/config.yaml
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(true)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			w := &watcher{cfg: cfg, loader: source.NewLoader(cfg.CacheDir), out: cmd.OutOrStdout(), now: time.Now}
			if once {
				return w.tick(ctx)
			}
			return w.run(ctx)
		},
	}

	command.Flags().BoolVar(&once, "once", false, "Run a single reload and exit")
	return command
}

// watcher reloads rule sources and reports the next occurrence per set.
type watcher struct {
	cfg    *config.Config
	loader *source.Loader
	out    io.Writer
	now    func() time.Time
}

func (w *watcher) run(ctx context.Context) error {
	loc, err := w.cfg.Location()
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(w.cfg.WatchCron, func() {
		if err := w.tick(ctx); err != nil {
			appLog.Error("watch tick failed", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", w.cfg.WatchCron, err)
	}

	// Report immediately rather than waiting for the first schedule slot.
	if err := w.tick(ctx); err != nil {
		appLog.Error("watch tick failed", err)
	}

	appLog.Info("watch scheduler started", "schedule", w.cfg.WatchCron)
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	appLog.Info("watch scheduler stopped")
	return nil
}

// tick reloads every source and writes one line per compiled set.
func (w *watcher) tick(ctx context.Context) error {
	opts, err := w.cfg.ParseOptions()
	if err != nil {
		return err
	}
	sets, errs := w.loader.Compile(ctx, source.FromConfig(w.cfg.Rules), opts)

	now := w.now()
	for _, c := range sets {
		next := "none"
		if iv, ok := c.Set.FirstAfter(now).Get(); ok {
			next = iv.String()
		}
		fmt.Fprintf(w.out, "%s\t%s\n", c.Source.ID, next)
		appLog.Debug("watch next occurrence", "id", c.Source.ID, "next", next)
	}
	return multierr.Combine(errs...)
}
