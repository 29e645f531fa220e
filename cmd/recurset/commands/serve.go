package commands

import (
	"github.com/spf13/cobra"

	appLog "recurset/internal/log"
	"recurset/internal/web"
)

func NewServeCommand(g *globalOptions) *cobra.Command {
	var listen string

	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured rule sets over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(true)
			if err != nil {
				return err
			}
			// --listen overrides the config file if provided.
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, cancel := signalContext()
			defer cancel()

			appLog.Info("recurset serving", "listen", cfg.Listen, "rule_count", len(cfg.Rules))
			return web.StartServer(ctx, cfg, g.debug)
		},
	}

	command.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return command
}
