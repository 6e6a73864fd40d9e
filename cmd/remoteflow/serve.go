package main

import (
	"github.com/danmuck/remoteflow/internal/config"
	"github.com/danmuck/remoteflow/internal/service"
	"github.com/spf13/cobra"
)

// newServeCmd runs the server. Its settings come from --config when given, otherwise
// from the profile; the persistent flags override either.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		configPath string
		autoStart  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg    service.Config
				logCfg config.LogConfig
			)
			if configPath != "" {
				file, err := config.LoadServerConfig(configPath)
				if err != nil {
					return err
				}
				if cfg, err = file.ServiceConfig(); err != nil {
					return err
				}
				logCfg = file.Log
			} else {
				p, err := opts.loadProfile()
				if err != nil {
					return err
				}
				cfg = p.serviceConfig()
				logCfg = config.LogConfig{Level: p.LogLevel}
			}
			opts.override(cmd, &cfg.RuntimeDir, &cfg.ProcessID, &cfg.Service, &cfg.ControlAddr)
			if cmd.Flags().Changed("auto-start") {
				cfg.AutoStart = autoStart
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			applyLogConfig(logCfg)
			return service.New(cfg).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "server config file")
	cmd.Flags().BoolVar(&autoStart, "auto-start", false, "start the receive loop without waiting for ACTION_START")
	return cmd
}
