package main

import (
	"fmt"
	"time"

	"github.com/danmuck/remoteflow/internal/client"
	"github.com/danmuck/remoteflow/internal/config"
	"github.com/danmuck/remoteflow/internal/control"
	"github.com/spf13/cobra"
)

func newDemoCmd(opts *rootOptions) *cobra.Command {
	var (
		configPath string
		count      int
		interval   time.Duration
		noControl  bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the reference client session against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			sessCfg := client.DefaultConfig()
			registry := p.registry()
			controlAddr := p.ControlAddr
			if configPath != "" {
				file, err := config.LoadClientConfig(configPath)
				if err != nil {
					return err
				}
				applyLogConfig(file.Log)
				sessCfg = file.SessionConfig()
				registry = file.Registry()
				if file.ControlAddr != "" {
					controlAddr = file.ControlAddr
				}
			}
			if cmd.Flags().Changed("count") {
				sessCfg.Count = count
			}
			if cmd.Flags().Changed("interval") {
				sessCfg.Interval = interval
			}

			var ctl *control.Client
			if !noControl {
				ctl = control.NewClient(controlAddr)
			}
			session := client.NewSession(sessCfg, registry, ctl)
			runErr := session.Run(cmd.Context())
			printSummary(cmd, session.Summary())
			return runErr
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "client config file")
	cmd.Flags().IntVar(&count, "count", 120, "number of greetings to send")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between greetings")
	cmd.Flags().BoolVar(&noControl, "no-control", false, "do not send START/STOP through the control server")
	return cmd
}

func printSummary(cmd *cobra.Command, sum client.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sent: %d\n", sum.Sent)
	fmt.Fprintf(out, "last response: %s\n", sum.LastResponse)
	fmt.Fprintf(out, "last heartbeat: %d\n", sum.LastHeartbeat)
	for i, v := range sum.Read {
		fmt.Fprintf(out, "read[%d]: %s\n", i, v)
	}
}
