package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		wait time.Duration
		name string
	)
	cmd := &cobra.Command{
		Use:   "send <value>...",
		Short: "Publish values to the server and print what comes back",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ch, err := p.registry().Dial(ctx, nil, name)
			if err != nil {
				return err
			}
			defer ch.Close()

			watchCtx, cancel := context.WithTimeout(ctx, wait)
			defer cancel()
			replies := ch.Subscribe(watchCtx)
			if err := ch.WaitReady(ctx); err != nil {
				return err
			}
			for _, v := range args {
				if err := ch.Publish(v).Wait(ctx); err != nil {
					return fmt.Errorf("publish %q: %w", v, err)
				}
			}

			out := cmd.OutOrStdout()
			for v := range replies {
				fmt.Fprintln(out, v)
			}
			ch.Unbind()
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to print replies")
	cmd.Flags().StringVar(&name, "name", "send", "channel name used in logs and metrics")
	return cmd
}
