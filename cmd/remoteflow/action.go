package main

import (
	"fmt"

	"github.com/danmuck/remoteflow/internal/control"
	"github.com/danmuck/remoteflow/internal/foreground"
	"github.com/spf13/cobra"
)

func newActionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "action start|stop",
		Short:     "Send a lifecycle action to the server",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := control.ParseAction(args[0])
			if err != nil {
				return err
			}
			p, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			if err := control.NewClient(p.ControlAddr).Send(cmd.Context(), action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s accepted\n", action)
			return nil
		},
	}
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print whether the server runs in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			active, err := control.NewClient(p.ControlAddr).Foreground(cmd.Context())
			if err == nil {
				fmt.Fprintf(out, "foreground: %s\n", activeLabel(active))
				return nil
			}

			// Without a control server the status file is the only evidence.
			path, pathErr := p.registry().StatusPath()
			if pathErr != nil {
				return err
			}
			req, ok, readErr := foreground.ReadStatus(path)
			if readErr != nil {
				return fmt.Errorf("%w (status file: %v)", err, readErr)
			}
			fmt.Fprintf(out, "foreground: %s (from %s)\n", activeLabel(ok), path)
			if ok {
				fmt.Fprintf(out, "notification: %d %q\n", req.NotificationID, req.Descriptor.Title)
			}
			return nil
		},
	}
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
