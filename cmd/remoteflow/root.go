package main

import (
	"github.com/danmuck/remoteflow/internal/config"
	"github.com/danmuck/remoteflow/internal/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	profilePath string
	runtimeDir  string
	processID   string
	service     string
	controlAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "remoteflow",
		Short:         "Cross-process message bridge with a foreground heartbeat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.profilePath, "profile", "", "connection profile (default $XDG_CONFIG_HOME/remoteflow/profile.toml)")
	flags.StringVar(&opts.runtimeDir, "runtime-dir", "", "directory holding the bridge sockets")
	flags.StringVar(&opts.processID, "process-id", "", "process id of the server")
	flags.StringVar(&opts.service, "service", "", "service name of the server")
	flags.StringVar(&opts.controlAddr, "control", "", "control server address")

	cmd.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newActionCmd(opts),
		newStateCmd(opts),
		newDemoCmd(opts),
		newConfigCmd(),
	)
	return cmd
}

// resolve merges the profile file with explicitly set flags and configures logging.
func (o *rootOptions) resolve(cmd *cobra.Command) (profile, error) {
	p, err := o.loadProfile()
	if err != nil {
		return profile{}, err
	}
	o.override(cmd, &p.RuntimeDir, &p.ProcessID, &p.Service, &p.ControlAddr)
	if err := p.target().Validate(); err != nil {
		return profile{}, err
	}

	applyLogConfig(config.LogConfig{Level: p.LogLevel})
	return p, nil
}

// applyLogConfig configures logging from a file's [log] table; environment overrides still win.
func applyLogConfig(cfg config.LogConfig) {
	logging.Apply(logging.Resolve(logging.ProfileRuntime, func(c *logging.Config) {
		if lvl, ok := logging.ParseLevel(cfg.Level); ok {
			c.Level = lvl
		}
		c.JSON = cfg.JSON
	}))
}

// loadProfile reads --profile, or the default profile when it exists.
func (o *rootOptions) loadProfile() (profile, error) {
	path, required := o.profilePath, true
	if path == "" {
		path, required = defaultProfilePath(), false
	}
	return loadProfile(path, required)
}

// override replaces each field whose persistent flag was set on the command line.
func (o *rootOptions) override(cmd *cobra.Command, runtimeDir, processID, service, controlAddr *string) {
	flags := cmd.Flags()
	if flags.Changed("runtime-dir") {
		*runtimeDir = o.runtimeDir
	}
	if flags.Changed("process-id") {
		*processID = o.processID
	}
	if flags.Changed("service") {
		*service = o.service
	}
	if flags.Changed("control") {
		*controlAddr = o.controlAddr
	}
}
