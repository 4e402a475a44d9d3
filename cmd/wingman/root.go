package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/wingman/internal/config"
	wlog "github.com/teslashibe/wingman/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	backend    string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "wingman",
		Short:         "Hands-free voice copilot backed by a live agent",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to wingman.yaml")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "text or json")
	flags.StringVar(&opts.backend, "audio", "", "audio backend: auto, native or mock")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newTalkCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.backend != "" {
		cfg.Audio.Backend = audioBackend(o.backend)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	wlog.Init(cfg.Log.Level, cfg.Log.Format)
	wlog.L().Debug("configuration loaded", "command", cmd.Name(), "backend", cfg.Audio.Backend)
	o.cfg = cfg
	return nil
}
