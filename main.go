package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meetbot/internal/bootstrap"
	"meetbot/internal/config"
	"meetbot/internal/domain"
	"meetbot/internal/logging"
)

var version = "0.1.0"

type joinFlags struct {
	name      string
	noRecord  bool
	headless  bool
	outputDir string
	device    string
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "meetbot",
		Short:         "Join video meetings and record their audio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/meetbot/config.toml)")

	var jf joinFlags
	joinCmd := &cobra.Command{
		Use:   "join [meeting-link]",
		Short: "Join a meeting and record it until it ends",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyJoinFlags(cmd, &cfg, jf, args)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runJoin(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	joinCmd.Flags().StringVar(&jf.name, "name", "", "display name shown to other participants")
	joinCmd.Flags().BoolVar(&jf.noRecord, "no-record", false, "join without recording audio")
	joinCmd.Flags().BoolVar(&jf.headless, "headless", false, "run Chrome without a window")
	joinCmd.Flags().StringVar(&jf.outputDir, "output-dir", "", "directory for recordings")
	joinCmd.Flags().StringVar(&jf.device, "device", "", "audio input device name")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return listDevices(cfg, cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meetbot v%s\n", version)
		},
	}

	root.AddCommand(joinCmd, devicesCmd, versionCmd)
	return root
}

func applyJoinFlags(cmd *cobra.Command, cfg *config.Config, jf joinFlags, args []string) {
	if len(args) == 1 {
		cfg.Meeting.Link = args[0]
	}
	if jf.name != "" {
		cfg.Meeting.DisplayName = jf.name
	}
	if jf.noRecord {
		cfg.Meeting.RecordingEnabled = false
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = jf.headless
	}
	if jf.outputDir != "" {
		cfg.Audio.OutputDir = jf.outputDir
	}
	if jf.device != "" {
		cfg.Audio.Device = jf.device
	}
}

func runJoin(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger, closeLog, err := logging.New(logging.Config{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closeLog.Close()
	logger = logger.With("run_id", uuid.NewString())

	recording := "DISABLED"
	if cfg.Meeting.RecordingEnabled {
		recording = "ENABLED"
	}
	fmt.Fprintf(out, "Meeting: %s\nBot name: %s\nRecording: %s\n\n", cfg.Meeting.Link, cfg.Meeting.DisplayName, recording)

	app := NewApp(logger, out)
	services, err := bootstrap.Build(cfg, logger, app)
	if err != nil {
		app.SessionError(domain.ErrorCodeStartup, err.Error())
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("error releasing audio backend", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tr transcriber
	if services.Handoff != nil {
		tr = services.Handoff
	}
	return app.Run(ctx, services.Controller, tr)
}

func listDevices(cfg config.Config, out io.Writer) error {
	input, release, err := bootstrap.BuildAudioInput(cfg.Audio)
	if err != nil {
		return err
	}
	defer release()

	devices, err := input.Devices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "No audio devices found")
		return nil
	}
	for i, device := range devices {
		if device.MaxInputChannels <= 0 {
			continue
		}
		fmt.Fprintf(out, "%d: %s (%d in, %.0f Hz)\n", i, device.Name, device.MaxInputChannels, device.DefaultSampleRate)
	}
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
