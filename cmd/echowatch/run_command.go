package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"echowatch/internal/config"
	"echowatch/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var diagnostic bool
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring pipeline in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			printBanner(cmd.OutOrStdout(), cfg, ctx.configPath, shouldColorize(cmd.OutOrStdout()))
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
				Diagnostic:  diagnostic,
			})
		},
	}
	cmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Enable diagnostic mode with separate DEBUG logs")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}

func printBanner(out io.Writer, cfg *config.Config, configPath string, colorize bool) {
	for _, line := range renderSectionHeader("EchoWatch", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Config:     %s\n", configPath)
	fmt.Fprintf(out, "Feed:       %s\n", cfg.Source.CallsURL)
	fmt.Fprintf(out, "Staging:    %s\n", cfg.Paths.StagingDir)
	fmt.Fprintf(out, "Model:      %s\n", cfg.LLM.Model)
	fmt.Fprintf(out, "WhisperX:   %s (cuda: %s)\n", cfg.Audio.WhisperXModel, yesNo(cfg.Audio.WhisperXCUDAEnabled))
	fmt.Fprintf(out, "Threshold:  %.1f\n", cfg.Analysis.SeverityThreshold)
	fmt.Fprintf(out, "Alerts:     %s\n", yesNo(cfg.Notifications.NtfyTopic != "" && cfg.Notifications.Alerts))
	fmt.Fprintln(out, "Press Ctrl+C to stop.")
	fmt.Fprintln(out)
}
