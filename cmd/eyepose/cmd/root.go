package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gazelab/eyepose/internal/eyepose"
)

var (
	version = "dev"

	debugFlag bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "eyepose",
	Short: "Model-based 3D eye pose recovery from pupil images",
	Long: `eyepose recovers 3D eye rotation and pupil size from the elliptical
appearance of the pupil in camera images, using a ray-traced model of
corneal refraction.

Typical workflow:
  eyepose calibrate --scenes scenes.json --out geometry.json
  eyepose fit --geometry geometry.json --frames frames.json
  eyepose project --geometry geometry.json --azimuth 10 --elevation -5`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command; called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "verbose debug output")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debugFlag {
			level = slog.LevelDebug
			eyepose.Debug = true
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}
}
