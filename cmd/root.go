package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "proteus",
	Short: "Generative audio container player",
	Long: `proteus - A player for generative audio containers.

A .prot/.mka container bundles alternative recordings of each part of a
composition. On every playback one recording per part is drawn at random
and the chosen tracks are mixed down in real time, so no two plays sound
the same.

Commands:
  - play: Play a container with live seek, pause and reshuffle
  - info: Print the tracks, durations and play settings of a container`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(-1)
	}
}
