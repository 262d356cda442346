package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Proteus-Audio/proteus-cli/pkg/container"
	"github.com/Proteus-Audio/proteus-cli/pkg/prot"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <INPUT>",
	Short: "Print tracks, durations and play settings of a container",
	Args:  cobra.ExactArgs(1),
	Run:   runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	input := args[0]

	info, err := container.ReadInfo(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(-1)
	}

	fmt.Printf("File: %s\n", input)
	fmt.Printf("Tracks: %d\n", len(info.Tracks))
	for _, track := range info.Tracks {
		kind := "other"
		if track.IsAudio() {
			kind = "audio"
		}
		line := fmt.Sprintf("  #%d  %-5s %s", track.Number, kind, track.CodecID)
		if track.IsAudio() {
			line += fmt.Sprintf("  %.0f Hz, %d ch, %d bit", track.SampleRate, track.Channels, track.BitDepth)
		}
		if duration, err := info.TrackDuration(track.Number); err == nil {
			line += fmt.Sprintf("  %s", formatTime(duration))
		}
		fmt.Println(line)
	}

	settings, ok := info.Attachments[prot.AttachmentName]
	if !ok {
		fmt.Println("Play settings: none")
		return
	}

	manifest, err := prot.ParseManifest(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(-1)
	}

	fmt.Printf("Play settings: %d groups", len(manifest.Groups))
	if manifest.HasVersion {
		fmt.Printf(" (encoder version %g)", manifest.EncoderVersion)
	}
	fmt.Println()
	for i, group := range manifest.Groups {
		if group.Legacy {
			fmt.Printf("  group %d: tracks %d..%d\n", i,
				group.StartingIndex+1, group.StartingIndex+group.Length)
			continue
		}
		fmt.Printf("  group %d: tracks %v\n", i, group.IDs)
	}
}
