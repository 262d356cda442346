package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/Proteus-Audio/proteus-cli/pkg/player"
	"github.com/Proteus-Audio/proteus-cli/pkg/sink"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

var (
	seekTime   float64
	trackID    uint32
	gain       int
	deviceIdx  int
	noGapless  bool
	noProgress bool
	noAudio    bool
	debug      bool
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <INPUT>",
	Short: "Play a .prot/.mka generative audio container",
	Long: `Play a generative audio container to the default audio output.

One recording per part is drawn at random and the selected tracks are
mixed down in real time. Playback runs until the longest selected track
ends or the process is interrupted.

Examples:
  # Play a container
  proteus play song.prot

  # Start two minutes in, at half volume
  proteus play --seek 120 --gain 50 song.prot

  # Play a single track of the container
  proteus play --track 3 song.mka`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Float64VarP(&seekTime, "seek", "s", 0, "Seek to the given time in seconds")
	playCmd.Flags().Uint32VarP(&trackID, "track", "t", 0, "Play only the given container track")
	playCmd.Flags().IntVarP(&gain, "gain", "g", 70, "The playback gain (0..100)")
	playCmd.Flags().IntVarP(&deviceIdx, "device", "d", 1, "Audio output device index")
	playCmd.Flags().BoolVar(&noGapless, "no-gapless", false, "Disable gapless decoding and playback")
	playCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Do not display playback progress")
	playCmd.Flags().BoolVar(&noAudio, "no-audio", false, "Decode and mix without an audio device")
	playCmd.Flags().BoolVar(&debug, "debug", false, "Show debug output")
}

func runPlay(cmd *cobra.Command, args []string) {
	input := args[0]

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if input == "-" {
		slog.Error("Standard input is not seekable; a file path is required")
		os.Exit(-1)
	}
	if _, err := os.Stat(input); os.IsNotExist(err) {
		slog.Error("File not found", "path", input)
		os.Exit(-1)
	}
	if gain < 0 || gain > 100 {
		slog.Error("Invalid gain", "gain", gain, "valid_range", "0-100")
		os.Exit(-1)
	}
	if noGapless {
		// Accepted for compatibility; the PCM decode path has no gapless trim.
		slog.Debug("Gapless decoding disabled")
	}

	opts := []player.Option{}
	if noAudio {
		opts = append(opts, player.WithSinkFactory(func(rate, channels int) (types.Sink, error) {
			return sink.NewBuffer(rate, channels), nil
		}))
	} else {
		slog.Info("Initializing PortAudio")
		if err := portaudio.Initialize(); err != nil {
			slog.Error("Failed to initialize PortAudio", "error", err)
			os.Exit(-1)
		}
		defer portaudio.Terminate()
		slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

		opts = append(opts, player.WithDevice(deviceIdx))
	}
	if trackID != 0 {
		opts = append(opts, player.WithTrackOverride(trackID))
	}

	slog.Info("Opening container", "path", input)
	p, err := player.New(input, opts...)
	if err != nil {
		slog.Error("Failed to open container", "error", err)
		os.Exit(-1)
	}
	defer p.Close()

	p.SetVolume(float32(gain) / 100.0)

	if !noProgress {
		p.SetReporting(func(report types.Report) {
			state := "Paused"
			if report.Playing {
				state = "Playing"
			}
			fmt.Printf("%s / %s (%s)\n", formatTime(report.Time), formatTime(report.Duration), state)
		}, 100*time.Millisecond)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	slog.Info("Starting playback",
		"duration", formatTime(p.GetDuration()),
		"gain", gain)

	if seekTime > 0 {
		err = p.PlayAt(seekTime)
	} else {
		err = p.Play()
	}
	if err != nil {
		slog.Error("Failed to start playback", "error", err)
		os.Exit(-1)
	}

	for !p.IsFinished() {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, stopping playback", "signal", sig)
			p.Stop()
		case <-time.After(100 * time.Millisecond):
		}
	}

	slog.Info("Playback finished")
}

// formatTime renders seconds as HH:MM:SS, rounding up partial seconds.
func formatTime(seconds float64) string {
	total := int(seconds)
	if seconds > float64(total) {
		total++
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}
