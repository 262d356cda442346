package decoders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Proteus-Audio/proteus-cli/pkg/decoders/flac"
	"github.com/Proteus-Audio/proteus-cli/pkg/decoders/mka"
	"github.com/Proteus-Audio/proteus-cli/pkg/decoders/mp3"
	"github.com/Proteus-Audio/proteus-cli/pkg/decoders/vorbis"
	"github.com/Proteus-Audio/proteus-cli/pkg/decoders/wav"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// Open creates and opens the appropriate decoder for a source, bound to
// trackID. Container sources (.prot, .mka) address tracks by number; plain
// audio files ignore trackID.
// Supports .prot, .mka, .wav, .mp3, .ogg, .oga, .flac, .fla.
func Open(source string, trackID uint32) (types.TrackDecoder, error) {
	ext := strings.ToLower(filepath.Ext(source))

	var decoder types.TrackDecoder

	switch ext {
	case ".prot", ".mka":
		decoder = mka.NewDecoder()
	case ".wav":
		decoder = wav.NewDecoder()
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".ogg", ".oga":
		decoder = vorbis.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoder()
	default:
		return nil, fmt.Errorf("%w: %s (supported: .prot, .mka, .wav, .mp3, .ogg, .flac)", types.ErrUnsupportedFormat, ext)
	}

	if err := decoder.Open(source, trackID); err != nil {
		return nil, err
	}

	return decoder, nil
}

// Probe opens a source just long enough to read its format and duration.
func Probe(source string) (rate, channels int, duration float64, err error) {
	decoder, err := Open(source, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	defer decoder.Close()

	rate, channels = decoder.Format()
	duration = decoder.Duration()
	if duration <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: no duration for %s", types.ErrMetadataMissing, source)
	}
	return rate, channels, duration, nil
}
