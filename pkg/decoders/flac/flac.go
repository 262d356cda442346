package flac

import (
	"fmt"
	"io"

	flaclib "github.com/mewkiz/flac"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// Decoder wraps the flac stream parser to provide FLAC decoding.
// Implements types.TrackDecoder; trackID is ignored (single-track source).
type Decoder struct {
	stream   *flaclib.Stream
	source   string
	rate     int
	channels int
	bps      int
	samples  uint64 // total sample frames, 0 when unknown
}

// NewDecoder creates a new FLAC decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes a FLAC file for decoding
func (d *Decoder) Open(source string, _ uint32) error {
	stream, err := flaclib.ParseFile(source)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", source, err)
	}

	info := stream.Info
	d.stream = stream
	d.source = source
	d.rate = int(info.SampleRate)
	d.channels = int(info.NChannels)
	d.bps = int(info.BitsPerSample)
	d.samples = info.NSamples

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.stream != nil {
		err := d.stream.Close()
		d.stream = nil
		return err
	}
	return nil
}

// Format returns the sample rate and channel count
func (d *Decoder) Format() (rate, channels int) {
	return d.rate, d.channels
}

// Duration returns the track duration in seconds, or -1 when the stream
// info carries no sample count.
func (d *Decoder) Duration() float64 {
	if d.samples == 0 || d.rate == 0 {
		return -1
	}
	return float64(d.samples) / float64(d.rate)
}

// Seek reopens the stream and discards whole FLAC frames up to the target
// time. Frame-granular, which is all the coarse-seek contract asks for.
func (d *Decoder) Seek(seconds float64) error {
	if d.stream == nil {
		return fmt.Errorf("%w: decoder not open", types.ErrSeek)
	}
	if seconds < 0 {
		seconds = 0
	}

	if err := d.Close(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSeek, err)
	}
	if err := d.Open(d.source, 0); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSeek, err)
	}

	toSkip := uint64(seconds * float64(d.rate))
	for toSkip > 0 {
		audioFrame, err := d.stream.ParseNext()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrSeek, err)
		}
		if len(audioFrame.Subframes) == 0 {
			continue
		}
		blockFrames := uint64(len(audioFrame.Subframes[0].Samples))
		if blockFrames > toSkip {
			// Frame-granular: close enough for a coarse seek.
			return nil
		}
		toSkip -= blockFrames
	}
	return nil
}

// DecodePacket parses the next FLAC frame and interleaves its subframes into
// an i32 packet at full scale.
func (d *Decoder) DecodePacket() (*types.Frame, error) {
	if d.stream == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	audioFrame, err := d.stream.ParseNext()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}
	if len(audioFrame.Subframes) == 0 {
		return &types.Frame{Format: types.FormatI32, Channels: d.channels}, nil
	}

	blockFrames := len(audioFrame.Subframes[0].Samples)
	shift := uint(32 - d.bps)

	frame := &types.Frame{
		Format:   types.FormatI32,
		Channels: d.channels,
		I32:      make([]int32, 0, blockFrames*d.channels),
	}
	for i := 0; i < blockFrames; i++ {
		for ch := 0; ch < d.channels; ch++ {
			frame.I32 = append(frame.I32, audioFrame.Subframes[ch].Samples[i]<<shift)
		}
	}
	return frame, nil
}
