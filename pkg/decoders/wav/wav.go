package wav

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// audioFormatIEEEFloat is the WAVE format tag for float sample data.
const audioFormatIEEEFloat = 3

// packetSamples is how many sample frames one DecodePacket returns.
const packetSamples = 2048

// Decoder wraps go-wav for decoding WAV audio files.
// Implements types.TrackDecoder; trackID is ignored (single-track source).
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	source   string
	rate     int
	channels int
	bps      int
	format   uint16
	duration float64
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding
func (d *Decoder) Open(source string, _ uint32) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM && format.AudioFormat != audioFormatIEEEFloat {
		file.Close()
		return fmt.Errorf("%w: WAV format %d", types.ErrUnsupportedFormat, format.AudioFormat)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		file.Close()
		return fmt.Errorf("%w: %d-channel WAV", types.ErrUnsupportedFormat, format.NumChannels)
	}

	duration, err := reader.Duration()
	if err != nil {
		file.Close()
		return fmt.Errorf("%w: WAV duration: %v", types.ErrMetadataMissing, err)
	}

	d.file = file
	d.reader = reader
	d.source = source
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)
	d.format = format.AudioFormat
	d.duration = duration.Seconds()

	return nil
}

// Close closes the WAV file
func (d *Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}

// Format returns the sample rate and channel count
func (d *Decoder) Format() (rate, channels int) {
	return d.rate, d.channels
}

// Duration returns the track duration in seconds
func (d *Decoder) Duration() float64 {
	return d.duration
}

// Seek reopens the file and discards sample frames up to the target time.
// go-wav exposes no positioning API, so the coarse seek is a skip from the
// start of the data chunk.
func (d *Decoder) Seek(seconds float64) error {
	if d.file == nil {
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

	toSkip := int(seconds * float64(d.rate))
	for toSkip > 0 {
		samples, err := d.reader.ReadSamples(uint32(min(toSkip, packetSamples)))
		if err == io.EOF || len(samples) == 0 {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrSeek, err)
		}
		toSkip -= len(samples)
	}
	return nil
}

// DecodePacket reads the next packet of sample frames in the file's native
// format: integer PCM at up to 16 bits maps to i16, wider PCM to i32, float
// data to f64.
func (d *Decoder) DecodePacket() (*types.Frame, error) {
	if d.reader == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	samples, err := d.reader.ReadSamples(packetSamples)
	if err == io.EOF || (err == nil && len(samples) == 0) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	if d.format == audioFormatIEEEFloat {
		frame := &types.Frame{
			Format:   types.FormatF64,
			Channels: d.channels,
			F64:      make([]float64, 0, len(samples)*d.channels),
		}
		for _, sample := range samples {
			for ch := 0; ch < d.channels; ch++ {
				frame.F64 = append(frame.F64, d.reader.FloatValue(sample, uint(ch)))
			}
		}
		return frame, nil
	}

	if d.bps <= 16 {
		frame := &types.Frame{
			Format:   types.FormatI16,
			Channels: d.channels,
			I16:      make([]int16, 0, len(samples)*d.channels),
		}
		shift := 16 - d.bps
		for _, sample := range samples {
			for ch := 0; ch < d.channels; ch++ {
				frame.I16 = append(frame.I16, int16(sample.Values[ch]<<shift))
			}
		}
		return frame, nil
	}

	frame := &types.Frame{
		Format:   types.FormatI32,
		Channels: d.channels,
		I32:      make([]int32, 0, len(samples)*d.channels),
	}
	shift := 32 - d.bps
	for _, sample := range samples {
		for ch := 0; ch < d.channels; ch++ {
			frame.I32 = append(frame.I32, int32(sample.Values[ch]<<shift))
		}
	}
	return frame, nil
}
