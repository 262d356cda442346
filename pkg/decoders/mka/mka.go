// Package mka decodes PCM tracks of a Matroska-style container (.prot, .mka).
// Compressed in-container codecs are out of scope; the PCM codec ids cover
// what the encoder writes.
package mka

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Proteus-Audio/proteus-cli/pkg/container"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

const (
	codecPCMFloat = "A_PCM/FLOAT/IEEE"
	codecPCMInt   = "A_PCM/INT/LIT"
)

// Decoder streams one PCM track out of a container.
// Implements types.TrackDecoder.
type Decoder struct {
	info     *container.Info
	track    *container.TrackInfo
	stream   *container.BlockStream
	trackID  uint32
	rate     int
	channels int
	duration float64
}

// NewDecoder creates a new container track decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open parses the container metadata and starts streaming the selected
// track's blocks. A trackID of 0 selects the first audio track.
func (d *Decoder) Open(source string, trackID uint32) error {
	info, err := container.ReadInfo(source)
	if err != nil {
		return err
	}

	var track *container.TrackInfo
	if trackID == 0 {
		track, err = info.FirstAudioTrack()
	} else {
		track, err = info.Track(trackID)
	}
	if err != nil {
		return err
	}

	switch track.CodecID {
	case codecPCMFloat, codecPCMInt:
	default:
		return fmt.Errorf("%w: codec %s", types.ErrUnsupportedFormat, track.CodecID)
	}
	switch track.BitDepth {
	case 16, 32, 64:
	default:
		return fmt.Errorf("%w: %d-bit PCM", types.ErrUnsupportedFormat, track.BitDepth)
	}

	duration, err := info.TrackDuration(track.Number)
	if err != nil {
		return err
	}

	stream, err := container.StreamBlocks(info, track.Number, 0)
	if err != nil {
		return err
	}

	d.info = info
	d.track = track
	d.stream = stream
	d.trackID = track.Number
	d.rate = int(track.SampleRate)
	d.channels = track.Channels
	d.duration = duration

	return nil
}

// Close stops the block stream
func (d *Decoder) Close() error {
	if d.stream != nil {
		d.stream.Close()
		d.stream = nil
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

// Seek restarts the block stream with blocks before the target dropped at
// the source. Block-granular.
func (d *Decoder) Seek(seconds float64) error {
	if d.info == nil {
		return fmt.Errorf("%w: decoder not open", types.ErrSeek)
	}
	if seconds < 0 {
		seconds = 0
	}

	d.stream.Close()
	stream, err := container.StreamBlocks(d.info, d.trackID, seconds)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrSeek, err)
	}
	d.stream = stream
	return nil
}

// DecodePacket returns the next block of the track as a frame in the
// track's native sample format. Blocks at or past the track duration end
// the stream.
func (d *Decoder) DecodePacket() (*types.Frame, error) {
	if d.stream == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	packet, err := d.stream.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if packet.Time >= d.duration {
		return nil, io.EOF
	}

	return d.convert(packet.Data)
}

func (d *Decoder) convert(data []byte) (*types.Frame, error) {
	frame := &types.Frame{Channels: d.channels}

	switch {
	case d.track.CodecID == codecPCMFloat && d.track.BitDepth == 32:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%w: ragged f32 block", types.ErrDecode)
		}
		frame.Format = types.FormatF32
		frame.F32 = make([]float32, len(data)/4)
		for i := range frame.F32 {
			frame.F32[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case d.track.CodecID == codecPCMFloat && d.track.BitDepth == 64:
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("%w: ragged f64 block", types.ErrDecode)
		}
		frame.Format = types.FormatF64
		frame.F64 = make([]float64, len(data)/8)
		for i := range frame.F64 {
			frame.F64[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case d.track.CodecID == codecPCMInt && d.track.BitDepth == 16:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: ragged i16 block", types.ErrDecode)
		}
		frame.Format = types.FormatI16
		frame.I16 = make([]int16, len(data)/2)
		for i := range frame.I16 {
			frame.I16[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case d.track.CodecID == codecPCMInt && d.track.BitDepth == 32:
		if len(data)%4 != 0 {
			return nil, fmt.Errorf("%w: ragged i32 block", types.ErrDecode)
		}
		frame.Format = types.FormatI32
		frame.I32 = make([]int32, len(data)/4)
		for i := range frame.I32 {
			frame.I32[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	default:
		return nil, fmt.Errorf("%w: %s at %d bits", types.ErrUnsupportedFormat, d.track.CodecID, d.track.BitDepth)
	}

	return frame, nil
}
