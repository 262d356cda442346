package mp3

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3lib "github.com/imcarsen/go-mp3"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// go-mp3 always emits 16-bit little-endian stereo.
const (
	channels       = 2
	bytesPerFrame  = 4
	packetFrames   = 2048
	bytesPerPacket = packetFrames * bytesPerFrame
)

// Decoder wraps go-mp3 to provide MP3 decoding capabilities.
// Implements types.TrackDecoder; trackID is ignored (single-track source).
type Decoder struct {
	file    *os.File
	decoder *mp3lib.Decoder
	rate    int
	length  int64 // decoded stream size in bytes, -1 when unknown
}

// NewDecoder creates a new MP3 decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an MP3 file for decoding
func (d *Decoder) Open(source string, _ uint32) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3lib.NewDecoder(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to open file %s: %w", source, err)
	}

	d.file = file
	d.decoder = decoder
	d.rate = decoder.SampleRate()
	d.length = decoder.Length()

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		d.decoder = nil
		return err
	}
	return nil
}

// Format returns the sample rate and channel count
func (d *Decoder) Format() (rate, chans int) {
	return d.rate, channels
}

// Duration returns the track duration in seconds, or -1 when the stream
// length is unknown.
func (d *Decoder) Duration() float64 {
	if d.length <= 0 || d.rate == 0 {
		return -1
	}
	return float64(d.length) / bytesPerFrame / float64(d.rate)
}

// Seek positions the decoder at the sample frame nearest the given time.
func (d *Decoder) Seek(seconds float64) error {
	if d.decoder == nil {
		return fmt.Errorf("%w: decoder not open", types.ErrSeek)
	}
	if seconds < 0 {
		seconds = 0
	}

	offset := int64(seconds*float64(d.rate)) * bytesPerFrame
	if _, err := d.decoder.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSeek, err)
	}
	return nil
}

// DecodePacket reads the next packet of 16-bit stereo sample frames.
func (d *Decoder) DecodePacket() (*types.Frame, error) {
	if d.decoder == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	buffer := make([]byte, bytesPerPacket)
	read, err := io.ReadFull(d.decoder, buffer)
	if err == io.EOF || (err == io.ErrUnexpectedEOF && read == 0) {
		return nil, io.EOF
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	// Truncate to whole frames.
	read -= read % bytesPerFrame

	frame := &types.Frame{
		Format:   types.FormatI16,
		Channels: channels,
		I16:      make([]int16, read/2),
	}
	for i := range frame.I16 {
		frame.I16[i] = int16(binary.LittleEndian.Uint16(buffer[i*2:]))
	}
	return frame, nil
}
