package vorbis

import (
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// packetFrames is how many sample frames one DecodePacket returns.
const packetFrames = 2048

// Decoder wraps oggvorbis for decoding Ogg Vorbis files.
// Implements types.TrackDecoder; trackID is ignored (single-track source).
type Decoder struct {
	file     *os.File
	reader   *oggvorbis.Reader
	rate     int
	channels int
	length   int64 // total sample frames, 0 when unknown
}

// NewDecoder creates a new Ogg Vorbis decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens and initializes an Ogg Vorbis file for decoding
func (d *Decoder) Open(source string, _ uint32) error {
	file, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("failed to open Ogg file: %w", err)
	}

	reader, err := oggvorbis.NewReader(file)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to open file %s: %w", source, err)
	}

	d.file = file
	d.reader = reader
	d.rate = reader.SampleRate()
	d.channels = reader.Channels()
	d.length = reader.Length()

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		d.reader = nil
		return err
	}
	return nil
}

// Format returns the sample rate and channel count
func (d *Decoder) Format() (rate, channels int) {
	return d.rate, d.channels
}

// Duration returns the track duration in seconds, or -1 when the stream
// length is unknown.
func (d *Decoder) Duration() float64 {
	if d.length <= 0 || d.rate == 0 {
		return -1
	}
	return float64(d.length) / float64(d.rate)
}

// Seek positions the decoder at the sample frame nearest the given time.
func (d *Decoder) Seek(seconds float64) error {
	if d.reader == nil {
		return fmt.Errorf("%w: decoder not open", types.ErrSeek)
	}
	if seconds < 0 {
		seconds = 0
	}

	position := int64(seconds * float64(d.rate))
	if d.length > 0 && position > d.length {
		position = d.length
	}
	if err := d.reader.SetPosition(position); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSeek, err)
	}
	return nil
}

// DecodePacket reads the next packet of float32 sample frames.
func (d *Decoder) DecodePacket() (*types.Frame, error) {
	if d.reader == nil {
		return nil, fmt.Errorf("decoder not initialized")
	}

	buffer := make([]float32, packetFrames*d.channels)
	read, err := d.reader.Read(buffer)
	if read == 0 {
		if err == io.EOF || err == nil {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
	}

	return &types.Frame{
		Format:   types.FormatF32,
		Channels: d.channels,
		F32:      buffer[:read],
	}, nil
}
