package types

import (
	"errors"
)

// TrackDecoder is the common interface for all per-track decoders (WAV, MP3,
// Ogg Vorbis, FLAC, Matroska PCM tracks). A decoder is bound to exactly one
// track of one source and produces a stream of Frames in native sample format.
type TrackDecoder interface {
	// Open binds the decoder to a source and a track within it.
	// For single-track sources (plain audio files) trackID is ignored.
	Open(source string, trackID uint32) error

	// Close closes the decoder and releases resources
	Close() error

	// Format returns the audio format information.
	// Returns: sample rate (Hz), channels (1=mono, 2=stereo)
	Format() (rate, channels int)

	// Duration returns the track duration in seconds.
	Duration() float64

	// Seek performs a coarse seek to the given time in seconds.
	// The next DecodePacket returns samples at or after that time.
	Seek(seconds float64) error

	// DecodePacket decodes the next packet of the bound track.
	// Returns io.EOF at end of stream. Errors wrapping ErrDecode are
	// non-fatal (the packet is corrupt, the caller may continue); any
	// other error ends the track.
	DecodePacket() (*Frame, error)
}

// Sink is the output boundary of the player. It queues fixed-length chunks of
// interleaved stereo float32 samples and plays them out to a device (or a
// clock, for the in-memory implementation). Len counts whole chunks still
// queued, which is what the playhead accounting is built on.
type Sink interface {
	// Append queues a chunk. May block while the sink's internal queue is full.
	Append(samples []float32)
	Play()
	Pause()
	IsPaused() bool
	// Clear drops all queued chunks without playing them.
	Clear()
	Empty() bool
	// Len returns the number of chunks queued and not yet played out.
	Len() int
	SetVolume(v float32)
	Volume() float32
	Close() error
}

// Report is a point-in-time snapshot of playback state, emitted by the
// reporter whenever any field changes.
type Report struct {
	Time     float64
	Volume   float32
	Duration float64
	Playing  bool
}

// Errors covering the failure classes of a playback session. Per-track
// failures (seek, decode) are absorbed into the finished-track set; the
// remaining kinds are fatal at session start.
var (
	// ErrContainerOpen indicates the container file could not be opened or probed
	ErrContainerOpen = errors.New("could not open container")

	// ErrMetadataMissing indicates a required duration or settings field is absent
	ErrMetadataMissing = errors.New("required metadata missing")

	// ErrManifestParse indicates the play_settings.json attachment is malformed
	ErrManifestParse = errors.New("could not parse play settings manifest")

	// ErrSeek indicates a coarse seek failed; the track is dropped from the mix
	ErrSeek = errors.New("seek failed")

	// ErrDecode indicates a corrupt packet; decoding continues on the next packet
	ErrDecode = errors.New("decode error")

	// ErrUnsupportedFormat indicates a sample format outside i16/i32/f32/f64
	ErrUnsupportedFormat = errors.New("unsupported sample format")

	// ErrSinkUnavailable indicates the audio output device could not be opened
	ErrSinkUnavailable = errors.New("audio output unavailable")
)
