package wav

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/Proteus-Audio/proteus-cli/internal/testtone"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

func TestNewDecoder(t *testing.T) {
	decoder := NewDecoder()
	if decoder == nil {
		t.Fatal("NewDecoder returned nil")
	}
}

func TestDecoderFormat(t *testing.T) {
	decoder := NewDecoder()

	// Before opening a file, format should be zero values
	rate, channels := decoder.Format()
	if rate != 0 || channels != 0 {
		t.Errorf("format before Open: got rate=%d, channels=%d, want zeros", rate, channels)
	}

	if duration := decoder.Duration(); duration > 0 {
		t.Errorf("Duration before Open: got %f, want <= 0", duration)
	}
}

func TestDecoderClose(t *testing.T) {
	decoder := NewDecoder()

	// Should be safe to close without opening
	if err := decoder.Close(); err != nil {
		t.Errorf("Close on unopened decoder failed: %v", err)
	}

	// Should be safe to close multiple times
	if err := decoder.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestDecodePacketWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	if _, err := decoder.DecodePacket(); err == nil {
		t.Error("Expected error when decoding without opening file")
	}
}

func TestSeekWithoutOpen(t *testing.T) {
	decoder := NewDecoder()

	if err := decoder.Seek(1.0); !errors.Is(err, types.ErrSeek) {
		t.Errorf("Seek without Open: got %v, want ErrSeek", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	decoder := NewDecoder()

	if err := decoder.Open(filepath.Join(t.TempDir(), "absent.wav"), 0); err == nil {
		t.Error("Expected error when opening a missing file")
	}
}

func writeTone(t *testing.T, seconds float64, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := testtone.WriteWAV(path, seconds, 8000, channels); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestDecodeStereoFixture(t *testing.T) {
	decoder := NewDecoder()
	if err := decoder.Open(writeTone(t, 1.0, 2), 0); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer decoder.Close()

	rate, channels := decoder.Format()
	if rate != 8000 || channels != 2 {
		t.Errorf("Format: got %d Hz, %d ch, want 8000 Hz, 2 ch", rate, channels)
	}
	if d := decoder.Duration(); d < 0.99 || d > 1.01 {
		t.Errorf("Duration: got %f, want 1.0", d)
	}

	// 16-bit PCM decodes as i16 frames; the whole second adds up.
	frames := 0
	for {
		frame, err := decoder.DecodePacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("DecodePacket failed: %v", err)
		}
		if frame.Format != types.FormatI16 {
			t.Fatalf("frame format: got %d, want FormatI16", frame.Format)
		}
		if frame.Channels != 2 {
			t.Fatalf("frame channels: got %d, want 2", frame.Channels)
		}
		frames += frame.Frames()
	}
	if frames != 8000 {
		t.Errorf("decoded frames: got %d, want 8000", frames)
	}
}

func TestSeekSkipsFrames(t *testing.T) {
	decoder := NewDecoder()
	if err := decoder.Open(writeTone(t, 1.0, 2), 0); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer decoder.Close()

	if err := decoder.Seek(0.75); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	frames := 0
	for {
		frame, err := decoder.DecodePacket()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("DecodePacket failed: %v", err)
		}
		frames += frame.Frames()
	}
	if frames != 2000 {
		t.Errorf("frames after Seek(0.75): got %d, want 2000", frames)
	}
}
