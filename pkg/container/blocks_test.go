package container

import (
	"errors"
	"testing"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

func TestReadVint(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		value  uint64
		length int
	}{
		{"one byte", []byte{0x81}, 1, 1},
		{"one byte max", []byte{0xFF}, 0x7F, 1},
		{"two bytes", []byte{0x40, 0x02}, 2, 2},
		{"three bytes", []byte{0x20, 0x01, 0x02}, 0x0102, 3},
	}

	for _, tt := range tests {
		value, length, err := readVint(tt.data)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if value != tt.value || length != tt.length {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", tt.name, value, length, tt.value, tt.length)
		}
	}
}

func TestParseBlockNoLacing(t *testing.T) {
	// track 1, relative timecode 0x0102, no lacing, 4 payload bytes
	data := []byte{0x81, 0x01, 0x02, 0x00, 0xAA, 0xBB, 0xCC, 0xDD}

	trackNumber, relTime, frames, err := parseBlock(data)
	if err != nil {
		t.Fatalf("parseBlock failed: %v", err)
	}
	if trackNumber != 1 {
		t.Errorf("track number: got %d, want 1", trackNumber)
	}
	if relTime != 0x0102 {
		t.Errorf("relative timecode: got %d, want %d", relTime, 0x0102)
	}
	if len(frames) != 1 || len(frames[0]) != 4 {
		t.Fatalf("frames: got %d frames, want 1 frame of 4 bytes", len(frames))
	}
}

func TestParseBlockNegativeTimecode(t *testing.T) {
	data := []byte{0x82, 0xFF, 0xFF, 0x00, 0x01}

	_, relTime, _, err := parseBlock(data)
	if err != nil {
		t.Fatalf("parseBlock failed: %v", err)
	}
	if relTime != -1 {
		t.Errorf("relative timecode: got %d, want -1", relTime)
	}
}

func TestParseBlockFixedLacing(t *testing.T) {
	// track 2, 3 laced frames of 2 bytes each (count byte = 2)
	data := []byte{0x82, 0x00, 0x00, 0x04, 0x02, 1, 2, 3, 4, 5, 6}

	trackNumber, _, frames, err := parseBlock(data)
	if err != nil {
		t.Fatalf("parseBlock failed: %v", err)
	}
	if trackNumber != 2 {
		t.Errorf("track number: got %d, want 2", trackNumber)
	}
	if len(frames) != 3 {
		t.Fatalf("frames: got %d, want 3", len(frames))
	}
	if frames[1][0] != 3 || frames[1][1] != 4 {
		t.Errorf("middle frame: got %v, want [3 4]", frames[1])
	}
}

func TestParseBlockUnsupportedLacing(t *testing.T) {
	data := []byte{0x81, 0x00, 0x00, 0x02, 0x01, 0xFF}

	_, _, _, err := parseBlock(data)
	if !errors.Is(err, types.ErrDecode) {
		t.Errorf("Xiph lacing: got %v, want ErrDecode", err)
	}
}

func TestParseDurationTag(t *testing.T) {
	tests := []struct {
		value string
		want  float64
		ok    bool
	}{
		{"01:12:37.227000000", 4357.227, true},
		{"00:00:02", 2.0, true},
		{"00:01:00.500", 60.5, true},
		{"nonsense", 0, false},
		{"12:34", 0, false},
	}

	for _, tt := range tests {
		got, err := parseDurationTag(tt.value)
		if tt.ok != (err == nil) {
			t.Errorf("%q: error %v, want ok=%v", tt.value, err, tt.ok)
			continue
		}
		if tt.ok {
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("%q: got %f, want %f", tt.value, got, tt.want)
			}
		}
	}
}
