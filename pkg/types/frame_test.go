package types

import (
	"math"
	"testing"
)

func TestFrameMonoDuplicatesChannels(t *testing.T) {
	frame := Frame{
		Format:   FormatF32,
		Channels: 1,
		F32:      []float32{0.5, -0.25, 1.0},
	}

	got := frame.InterleavedStereo()
	want := []float32{0.5, 0.5, -0.25, -0.25, 1.0, 1.0}

	if len(got) != len(want) {
		t.Fatalf("InterleavedStereo length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestFrameStereoZipsChannels(t *testing.T) {
	frame := Frame{
		Format:   FormatF32,
		Channels: 2,
		F32:      []float32{0.1, 0.2, 0.3, 0.4},
	}

	got := frame.InterleavedStereo()
	want := []float32{0.1, 0.2, 0.3, 0.4}

	if len(got) != len(want) {
		t.Fatalf("InterleavedStereo length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestFrameIntConversion(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []float32
	}{
		{
			name: "i16 full scale",
			frame: Frame{
				Format:   FormatI16,
				Channels: 2,
				I16:      []int16{-32768, 32767, 0, 16384},
			},
			want: []float32{-1.0, 32767.0 / 32768.0, 0.0, 0.5},
		},
		{
			name: "i32 full scale",
			frame: Frame{
				Format:   FormatI32,
				Channels: 2,
				I32:      []int32{math.MinInt32, 0},
			},
			want: []float32{-1.0, 0.0},
		},
		{
			name: "f64 passthrough",
			frame: Frame{
				Format:   FormatF64,
				Channels: 2,
				F64:      []float64{0.25, -0.75},
			},
			want: []float32{0.25, -0.75},
		},
	}

	for _, tt := range tests {
		got := tt.frame.InterleavedStereo()
		if len(got) != len(tt.want) {
			t.Errorf("%s: length got %d, want %d", tt.name, len(got), len(tt.want))
			continue
		}
		for i := range tt.want {
			if diff := got[i] - tt.want[i]; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("%s: sample %d got %f, want %f", tt.name, i, got[i], tt.want[i])
			}
		}
	}
}

func TestFrameDropsExtraChannels(t *testing.T) {
	// 3-channel frame: only the first two channels survive.
	frame := Frame{
		Format:   FormatF32,
		Channels: 3,
		F32:      []float32{0.1, 0.2, 0.9, 0.3, 0.4, 0.9},
	}

	got := frame.InterleavedStereo()
	want := []float32{0.1, 0.2, 0.3, 0.4}

	if len(got) != len(want) {
		t.Fatalf("InterleavedStereo length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestFrameEmpty(t *testing.T) {
	frame := Frame{Format: FormatF32, Channels: 2}
	if got := frame.InterleavedStereo(); got != nil {
		t.Errorf("empty frame: got %v, want nil", got)
	}
}
