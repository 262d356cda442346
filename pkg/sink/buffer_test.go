package sink

import (
	"testing"
	"time"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

var _ types.Sink = (*Buffer)(nil)
var _ types.Sink = (*Device)(nil)

// chunkOf returns a chunk lasting the given number of milliseconds at
// 1000 Hz stereo, which keeps the test arithmetic readable.
func chunkOf(ms int) []float32 {
	return make([]float32, ms*2)
}

func TestBufferPlaysChunksInRealTime(t *testing.T) {
	b := NewBuffer(1000, 2)
	defer b.Close()

	b.Append(chunkOf(50))
	b.Append(chunkOf(50))

	if b.Len() != 2 {
		t.Fatalf("Len after append: got %d, want 2", b.Len())
	}

	// Paused: nothing plays out.
	time.Sleep(80 * time.Millisecond)
	if b.Len() != 2 {
		t.Fatalf("Len while paused: got %d, want 2", b.Len())
	}

	b.Play()

	deadline := time.Now().Add(time.Second)
	for !b.Empty() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !b.Empty() {
		t.Error("buffer did not drain within a second")
	}
}

func TestBufferPauseFreezesPlayout(t *testing.T) {
	b := NewBuffer(1000, 2)
	defer b.Close()

	b.Append(chunkOf(500))
	b.Play()
	time.Sleep(30 * time.Millisecond)
	b.Pause()

	if !b.IsPaused() {
		t.Fatal("IsPaused: got false after Pause")
	}
	if b.Len() != 1 {
		t.Errorf("Len mid-chunk: got %d, want 1", b.Len())
	}

	// The long chunk must not finish while paused.
	time.Sleep(100 * time.Millisecond)
	if b.Len() != 1 {
		t.Errorf("Len after paused wait: got %d, want 1", b.Len())
	}
}

func TestBufferClearDropsEverything(t *testing.T) {
	b := NewBuffer(1000, 2)
	defer b.Close()

	b.Append(chunkOf(500))
	b.Append(chunkOf(500))
	b.Play()
	time.Sleep(20 * time.Millisecond)

	b.Clear()

	if !b.Empty() {
		t.Errorf("Empty after Clear: got false, Len=%d", b.Len())
	}
}

func TestBufferVolumeClamped(t *testing.T) {
	b := NewBuffer(44100, 2)
	defer b.Close()

	b.SetVolume(1.5)
	if v := b.Volume(); v != 1.0 {
		t.Errorf("Volume after SetVolume(1.5): got %f, want 1.0", v)
	}
	b.SetVolume(-0.5)
	if v := b.Volume(); v != 0.0 {
		t.Errorf("Volume after SetVolume(-0.5): got %f, want 0.0", v)
	}
	b.SetVolume(0.7)
	if v := b.Volume(); v != 0.7 {
		t.Errorf("Volume: got %f, want 0.7", v)
	}
}
