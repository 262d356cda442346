package sink

import (
	"math"
	"sync/atomic"
	"time"
)

// playTick is the granularity of the buffer sink's playout clock. Pauses and
// clears take effect within one tick.
const playTick = 5 * time.Millisecond

// Buffer is a sink that plays chunks against the wall clock instead of a
// device: each queued chunk is held for its audible duration, then dropped.
// It backs headless playback and the end-to-end tests.
type Buffer struct {
	queue      chunkQueue
	sampleRate int
	channels   int

	paused atomic.Bool
	closed atomic.Bool
	volume atomic.Uint32 // float32 bits
}

// NewBuffer creates a buffer sink for the given stream format and starts its
// playout clock.
func NewBuffer(sampleRate, channels int) *Buffer {
	b := &Buffer{
		sampleRate: sampleRate,
		channels:   channels,
	}
	b.paused.Store(true)
	b.volume.Store(math.Float32bits(1.0))
	go b.run()
	return b
}

// run is the playout clock: it holds the head chunk for its duration, then
// drops it. Pausing freezes the remaining hold time.
func (b *Buffer) run() {
	for !b.closed.Load() {
		if b.paused.Load() {
			time.Sleep(playTick)
			continue
		}

		chunk, ok := b.queue.head()
		if !ok {
			time.Sleep(playTick)
			continue
		}

		samples := len(chunk)
		remaining := time.Duration(float64(samples) / float64(b.sampleRate) / float64(b.channels) * float64(time.Second))
		for remaining > 0 && !b.closed.Load() {
			if b.paused.Load() {
				time.Sleep(playTick)
				continue
			}
			step := min(remaining, playTick)
			time.Sleep(step)
			remaining -= step

			// A clear while the head chunk was playing cancels the hold.
			if _, ok := b.queue.head(); !ok {
				remaining = 0
			}
		}

		b.queue.dropHead()
	}
}

// Append queues a chunk, blocking while the queue is full.
func (b *Buffer) Append(samples []float32) {
	b.queue.push(samples, func() bool { return b.closed.Load() })
}

func (b *Buffer) Play() {
	b.paused.Store(false)
}

func (b *Buffer) Pause() {
	b.paused.Store(true)
}

func (b *Buffer) IsPaused() bool {
	return b.paused.Load()
}

// Clear drops all queued chunks, including the one currently playing.
func (b *Buffer) Clear() {
	b.queue.clear()
}

func (b *Buffer) Empty() bool {
	return b.queue.len() == 0
}

func (b *Buffer) Len() int {
	return b.queue.len()
}

func (b *Buffer) SetVolume(v float32) {
	b.volume.Store(math.Float32bits(clampVolume(v)))
}

func (b *Buffer) Volume() float32 {
	return math.Float32frombits(b.volume.Load())
}

// Close stops the playout clock.
func (b *Buffer) Close() error {
	b.closed.Store(true)
	return nil
}

func clampVolume(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
