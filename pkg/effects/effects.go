// Package effects carries the effects stage of the mixer: a pass-through
// processor plus the tail buffer that lets a future convolution reverb ring
// out past the end of the input. The mixer drains the tail buffer after all
// decoders finish, so the plumbing is live even while the processor is a no-op.
package effects

import (
	"encoding/binary"
	"math"

	"github.com/drgolem/ringbuffer"
)

const bytesPerSample = 4

// Buffer is a bounded FIFO of float32 samples backed by a byte ring buffer.
// Both ends are owned by the mixer worker, so single-producer single-consumer
// discipline holds trivially.
type Buffer struct {
	rb *ringbuffer.RingBuffer
}

// NewBuffer creates a tail buffer holding at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		rb: ringbuffer.New(uint64(capacity) * bytesPerSample),
	}
}

// Len returns the number of samples queued.
func (b *Buffer) Len() int {
	return int(b.rb.AvailableRead()) / bytesPerSample
}

// Push appends samples, truncating to the free space, and returns the
// number actually queued.
func (b *Buffer) Push(samples []float32) int {
	free := int(b.rb.AvailableWrite()) / bytesPerSample
	toWrite := min(len(samples), free)
	if toWrite == 0 {
		return 0
	}

	data := make([]byte, toWrite*bytesPerSample)
	for i := 0; i < toWrite; i++ {
		binary.LittleEndian.PutUint32(data[i*bytesPerSample:], math.Float32bits(samples[i]))
	}
	if _, err := b.rb.Write(data); err != nil {
		return 0
	}
	return toWrite
}

// PopN removes and returns up to n of the oldest samples.
func (b *Buffer) PopN(n int) []float32 {
	toRead := min(n, b.Len())
	if toRead == 0 {
		return nil
	}

	data := make([]byte, toRead*bytesPerSample)
	read, err := b.rb.Read(data)
	if err != nil {
		return nil
	}

	samples := make([]float32, int(read)/bytesPerSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*bytesPerSample:]))
	}
	return samples
}

// Process applies the effects stage to a mixed chunk and returns the samples
// to emit. The current stage is a pass-through. A convolution reverb slots in
// here: it would return the wet chunk and push the convolution tail that
// extends past the input into tail.
func Process(chunk []float32, tail *Buffer) []float32 {
	_ = tail
	return chunk
}
