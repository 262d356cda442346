// Package engine is the realtime playback pipeline: one decoder worker per
// selected track feeding a bounded sample ring, and a mixer worker draining
// all rings in lock-step into fixed-duration chunks. The engine owns the
// workers for one playback session; seek and reshuffle are handled above it
// by killing the session and spawning a new one.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/Proteus-Audio/proteus-cli/pkg/decoders"
	"github.com/Proteus-Audio/proteus-cli/pkg/effects"
	"github.com/Proteus-Audio/proteus-cli/pkg/prot"
	"github.com/Proteus-Audio/proteus-cli/pkg/samplering"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// Channels is the pipeline's channel count. The engine mixes interleaved
// stereo regardless of source layouts; mono sources are upmixed at the
// frame-conversion boundary.
const Channels = 2

// effectsTailSeconds sizes the effects tail buffer: enough for a long reverb
// tail to ring out past the end of the input.
const effectsTailSeconds = 10

// Chunk is one mixed block of interleaved stereo samples with its audible
// length.
type Chunk struct {
	Samples []float32
	Seconds float64
}

// OpenFunc resolves a (source, track id) selection to a decoder. The default
// is decoders.Open; tests substitute synthetic decoders.
type OpenFunc func(source string, trackID uint32) (types.TrackDecoder, error)

// finishedSet records the keys whose decoder has reached end-of-stream,
// errored out, or aborted. Append-only within a session.
type finishedSet struct {
	mu   sync.Mutex
	keys map[int]bool
}

func newFinishedSet() *finishedSet {
	return &finishedSet{keys: make(map[int]bool)}
}

func (s *finishedSet) add(key int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = true
}

func (s *finishedSet) has(key int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key]
}

// Engine owns the decode/mix pipeline for one playback session.
type Engine struct {
	prot        *prot.Prot
	abort       *atomic.Bool
	startTime   float64
	rings       *samplering.Map
	finished    *finishedSet
	effectsTail *effects.Buffer
	open        OpenFunc
}

// New constructs an engine for the composition's current selection. Workers
// are not spawned until ReceptionLoop. A nil abort gets a private flag.
func New(p *prot.Prot, abort *atomic.Bool, startTime float64) *Engine {
	if abort == nil {
		abort = &atomic.Bool{}
	}
	return &Engine{
		prot:        p,
		abort:       abort,
		startTime:   startTime,
		rings:       samplering.NewMap(p.SampleRate() * Channels),
		finished:    newFinishedSet(),
		effectsTail: effects.NewBuffer(p.SampleRate() * Channels * effectsTailSeconds),
		open:        decoders.Open,
	}
}

// SetOpenFunc replaces the decoder factory. Must be called before
// ReceptionLoop.
func (e *Engine) SetOpenFunc(open OpenFunc) {
	e.open = open
}

// ReceptionLoop prepares the rings, spawns the decoder and mixer workers and
// pulls mixed chunks, invoking onChunk once per chunk, in order, from this
// goroutine. Returns when the mixer has exited and the chunk channel is
// drained.
func (e *Engine) ReceptionLoop(onChunk func(Chunk)) {
	selection := e.prot.Selection()

	keys := make([]int, len(selection))
	for i, entry := range selection {
		keys[i] = entry.Key
	}
	e.rings.Prepare(keys)

	// Capacity 1: the strongest backpressure that still decouples the mixer
	// tick from the consumer.
	out := make(chan Chunk, 1)

	for _, entry := range selection {
		go bufferTrack(trackArgs{
			entry:     entry,
			rings:     e.rings,
			finished:  e.finished,
			startTime: e.startTime,
			abort:     e.abort,
			open:      e.open,
		})
	}

	go runMixer(mixerArgs{
		rings:       e.rings,
		finished:    e.finished,
		effectsTail: e.effectsTail,
		sampleRate:  e.prot.SampleRate(),
		channels:    Channels,
		sources:     len(selection),
		abort:       e.abort,
		out:         out,
	})

	for chunk := range out {
		onChunk(chunk)
	}
}

// FinishedBuffering reports whether every selected track's decoder has
// finished.
func (e *Engine) FinishedBuffering() bool {
	for _, key := range e.prot.Keys() {
		if !e.finished.has(key) {
			return false
		}
	}
	return true
}

// Duration returns the composition duration in seconds.
func (e *Engine) Duration() float64 {
	return e.prot.Duration()
}
