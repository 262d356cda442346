package engine

import (
	"sync/atomic"
	"time"

	"github.com/Proteus-Audio/proteus-cli/pkg/effects"
	"github.com/Proteus-Audio/proteus-cli/pkg/samplering"
)

// mixerTick is the mixer's polling interval, which also bounds its abort
// latency.
const mixerTick = 100 * time.Millisecond

type mixerArgs struct {
	rings       *samplering.Map
	finished    *finishedSet
	effectsTail *effects.Buffer
	sampleRate  int
	channels    int
	sources     int
	abort       *atomic.Bool
	out         chan<- Chunk
}

// sourceGain returns the per-source amplification. Five-way headroom for
// small selections, scaling down as 1/n beyond that so wide selections
// cannot clip the sum.
func sourceGain(sources int) float32 {
	if sources < 5 {
		sources = 5
	}
	return 1.0 / float32(sources)
}

// runMixer drains all rings in lock-step and emits sample-aligned chunks
// until every track is finished and drained. Closes out on exit.
//
// A chunk is only cut when every ring is non-empty; the drain length is the
// smallest ring length, so no key ever advances independently. A track whose
// decoder finished keeps being mixed until its ring is dry, then its ring is
// dropped from the map.
func runMixer(args mixerArgs) {
	defer close(args.out)

	gain := sourceGain(args.sources)

	for {
		if args.abort.Load() {
			return
		}

		lengths := args.rings.Snapshot()
		allFull := true
		for key, length := range lengths {
			if length == 0 {
				if args.finished.has(key) {
					args.rings.Remove(key)
					delete(lengths, key)
					continue
				}
				allFull = false
			}
		}

		if len(lengths) == 0 && args.effectsTail.Len() == 0 {
			return
		}

		if allFull && len(lengths) > 0 {
			n, _ := args.rings.MinLen()
			if n > 0 {
				args.out <- mixChunk(args, lengths, n, gain)
			}
		} else if len(lengths) == 0 {
			// Only the effects tail is left; drain it in one-second slices.
			n := min(args.effectsTail.Len(), args.sampleRate*args.channels)
			args.out <- mixChunk(args, nil, n, gain)
		}

		time.Sleep(mixerTick)
	}
}

// mixChunk pops n samples from every ring plus the effects tail, sums them
// under the per-source gain and runs the effects stage.
func mixChunk(args mixerArgs, lengths map[int]int, n int, gain float32) Chunk {
	mixed := make([]float32, n)

	for key := range lengths {
		samples := args.rings.PopN(key, n)
		for i, sample := range samples {
			mixed[i] += sample * gain
		}
	}

	tail := args.effectsTail.PopN(n)
	for i, sample := range tail {
		mixed[i] += sample * gain
	}

	clampChunk(mixed)

	return Chunk{
		Samples: effects.Process(mixed, args.effectsTail),
		Seconds: float64(n) / float64(args.sampleRate) / float64(args.channels),
	}
}

// clampChunk hard-limits the sum to the f32 sample range.
func clampChunk(samples []float32) {
	for i, sample := range samples {
		if sample > 1.0 {
			samples[i] = 1.0
		} else if sample < -1.0 {
			samples[i] = -1.0
		}
	}
}
