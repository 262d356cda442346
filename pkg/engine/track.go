package engine

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Proteus-Audio/proteus-cli/pkg/prot"
	"github.com/Proteus-Audio/proteus-cli/pkg/samplering"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

type trackArgs struct {
	entry     prot.Entry
	rings     *samplering.Map
	finished  *finishedSet
	startTime float64
	abort     *atomic.Bool
	open      OpenFunc
}

// bufferTrack is the decoder worker for one selected track. It decodes
// packets and feeds the track's ring until end-of-stream, a fatal error, or
// abort, and marks the key finished on every exit path. Backpressure comes
// from the blocking ring push, which also observes abort each poll round.
func bufferTrack(args trackArgs) {
	key := args.entry.Key
	defer args.finished.add(key)

	decoder, err := args.open(args.entry.Source, args.entry.TrackID)
	if err != nil {
		slog.Warn("could not open track",
			"source", args.entry.Source,
			"track_id", args.entry.TrackID,
			"error", err)
		return
	}
	defer decoder.Close()

	if args.startTime > 0 {
		if err := decoder.Seek(args.startTime); err != nil {
			slog.Warn("seek failed, dropping track",
				"source", args.entry.Source,
				"track_key", key,
				"error", err)
			return
		}
	}

	for {
		if args.abort.Load() {
			return
		}

		frame, err := decoder.DecodePacket()
		if err == io.EOF {
			return
		}
		if errors.Is(err, types.ErrDecode) {
			// Decode errors are not fatal. Log and try the next packet.
			slog.Warn("decode error", "track_key", key, "error", err)
			continue
		}
		if err != nil {
			slog.Warn("track decoder failed", "track_key", key, "error", err)
			return
		}

		samples := frame.InterleavedStereo()
		if len(samples) == 0 {
			continue
		}

		if !args.rings.Push(key, samples, args.abort) {
			return
		}
	}
}
