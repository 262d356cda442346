package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/remko/go-mkvparse"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// Packet is one block of raw codec data for a single track.
type Packet struct {
	TrackNumber uint32
	Time        float64 // seconds from the start of the segment
	Data        []byte
}

// errStreamClosed aborts the parser when the consumer goes away.
var errStreamClosed = errors.New("block stream closed")

// BlockStream delivers the blocks of one track in file order. The parse runs
// in its own goroutine; the bounded packet channel provides backpressure
// against the file reader.
type BlockStream struct {
	packets chan Packet
	done    chan struct{}
	err     error
	closed  bool
}

// StreamBlocks starts streaming the blocks of the given track. Blocks whose
// timestamp is below startTime are dropped at the source, which is the coarse
// seek of the container decoder.
func StreamBlocks(info *Info, trackNumber uint32, startTime float64) (*BlockStream, error) {
	file, err := os.Open(info.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrContainerOpen, info.Path, err)
	}

	s := &BlockStream{
		packets: make(chan Packet, 4),
		done:    make(chan struct{}),
	}

	handler := &blockHandler{
		stream:      s,
		info:        info,
		trackNumber: trackNumber,
		startTime:   startTime,
	}

	go func() {
		defer file.Close()
		defer close(s.packets)

		err := mkvparse.Parse(file, handler)
		if err != nil && !errors.Is(err, errStreamClosed) {
			s.err = err
		}
	}()

	return s, nil
}

// Next returns the next packet of the selected track. Returns io.EOF when the
// segment is exhausted, or the underlying parse error.
func (s *BlockStream) Next() (Packet, error) {
	packet, ok := <-s.packets
	if !ok {
		if s.err != nil {
			return Packet{}, s.err
		}
		return Packet{}, io.EOF
	}
	return packet, nil
}

// Close stops the parse goroutine and drains any queued packets.
func (s *BlockStream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for range s.packets {
	}
}

// blockHandler filters clusters down to the selected track's block payloads.
type blockHandler struct {
	stream      *BlockStream
	info        *Info
	trackNumber uint32
	startTime   float64

	clusterTime int64
}

func (h *blockHandler) HandleMasterBegin(id mkvparse.ElementID, _ mkvparse.ElementInfo) (bool, error) {
	switch id {
	case mkvparse.SegmentElement, mkvparse.ClusterElement, mkvparse.BlockGroupElement:
		return true, nil
	}
	return false, nil
}

func (h *blockHandler) HandleMasterEnd(_ mkvparse.ElementID, _ mkvparse.ElementInfo) error {
	return nil
}

func (h *blockHandler) HandleString(_ mkvparse.ElementID, _ string, _ mkvparse.ElementInfo) error {
	return nil
}

func (h *blockHandler) HandleInteger(id mkvparse.ElementID, value int64, _ mkvparse.ElementInfo) error {
	if id == mkvparse.TimecodeElement {
		h.clusterTime = value
	}
	return nil
}

func (h *blockHandler) HandleFloat(_ mkvparse.ElementID, _ float64, _ mkvparse.ElementInfo) error {
	return nil
}

func (h *blockHandler) HandleDate(_ mkvparse.ElementID, _ time.Time, _ mkvparse.ElementInfo) error {
	return nil
}

func (h *blockHandler) HandleBinary(id mkvparse.ElementID, value []byte, _ mkvparse.ElementInfo) error {
	if id != mkvparse.SimpleBlockElement && id != mkvparse.BlockElement {
		return nil
	}

	trackNumber, relTime, frames, err := parseBlock(value)
	if err != nil {
		// A malformed block is a per-packet problem, not a stream killer.
		return nil
	}
	if trackNumber != h.trackNumber {
		return nil
	}

	blockTime := h.info.TimecodeToSeconds(h.clusterTime + int64(relTime))
	if blockTime < h.startTime {
		return nil
	}

	for _, frame := range frames {
		packet := Packet{
			TrackNumber: trackNumber,
			Time:        blockTime,
			Data:        append([]byte(nil), frame...),
		}
		select {
		case h.stream.packets <- packet:
		case <-h.stream.done:
			return errStreamClosed
		}
	}
	return nil
}

// parseBlock splits a (Simple)Block payload into its track number, relative
// timecode and laced frames. No lacing and fixed-size lacing are supported;
// PCM muxes do not use variable lacing.
func parseBlock(data []byte) (trackNumber uint32, relTime int16, frames [][]byte, err error) {
	number, n, err := readVint(data)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(data) < n+3 {
		return 0, 0, nil, fmt.Errorf("%w: truncated block header", types.ErrDecode)
	}

	relTime = int16(uint16(data[n])<<8 | uint16(data[n+1]))
	flags := data[n+2]
	payload := data[n+3:]

	switch flags & 0x06 {
	case 0x00: // no lacing
		frames = [][]byte{payload}
	case 0x04: // fixed-size lacing
		if len(payload) < 1 {
			return 0, 0, nil, fmt.Errorf("%w: empty laced block", types.ErrDecode)
		}
		count := int(payload[0]) + 1
		payload = payload[1:]
		if count == 0 || len(payload)%count != 0 {
			return 0, 0, nil, fmt.Errorf("%w: uneven fixed lacing", types.ErrDecode)
		}
		size := len(payload) / count
		for i := 0; i < count; i++ {
			frames = append(frames, payload[i*size:(i+1)*size])
		}
	default:
		return 0, 0, nil, fmt.Errorf("%w: unsupported lacing 0x%02x", types.ErrDecode, flags&0x06)
	}

	return uint32(number), relTime, frames, nil
}

// readVint decodes the EBML variable-length track number at the head of a
// block payload, returning the value and the number of bytes consumed.
func readVint(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("%w: empty block", types.ErrDecode)
	}

	first := data[0]
	length := 1
	for mask := byte(0x80); mask > 0; mask >>= 1 {
		if first&mask != 0 {
			break
		}
		length++
	}
	if length > 8 || len(data) < length {
		return 0, 0, fmt.Errorf("%w: malformed block track number", types.ErrDecode)
	}

	value := uint64(first & (0xFF >> length))
	for i := 1; i < length; i++ {
		value = value<<8 | uint64(data[i])
	}
	return value, length, nil
}
