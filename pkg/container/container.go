// Package container reads the Matroska side of a .prot/.mka file: the
// play_settings.json attachment, the audio track settings, and per-track
// durations. Sample data is streamed separately, see blocks.go.
package container

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/remko/go-mkvparse"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

const (
	trackTypeAudio = 2

	// Matroska default timecode scale: 1 ms per tick, in nanoseconds.
	defaultTimecodeScale = 1_000_000
)

// TrackInfo describes one track entry of the container.
type TrackInfo struct {
	Number     uint32
	UID        uint64
	Type       int64
	CodecID    string
	SampleRate float64
	Channels   int
	BitDepth   int

	// duration in seconds, resolved from the DURATION tag or the segment
	// duration; negative when neither was present.
	duration float64
}

// IsAudio reports whether this is an audio track.
func (t *TrackInfo) IsAudio() bool {
	return t.Type == trackTypeAudio
}

// Info is the parsed metadata of a container file.
type Info struct {
	Path          string
	TimecodeScale int64
	Tracks        []TrackInfo
	Attachments   map[string][]byte

	segmentDuration float64 // in timecode ticks, 0 when absent
	durationTags    []float64
}

// ReadInfo opens and parses the metadata sections of a container file.
func ReadInfo(path string) (*Info, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrContainerOpen, path, err)
	}
	defer file.Close()

	info := &Info{
		Path:          path,
		TimecodeScale: defaultTimecodeScale,
		Attachments:   make(map[string][]byte),
	}
	handler := &metadataHandler{info: info}

	err = mkvparse.ParseSections(file, handler,
		mkvparse.InfoElement,
		mkvparse.TracksElement,
		mkvparse.AttachmentsElement,
		mkvparse.TagsElement,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrContainerOpen, path, err)
	}

	info.resolveDurations()
	return info, nil
}

// resolveDurations assigns per-track durations: the n-th DURATION tag belongs
// to the n-th track, the segment duration covers the rest.
func (info *Info) resolveDurations() {
	segmentSeconds := -1.0
	if info.segmentDuration > 0 {
		segmentSeconds = info.segmentDuration * float64(info.TimecodeScale) / float64(time.Second)
	}

	for i := range info.Tracks {
		if i < len(info.durationTags) {
			info.Tracks[i].duration = info.durationTags[i]
			continue
		}
		info.Tracks[i].duration = segmentSeconds
	}
}

// FirstAudioTrack returns the first audio track entry, which carries the
// composition's sample rate and channel count.
func (info *Info) FirstAudioTrack() (*TrackInfo, error) {
	for i := range info.Tracks {
		if info.Tracks[i].IsAudio() {
			return &info.Tracks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no audio track in %s", types.ErrMetadataMissing, info.Path)
}

// Track returns the track entry with the given track number.
func (info *Info) Track(number uint32) (*TrackInfo, error) {
	for i := range info.Tracks {
		if info.Tracks[i].Number == number {
			return &info.Tracks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no track %d in %s", types.ErrMetadataMissing, number, info.Path)
}

// TrackDuration returns the duration in seconds of the given track.
// Surfaces ErrMetadataMissing when neither a DURATION tag nor a segment
// duration was present, rather than guessing.
func (info *Info) TrackDuration(number uint32) (float64, error) {
	track, err := info.Track(number)
	if err != nil {
		return 0, err
	}
	if track.duration < 0 {
		return 0, fmt.Errorf("%w: no duration for track %d in %s", types.ErrMetadataMissing, number, info.Path)
	}
	return track.duration, nil
}

// TimecodeToSeconds converts a timecode tick count to seconds.
func (info *Info) TimecodeToSeconds(ticks int64) float64 {
	return float64(ticks) * float64(info.TimecodeScale) / float64(time.Second)
}

// metadataHandler collects info/tracks/attachments/tags while the parser
// walks the metadata sections.
type metadataHandler struct {
	info *Info

	inTrackEntry   bool
	currentTrack   TrackInfo
	attachmentName string
	attachmentData []byte
	tagName        string
	tagValue       string
}

func (h *metadataHandler) HandleMasterBegin(id mkvparse.ElementID, _ mkvparse.ElementInfo) (bool, error) {
	switch id {
	case mkvparse.TrackEntryElement:
		h.inTrackEntry = true
		h.currentTrack = TrackInfo{}
	case mkvparse.AttachedFileElement:
		h.attachmentName = ""
		h.attachmentData = nil
	case mkvparse.SimpleTagElement:
		h.tagName = ""
		h.tagValue = ""
	}
	return true, nil
}

func (h *metadataHandler) HandleMasterEnd(id mkvparse.ElementID, _ mkvparse.ElementInfo) error {
	switch id {
	case mkvparse.TrackEntryElement:
		h.inTrackEntry = false
		h.info.Tracks = append(h.info.Tracks, h.currentTrack)
	case mkvparse.AttachedFileElement:
		if h.attachmentName != "" {
			h.info.Attachments[h.attachmentName] = h.attachmentData
		}
	case mkvparse.SimpleTagElement:
		if h.tagName == "DURATION" {
			if seconds, err := parseDurationTag(h.tagValue); err == nil {
				h.info.durationTags = append(h.info.durationTags, seconds)
			}
		}
	}
	return nil
}

func (h *metadataHandler) HandleString(id mkvparse.ElementID, value string, _ mkvparse.ElementInfo) error {
	switch id {
	case mkvparse.CodecIDElement:
		if h.inTrackEntry {
			h.currentTrack.CodecID = value
		}
	case mkvparse.FileNameElement:
		h.attachmentName = value
	case mkvparse.TagNameElement:
		h.tagName = value
	case mkvparse.TagStringElement:
		h.tagValue = value
	}
	return nil
}

func (h *metadataHandler) HandleInteger(id mkvparse.ElementID, value int64, _ mkvparse.ElementInfo) error {
	switch id {
	case mkvparse.TimecodeScaleElement:
		h.info.TimecodeScale = value
	case mkvparse.TrackNumberElement:
		h.currentTrack.Number = uint32(value)
	case mkvparse.TrackUIDElement:
		if h.inTrackEntry {
			h.currentTrack.UID = uint64(value)
		}
	case mkvparse.TrackTypeElement:
		h.currentTrack.Type = value
	case mkvparse.ChannelsElement:
		h.currentTrack.Channels = int(value)
	case mkvparse.BitDepthElement:
		h.currentTrack.BitDepth = int(value)
	}
	return nil
}

func (h *metadataHandler) HandleFloat(id mkvparse.ElementID, value float64, _ mkvparse.ElementInfo) error {
	switch id {
	case mkvparse.DurationElement:
		h.info.segmentDuration = value
	case mkvparse.SamplingFrequencyElement:
		h.currentTrack.SampleRate = value
	}
	return nil
}

func (h *metadataHandler) HandleDate(_ mkvparse.ElementID, _ time.Time, _ mkvparse.ElementInfo) error {
	return nil
}

func (h *metadataHandler) HandleBinary(id mkvparse.ElementID, value []byte, _ mkvparse.ElementInfo) error {
	if id == mkvparse.FileDataElement {
		h.attachmentData = append([]byte(nil), value...)
	}
	return nil
}

// parseDurationTag converts a DURATION tag value of the form HH:MM:SS or
// HH:MM:SS.fff to seconds.
func parseDurationTag(value string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed DURATION tag: %q", value)
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed DURATION tag: %q", value)
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed DURATION tag: %q", value)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed DURATION tag: %q", value)
	}

	return hours*3600 + minutes*60 + seconds, nil
}
