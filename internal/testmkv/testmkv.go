// Package testmkv assembles minimal Matroska documents byte by byte for
// tests: an EBML header, one segment with info/tracks/attachments/tags, and
// PCM sample clusters. No muxer is involved, so tests control every field.
package testmkv

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Element IDs, written with their class marker bytes included.
var (
	idEBML               = []byte{0x1A, 0x45, 0xDF, 0xA3}
	idEBMLVersion        = []byte{0x42, 0x86}
	idEBMLReadVersion    = []byte{0x42, 0xF7}
	idEBMLMaxIDLength    = []byte{0x42, 0xF2}
	idEBMLMaxSizeLength  = []byte{0x42, 0xF3}
	idDocType            = []byte{0x42, 0x82}
	idDocTypeVersion     = []byte{0x42, 0x87}
	idDocTypeReadVersion = []byte{0x42, 0x85}

	idSegment       = []byte{0x18, 0x53, 0x80, 0x67}
	idInfo          = []byte{0x15, 0x49, 0xA9, 0x66}
	idTimecodeScale = []byte{0x2A, 0xD7, 0xB1}
	idDuration      = []byte{0x44, 0x89}

	idTracks            = []byte{0x16, 0x54, 0xAE, 0x6B}
	idTrackEntry        = []byte{0xAE}
	idTrackNumber       = []byte{0xD7}
	idTrackUID          = []byte{0x73, 0xC5}
	idTrackType         = []byte{0x83}
	idCodecID           = []byte{0x86}
	idAudio             = []byte{0xE1}
	idSamplingFrequency = []byte{0xB5}
	idChannels          = []byte{0x9F}
	idBitDepth          = []byte{0x62, 0x64}

	idAttachments  = []byte{0x19, 0x41, 0xA4, 0x69}
	idAttachedFile = []byte{0x61, 0xA7}
	idFileName     = []byte{0x46, 0x6E}
	idFileMimeType = []byte{0x46, 0x60}
	idFileUID      = []byte{0x46, 0xAE}
	idFileData     = []byte{0x46, 0x5C}

	idTags      = []byte{0x12, 0x54, 0xC3, 0x67}
	idTag       = []byte{0x73, 0x73}
	idSimpleTag = []byte{0x67, 0xC8}
	idTagName   = []byte{0x45, 0xA3}
	idTagString = []byte{0x44, 0x87}

	idCluster     = []byte{0x1F, 0x43, 0xB6, 0x75}
	idTimecode    = []byte{0xE7}
	idSimpleBlock = []byte{0xA3}
)

const trackTypeAudio = 2

// Track describes one audio track entry of the synthetic container.
type Track struct {
	Number   uint32
	CodecID  string
	Rate     float64
	Channels int
	BitDepth int
}

// Block is one SimpleBlock of raw codec data.
type Block struct {
	Track   uint32
	RelTime int16
	Data    []byte
}

// Cluster groups blocks under one cluster timecode.
type Cluster struct {
	Timecode int64
	Blocks   []Block
}

// Container is the full description of the document to assemble.
type Container struct {
	TimecodeScale int64   // 0 omits the element (readers use the 1 ms default)
	DurationTicks float64 // 0 omits the segment duration
	Tracks        []Track
	Attachments   map[string][]byte
	DurationTags  []string // one DURATION tag value per track index
	Clusters      []Cluster
}

// Build assembles the document bytes.
func (c Container) Build() []byte {
	header := element(idEBML, concat(
		element(idEBMLVersion, uintBytes(1)),
		element(idEBMLReadVersion, uintBytes(1)),
		element(idEBMLMaxIDLength, uintBytes(4)),
		element(idEBMLMaxSizeLength, uintBytes(8)),
		element(idDocType, []byte("matroska")),
		element(idDocTypeVersion, uintBytes(4)),
		element(idDocTypeReadVersion, uintBytes(2)),
	))

	var info []byte
	if c.TimecodeScale != 0 {
		info = append(info, element(idTimecodeScale, uintBytes(uint64(c.TimecodeScale)))...)
	}
	if c.DurationTicks != 0 {
		info = append(info, element(idDuration, floatBytes(c.DurationTicks))...)
	}

	var tracks []byte
	for _, track := range c.Tracks {
		audio := concat(
			element(idSamplingFrequency, floatBytes(track.Rate)),
			element(idChannels, uintBytes(uint64(track.Channels))),
			element(idBitDepth, uintBytes(uint64(track.BitDepth))),
		)
		tracks = append(tracks, element(idTrackEntry, concat(
			element(idTrackNumber, uintBytes(uint64(track.Number))),
			element(idTrackUID, uintBytes(uint64(track.Number))),
			element(idTrackType, uintBytes(trackTypeAudio)),
			element(idCodecID, []byte(track.CodecID)),
			element(idAudio, audio),
		))...)
	}

	var attachments []byte
	for name, data := range c.Attachments {
		attachments = append(attachments, element(idAttachedFile, concat(
			element(idFileName, []byte(name)),
			element(idFileMimeType, []byte("application/json")),
			element(idFileUID, uintBytes(1)),
			element(idFileData, data),
		))...)
	}

	var tags []byte
	for _, value := range c.DurationTags {
		tags = append(tags, element(idTag, element(idSimpleTag, concat(
			element(idTagName, []byte("DURATION")),
			element(idTagString, []byte(value)),
		)))...)
	}

	segment := element(idInfo, info)
	segment = append(segment, element(idTracks, tracks)...)
	if attachments != nil {
		segment = append(segment, element(idAttachments, attachments)...)
	}
	if tags != nil {
		segment = append(segment, element(idTags, tags)...)
	}

	for _, cluster := range c.Clusters {
		body := element(idTimecode, uintBytes(uint64(cluster.Timecode)))
		for _, block := range cluster.Blocks {
			body = append(body, element(idSimpleBlock, blockBytes(block))...)
		}
		segment = append(segment, element(idCluster, body)...)
	}

	return append(header, element(idSegment, segment)...)
}

// Write assembles the document and writes it to path.
func (c Container) Write(path string) error {
	if err := os.WriteFile(path, c.Build(), 0o644); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	return nil
}

// PCMFloats encodes samples as the little-endian f32 payload of an
// A_PCM/FLOAT/IEEE block.
func PCMFloats(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(sample))
	}
	return data
}

// PCMInt16 encodes samples as the little-endian payload of an A_PCM/INT/LIT
// block at 16 bits.
func PCMInt16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}

// blockBytes frames a SimpleBlock payload: track vint, relative timecode,
// flags, then the unlaced frame data.
func blockBytes(block Block) []byte {
	out := []byte{0x80 | byte(block.Track)}
	out = append(out, byte(uint16(block.RelTime)>>8), byte(uint16(block.RelTime)))
	out = append(out, 0x00)
	return append(out, block.Data...)
}

// element frames payload under id with a shortest-form size vint.
func element(id, payload []byte) []byte {
	out := append(append([]byte(nil), id...), sizeBytes(uint64(len(payload)))...)
	return append(out, payload...)
}

// sizeBytes encodes a length as an EBML size vint in its shortest form.
func sizeBytes(n uint64) []byte {
	for length := 1; length <= 8; length++ {
		// The all-ones pattern of each width means "unknown size"; step up.
		limit := uint64(1)<<(7*length) - 1
		if n < limit {
			out := make([]byte, length)
			for i := length - 1; i >= 0; i-- {
				out[i] = byte(n)
				n >>= 8
			}
			out[0] |= 0x80 >> (length - 1)
			return out
		}
	}
	panic("element too large")
}

// uintBytes encodes an unsigned integer big-endian with minimal width.
func uintBytes(n uint64) []byte {
	length := 1
	for shifted := n; shifted > 0xFF; shifted >>= 8 {
		length++
	}
	out := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}

// floatBytes encodes a float as 8-byte big-endian IEEE 754.
func floatBytes(f float64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, math.Float64bits(f))
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}
