package prot

import (
	"fmt"
	"math/rand"

	"github.com/buger/jsonparser"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// AttachmentName is the container attachment carrying the play settings.
const AttachmentName = "play_settings.json"

// TrackGroup is one alternative group from the manifest. Modern manifests
// (encoder_version present) list candidate track ids; legacy manifests
// describe a contiguous id range via startingIndex/length.
type TrackGroup struct {
	IDs []uint32

	Legacy        bool
	StartingIndex uint32
	Length        uint32
}

// Manifest is the parsed play_settings.json attachment.
type Manifest struct {
	EncoderVersion float64
	HasVersion     bool
	Groups         []TrackGroup
}

// ParseManifest parses the play_settings.json payload. The manifest form is
// selected by the presence of encoder_version, matching the encoder history:
// versioned files carry explicit id lists, unversioned ones the legacy range.
func ParseManifest(data []byte) (*Manifest, error) {
	manifest := &Manifest{}

	if version, err := jsonparser.GetFloat(data, "encoder_version"); err == nil {
		manifest.EncoderVersion = version
		manifest.HasVersion = true
	}

	var parseErr error
	_, err := jsonparser.ArrayEach(data, func(track []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil || dataType != jsonparser.Object {
			return
		}

		if manifest.HasVersion {
			group := TrackGroup{}
			_, idsErr := jsonparser.ArrayEach(track, func(id []byte, idType jsonparser.ValueType, _ int, _ error) {
				if parseErr != nil {
					return
				}
				value, err := jsonparser.ParseInt(id)
				if err != nil || value < 0 {
					parseErr = fmt.Errorf("%w: bad track id %q", types.ErrManifestParse, id)
					return
				}
				group.IDs = append(group.IDs, uint32(value))
			}, "ids")
			if idsErr != nil {
				parseErr = fmt.Errorf("%w: track entry without ids", types.ErrManifestParse)
				return
			}
			manifest.Groups = append(manifest.Groups, group)
			return
		}

		startingIndex, err := jsonparser.GetInt(track, "startingIndex")
		if err != nil || startingIndex < 0 {
			parseErr = fmt.Errorf("%w: track entry without startingIndex", types.ErrManifestParse)
			return
		}
		length, err := jsonparser.GetInt(track, "length")
		if err != nil || length < 1 {
			parseErr = fmt.Errorf("%w: track entry without length", types.ErrManifestParse)
			return
		}
		manifest.Groups = append(manifest.Groups, TrackGroup{
			Legacy:        true,
			StartingIndex: uint32(startingIndex),
			Length:        uint32(length),
		})
	}, "play_settings", "tracks")

	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrManifestParse, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if len(manifest.Groups) == 0 {
		return nil, fmt.Errorf("%w: no track groups", types.ErrManifestParse)
	}

	return manifest, nil
}

// Draw picks one track id per group uniformly at random. Empty modern groups
// are skipped; a legacy group with length L draws from
// [startingIndex+1, startingIndex+L+1).
func (m *Manifest) Draw(rng *rand.Rand) []uint32 {
	ids := make([]uint32, 0, len(m.Groups))
	for _, group := range m.Groups {
		if group.Legacy {
			ids = append(ids, group.StartingIndex+1+uint32(rng.Intn(int(group.Length))))
			continue
		}
		if len(group.IDs) == 0 {
			continue
		}
		ids = append(ids, group.IDs[rng.Intn(len(group.IDs))])
	}
	return ids
}
