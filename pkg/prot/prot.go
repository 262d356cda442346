// Package prot resolves a composition (a .prot/.mka container or a list of
// alternative path groups) into the concrete set of tracks for one playback
// session, re-drawable for reshuffles.
package prot

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Proteus-Audio/proteus-cli/pkg/container"
	"github.com/Proteus-Audio/proteus-cli/pkg/decoders"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// Entry is one selected track. Key is the positional index into the
// selection and identifies the track throughout the engine.
type Entry struct {
	Key     int
	Source  string
	TrackID uint32
}

// Option configures a Prot during construction.
type Option func(*Prot)

// WithRand sets the random source used for track draws. Fixing the seed makes
// reshuffles deterministic.
func WithRand(rng *rand.Rand) Option {
	return func(p *Prot) {
		p.rng = rng
	}
}

// Prot is a composition: the parsed description of the alternative groups
// plus the current selection. Safe for concurrent use.
type Prot struct {
	mu  sync.Mutex
	rng *rand.Rand

	// container composition
	path     string
	info     *container.Info
	manifest *Manifest

	// file-list composition
	groups [][]string

	// fixed selection (single-track override); never re-drawn
	fixed []Entry

	sampleRate int
	channels   int

	selection []Entry
	duration  float64

	// duration probe cache for file-list compositions
	pathDurations map[string]float64
}

// New opens a .prot/.mka container, parses its play settings attachment and
// draws an initial selection.
func New(path string, opts ...Option) (*Prot, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".prot" && ext != ".mka" {
		return nil, fmt.Errorf("%w: %s is not a .prot or .mka file", types.ErrContainerOpen, path)
	}

	info, err := container.ReadInfo(path)
	if err != nil {
		return nil, err
	}

	settings, ok := info.Attachments[AttachmentName]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s attachment", types.ErrMetadataMissing, path, AttachmentName)
	}

	manifest, err := ParseManifest(settings)
	if err != nil {
		return nil, err
	}

	audio, err := info.FirstAudioTrack()
	if err != nil {
		return nil, err
	}

	p := &Prot{
		path:       path,
		info:       info,
		manifest:   manifest,
		sampleRate: int(audio.SampleRate),
		channels:   audio.Channels,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromPaths builds a composition from groups of alternative source paths,
// one selection per group. Audio settings come from the first path of the
// first group.
func NewFromPaths(groups [][]string, opts ...Option) (*Prot, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no path groups", types.ErrMetadataMissing)
	}
	for i, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: empty path group %d", types.ErrMetadataMissing, i)
		}
	}

	rate, channels, _, err := decoders.Probe(groups[0][0])
	if err != nil {
		return nil, err
	}

	p := &Prot{
		groups:        groups,
		sampleRate:    rate,
		channels:      channels,
		pathDurations: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewSingleTrack builds a degenerate composition that always plays exactly
// one container track, backing the CLI's --track flag.
func NewSingleTrack(path string, trackID uint32, opts ...Option) (*Prot, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".prot" && ext != ".mka" {
		return nil, fmt.Errorf("%w: %s is not a .prot or .mka file", types.ErrContainerOpen, path)
	}

	info, err := container.ReadInfo(path)
	if err != nil {
		return nil, err
	}
	track, err := info.Track(trackID)
	if err != nil {
		return nil, err
	}

	audio, err := info.FirstAudioTrack()
	if err != nil {
		return nil, err
	}

	p := &Prot{
		path:       path,
		info:       info,
		fixed:      []Entry{{Key: 0, Source: path, TrackID: track.Number}},
		sampleRate: int(audio.SampleRate),
		channels:   audio.Channels,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prot) init() error {
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if p.sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", types.ErrMetadataMissing, p.sampleRate)
	}
	if p.channels != 1 && p.channels != 2 {
		return fmt.Errorf("%w: %d channels", types.ErrUnsupportedFormat, p.channels)
	}
	return p.redraw()
}

// redraw draws one candidate per group and recomputes the session duration.
// Caller holds no lock during construction; RefreshTracks locks around it.
func (p *Prot) redraw() error {
	if p.fixed != nil {
		duration, err := p.info.TrackDuration(p.fixed[0].TrackID)
		if err != nil {
			return err
		}
		p.selection = p.fixed
		p.duration = duration
		return nil
	}

	if p.manifest != nil {
		ids := p.manifest.Draw(p.rng)
		selection := make([]Entry, len(ids))
		duration := 0.0
		for i, id := range ids {
			selection[i] = Entry{Key: i, Source: p.path, TrackID: id}
			trackDuration, err := p.info.TrackDuration(id)
			if err != nil {
				return err
			}
			duration = max(duration, trackDuration)
		}
		p.selection = selection
		p.duration = duration
		return nil
	}

	selection := make([]Entry, len(p.groups))
	duration := 0.0
	for i, group := range p.groups {
		path := group[p.rng.Intn(len(group))]
		selection[i] = Entry{Key: i, Source: path}

		pathDuration, ok := p.pathDurations[path]
		if !ok {
			var err error
			_, _, pathDuration, err = decoders.Probe(path)
			if err != nil {
				return err
			}
			p.pathDurations[path] = pathDuration
		}
		duration = max(duration, pathDuration)
	}
	p.selection = selection
	p.duration = duration
	return nil
}

// RefreshTracks re-draws one candidate per group uniformly at random.
func (p *Prot) RefreshTracks() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.redraw()
}

// SampleRate returns the composition sample rate in Hz.
func (p *Prot) SampleRate() int {
	return p.sampleRate
}

// Channels returns the composition channel count.
func (p *Prot) Channels() int {
	return p.channels
}

// Duration returns the longest selected track's duration in seconds.
func (p *Prot) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Keys returns the selection keys in order.
func (p *Prot) Keys() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]int, len(p.selection))
	for i := range p.selection {
		keys[i] = p.selection[i].Key
	}
	return keys
}

// Selection returns a copy of the current selection.
func (p *Prot) Selection() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Entry(nil), p.selection...)
}
