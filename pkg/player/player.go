// Package player is the public playback state machine. It owns the
// composition, spawns one engine per session, feeds the output sink and
// keeps the playhead in step with what the sink has actually played out.
package player

import (
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Proteus-Audio/proteus-cli/pkg/engine"
	"github.com/Proteus-Audio/proteus-cli/pkg/prot"
	"github.com/Proteus-Audio/proteus-cli/pkg/sink"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

const (
	// controlTick paces the engine thread's tail loop and control ticker;
	// killPoll paces the kill wait and Play's wait for the first chunk.
	controlTick = 100 * time.Millisecond
	killPoll    = 10 * time.Millisecond

	fadeOutStep  = 10 * time.Millisecond
	fadeInStep   = 5 * time.Millisecond
	fadeDuration = 100 * time.Millisecond

	defaultVolume = 1.0
	defaultDevice = 1
)

// SinkFactory creates the output sink for one engine session. The sink is
// recreated on every respawn, matching the device-stream lifecycle.
type SinkFactory func(sampleRate, channels int) (types.Sink, error)

// Option configures a Player during construction.
type Option func(*Player)

// WithSinkFactory replaces the PortAudio sink, e.g. with sink.NewBuffer for
// headless runs and tests.
func WithSinkFactory(factory SinkFactory) Option {
	return func(p *Player) {
		p.newSink = factory
	}
}

// WithDevice selects the PortAudio output device index.
func WithDevice(index int) Option {
	return func(p *Player) {
		device := index
		p.newSink = func(rate, channels int) (types.Sink, error) {
			return sink.NewDevice(rate, channels, device)
		}
	}
}

// WithRand seeds the composition's track draws.
func WithRand(rng *rand.Rand) Option {
	return func(p *Player) {
		p.rng = rng
	}
}

// WithOpenDecoder replaces the engine's decoder factory.
func WithOpenDecoder(open engine.OpenFunc) Option {
	return func(p *Player) {
		p.openDecoder = open
	}
}

// WithTrackOverride restricts container playback to a single track.
func WithTrackOverride(trackID uint32) Option {
	return func(p *Player) {
		p.trackOverride = trackID
	}
}

// Player coordinates one composition across engine sessions. All methods are
// safe for concurrent use.
type Player struct {
	prot          *prot.Prot
	rng           *rand.Rand
	newSink       SinkFactory
	openDecoder   engine.OpenFunc
	trackOverride uint32

	playing      atomic.Bool
	paused       atomic.Bool
	stop         atomic.Bool
	threadExists atomic.Bool
	audioHeard   atomic.Bool

	tsMu sync.Mutex
	ts   float64

	volumeMu sync.Mutex
	volume   float32

	sinkMu sync.Mutex
	sink   types.Sink

	chunkMu      sync.Mutex
	chunkLengths []float64

	reporter *Reporter
}

// New creates a player for a .prot/.mka container and spawns the initial
// engine session in the paused state, so decoding is primed before Play.
func New(path string, opts ...Option) (*Player, error) {
	p := newPlayer(opts)

	var composition *prot.Prot
	var err error
	if p.trackOverride != 0 {
		composition, err = prot.NewSingleTrack(path, p.trackOverride, prot.WithRand(p.rng))
	} else {
		composition, err = prot.New(path, prot.WithRand(p.rng))
	}
	if err != nil {
		return nil, err
	}
	p.prot = composition

	if err := p.initializeThread(0); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFromPaths creates a player for a file-list composition: one group of
// alternative source paths per playback part.
func NewFromPaths(groups [][]string, opts ...Option) (*Player, error) {
	p := newPlayer(opts)

	composition, err := prot.NewFromPaths(groups, prot.WithRand(p.rng))
	if err != nil {
		return nil, err
	}
	p.prot = composition

	if err := p.initializeThread(0); err != nil {
		return nil, err
	}
	return p, nil
}

func newPlayer(opts []Option) *Player {
	p := &Player{
		volume: defaultVolume,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if p.newSink == nil {
		p.newSink = func(rate, channels int) (types.Sink, error) {
			return sink.NewDevice(rate, channels, defaultDevice)
		}
	}
	p.paused.Store(true)
	return p
}

// initializeThread creates the sink and engine for a session starting at
// startTime and spawns the engine thread. The session starts paused.
func (p *Player) initializeThread(startTime float64) error {
	output, err := p.newSink(p.prot.SampleRate(), engine.Channels)
	if err != nil {
		return err
	}
	output.SetVolume(p.Volume())

	p.sinkMu.Lock()
	p.sink = output
	p.sinkMu.Unlock()

	p.tsMu.Lock()
	p.ts = startTime
	p.tsMu.Unlock()

	p.chunkMu.Lock()
	p.chunkLengths = nil
	p.chunkMu.Unlock()

	p.audioHeard.Store(false)

	e := engine.New(p.prot, &p.stop, startTime)
	if p.openDecoder != nil {
		e.SetOpenFunc(p.openDecoder)
	}

	p.threadExists.Store(true)
	go p.playbackThread(e, output, startTime)

	return nil
}

// playbackThread owns one engine session: it pulls mixed chunks into the
// sink and waits for the sink to drain everything the engine buffered.
// A separate control ticker applies pause/resume transitions so they stay
// responsive even while the chunk callback is blocked on a full sink.
func (p *Player) playbackThread(e *engine.Engine, output types.Sink, startTime float64) {
	defer p.threadExists.Store(false)
	defer output.Close()

	sessionDone := make(chan struct{})
	var controlDone sync.WaitGroup
	controlDone.Add(1)
	go func() {
		defer controlDone.Done()
		for !p.stop.Load() {
			select {
			case <-sessionDone:
				return
			default:
			}
			p.applyTransitions(output, startTime)
			p.advancePlayhead(output)
			time.Sleep(controlTick)
		}
	}()

	e.ReceptionLoop(func(chunk engine.Chunk) {
		if p.stop.Load() {
			return
		}

		output.Append(chunk.Samples)

		p.chunkMu.Lock()
		p.chunkLengths = append(p.chunkLengths, chunk.Seconds)
		p.chunkMu.Unlock()

		p.advancePlayhead(output)
		p.audioHeard.Store(true)
	})

	for !p.stop.Load() {
		p.advancePlayhead(output)
		if output.Empty() && e.FinishedBuffering() {
			break
		}
		time.Sleep(controlTick)
	}

	close(sessionDone)
	controlDone.Wait()

	slog.Debug("engine session ended", "start_time", startTime)
}

// applyTransitions reconciles the sink with the playing/paused flags,
// fading on the way down and up.
func (p *Player) applyTransitions(output types.Sink, startTime float64) {
	if p.paused.Load() && !output.IsPaused() {
		// No fade when nothing has been heard yet.
		if p.audioHeard.Load() && p.GetTime() > startTime {
			p.fadeOut(output)
		}
		output.Pause()
		output.SetVolume(p.Volume())
		return
	}

	if p.playing.Load() && !p.paused.Load() && output.IsPaused() {
		output.SetVolume(0)
		output.Play()
		p.fadeIn(output)
	}
}

// fadeOut ramps the sink volume to silence before pausing.
func (p *Player) fadeOut(output types.Sink) {
	from := output.Volume()
	steps := int(fadeDuration / fadeOutStep)
	for i := steps - 1; i >= 0; i-- {
		output.SetVolume(from * float32(i) / float32(steps))
		time.Sleep(fadeOutStep)
	}
}

// fadeIn ramps the sink volume from silence back to the stored target.
func (p *Player) fadeIn(output types.Sink) {
	target := p.Volume()
	steps := int(fadeDuration / fadeInStep)
	for i := 1; i <= steps; i++ {
		output.SetVolume(target * float32(i) / float32(steps))
		time.Sleep(fadeInStep)
	}
	output.SetVolume(target)
}

// advancePlayhead pops the lengths of chunks that have left the sink and
// adds them to the playhead, tying reported time to actual playout.
func (p *Player) advancePlayhead(output types.Sink) {
	p.chunkMu.Lock()
	played := len(p.chunkLengths) - output.Len()
	var advance float64
	for i := 0; i < played && len(p.chunkLengths) > 0; i++ {
		advance += p.chunkLengths[0]
		p.chunkLengths = p.chunkLengths[1:]
	}
	p.chunkMu.Unlock()

	if advance > 0 {
		p.tsMu.Lock()
		p.ts += advance
		p.tsMu.Unlock()
	}
}

// Play starts or resumes playback. If the engine session has ended, a new
// one is spawned at the current playhead. Blocks until audio has actually
// reached the sink, so IsPlaying implies audible.
func (p *Player) Play() error {
	if !p.threadExists.Load() {
		p.stop.Store(false)
		if err := p.initializeThread(p.GetTime()); err != nil {
			return err
		}
	}

	p.stop.Store(false)
	p.playing.Store(true)
	p.paused.Store(false)

	for !p.audioHeard.Load() && p.threadExists.Load() {
		time.Sleep(killPoll)
	}
	return nil
}

// PlayAt seeks to ts and starts playback there.
func (p *Player) PlayAt(ts float64) error {
	if err := p.Seek(ts); err != nil {
		return err
	}
	return p.Play()
}

// Pause suspends playback. The engine thread observes the flag and fades
// the sink to silence.
func (p *Player) Pause() {
	p.paused.Store(true)
	p.playing.Store(false)
}

// Resume continues playback after a pause.
func (p *Player) Resume() {
	p.playing.Store(true)
	p.paused.Store(false)
}

// Seek kills the current engine session and spawns a new one at ts,
// preserving the play/pause state.
func (p *Player) Seek(ts float64) error {
	if ts < 0 {
		ts = 0
	}
	wasPlaying := p.playing.Load()
	wasPaused := p.paused.Load()

	p.killCurrent()

	// Respawn paused; the new engine thread applies the restored state.
	p.paused.Store(true)
	p.playing.Store(false)

	if err := p.initializeThread(ts); err != nil {
		return err
	}

	p.playing.Store(wasPlaying)
	p.paused.Store(wasPaused)
	return nil
}

// RefreshTracks re-draws one candidate per group and restarts playback at
// the current playhead with the new selection, preserving play/pause state.
func (p *Player) RefreshTracks() error {
	if err := p.prot.RefreshTracks(); err != nil {
		return err
	}
	return p.Seek(p.GetTime())
}

// Stop ends the session and resets the playhead to zero.
func (p *Player) Stop() {
	p.killCurrent()
	p.playing.Store(false)
	p.paused.Store(false)

	p.tsMu.Lock()
	p.ts = 0
	p.tsMu.Unlock()
}

// killCurrent signals the engine session to abort, unblocks it by closing
// the sink, and waits for the engine thread to exit.
func (p *Player) killCurrent() {
	p.stop.Store(true)

	p.sinkMu.Lock()
	if p.sink != nil {
		p.sink.Close()
	}
	p.sinkMu.Unlock()

	for p.threadExists.Load() {
		time.Sleep(killPoll)
	}
	p.stop.Store(false)
}

// IsPlaying reports whether playback is running and audible.
func (p *Player) IsPlaying() bool {
	return p.playing.Load()
}

// IsPaused reports whether playback is paused.
func (p *Player) IsPaused() bool {
	return p.paused.Load()
}

// IsFinished reports whether the engine session has ended.
func (p *Player) IsFinished() bool {
	return !p.threadExists.Load()
}

// GetTime returns the playhead position in seconds.
func (p *Player) GetTime() float64 {
	p.tsMu.Lock()
	defer p.tsMu.Unlock()
	return p.ts
}

// GetDuration returns the composition duration in seconds.
func (p *Player) GetDuration() float64 {
	return p.prot.Duration()
}

// SetVolume sets the target volume in [0, 1]. Applied to the sink
// immediately; fades always return to this target.
func (p *Player) SetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}

	p.volumeMu.Lock()
	p.volume = v
	p.volumeMu.Unlock()

	p.sinkMu.Lock()
	if p.sink != nil {
		p.sink.SetVolume(v)
	}
	p.sinkMu.Unlock()
}

// Volume returns the stored target volume. The sink may read lower
// mid-fade; the target is authoritative.
func (p *Player) Volume() float32 {
	p.volumeMu.Lock()
	defer p.volumeMu.Unlock()
	return p.volume
}

// Close stops playback and reporting.
func (p *Player) Close() {
	p.StopReporting()
	p.Stop()
}
