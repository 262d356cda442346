package player

import (
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Proteus-Audio/proteus-cli/internal/testmkv"
	"github.com/Proteus-Audio/proteus-cli/internal/testtone"
	"github.com/Proteus-Audio/proteus-cli/pkg/sink"
	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

const testRate = 8000

func writeTone(t *testing.T, dir, name string, seconds float64, channels int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := testtone.WriteWAV(path, seconds, testRate, channels); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

// newTestPlayer builds a player over WAV path groups with the clock-driven
// buffer sink standing in for the audio device.
func newTestPlayer(t *testing.T, groups [][]string) *Player {
	t.Helper()
	p, err := NewFromPaths(groups,
		WithRand(rand.New(rand.NewSource(1))),
		WithSinkFactory(func(rate, channels int) (types.Sink, error) {
			return sink.NewBuffer(rate, channels), nil
		}),
	)
	if err != nil {
		t.Fatalf("NewFromPaths failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func waitFinished(t *testing.T, p *Player, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !p.IsFinished() {
		if time.Now().After(deadline) {
			t.Fatalf("player did not finish within %v (time=%f)", timeout, p.GetTime())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// S1: a single mono source plays as stereo for its full duration.
func TestPlaySingleMonoTrack(t *testing.T) {
	dir := t.TempDir()
	mono := writeTone(t, dir, "mono.wav", 2.0, 1)

	p := newTestPlayer(t, [][]string{{mono}})

	if d := p.GetDuration(); d < 1.99 || d > 2.01 {
		t.Fatalf("GetDuration: got %f, want 2.0", d)
	}
	if p.IsFinished() {
		t.Fatal("IsFinished before playout: got true")
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !p.IsPlaying() {
		t.Error("IsPlaying after Play: got false")
	}

	waitFinished(t, p, 6*time.Second)

	if got := p.GetTime(); got < 1.9 || got > 2.1 {
		t.Errorf("GetTime at end: got %f, want 2.0 +/- 0.1", got)
	}
}

// S2: duration is the longest selected track; playback covers all of it.
func TestPlayTwoGroups(t *testing.T) {
	dir := t.TempDir()
	short := writeTone(t, dir, "short.wav", 1.0, 2)
	long := writeTone(t, dir, "long.wav", 3.0, 2)

	p := newTestPlayer(t, [][]string{{short}, {long}})

	if d := p.GetDuration(); d < 2.99 || d > 3.01 {
		t.Fatalf("GetDuration: got %f, want 3.0", d)
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFinished(t, p, 8*time.Second)

	if got := p.GetTime(); got < 2.9 || got > 3.1 {
		t.Errorf("GetTime at end: got %f, want 3.0 +/- 0.1", got)
	}
}

// S3: pause freezes the playhead and stretches wall time; resume continues.
func TestPauseAndResume(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 2.0, 2)

	p := newTestPlayer(t, [][]string{{tone}})

	start := time.Now()
	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	p.Pause()
	if !p.IsPaused() {
		t.Error("IsPaused after Pause: got false")
	}
	// Let the engine thread apply the transition and the fade settle.
	time.Sleep(300 * time.Millisecond)

	atPause := p.GetTime()
	time.Sleep(500 * time.Millisecond)
	if got := p.GetTime(); got != atPause {
		t.Errorf("GetTime moved while paused: %f -> %f", atPause, got)
	}

	p.Resume()
	if p.IsPaused() || !p.IsPlaying() {
		t.Error("flags after Resume: want playing, not paused")
	}

	waitFinished(t, p, 8*time.Second)

	// 2 s of audio plus most of the second spent paused; the pause takes
	// effect only after the engine thread's next tick and the fade-out.
	if elapsed := time.Since(start); elapsed < 2500*time.Millisecond {
		t.Errorf("wall time: got %v, want >= 2.5s", elapsed)
	}
	if got := p.GetTime(); got < atPause {
		t.Errorf("GetTime regressed after resume: %f < %f", got, atPause)
	}
}

// S4: seeking near the end finishes shortly after.
func TestSeekNearEnd(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 2.0, 2)

	p := newTestPlayer(t, [][]string{{tone}})

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Seek(1.5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	// Playhead lands exactly on the seek target.
	if got := p.GetTime(); got != 1.5 {
		t.Errorf("GetTime after Seek: got %f, want 1.5", got)
	}
	if !p.IsPlaying() {
		t.Error("Seek did not preserve the playing state")
	}

	waitFinished(t, p, 4*time.Second)

	if got := p.GetTime(); got < 1.9 || got > 2.1 {
		t.Errorf("GetTime at end: got %f, want 2.0 +/- 0.1", got)
	}
}

// S5: reshuffling mid-play keeps the playhead where it was.
func TestRefreshTracksKeepsPlayhead(t *testing.T) {
	dir := t.TempDir()
	group := []string{
		writeTone(t, dir, "a.wav", 5.0, 2),
		writeTone(t, dir, "b.wav", 5.0, 2),
	}

	p := newTestPlayer(t, [][]string{group})

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	before := p.GetTime()
	if err := p.RefreshTracks(); err != nil {
		t.Fatalf("RefreshTracks failed: %v", err)
	}
	after := p.GetTime()

	if diff := after - before; diff < -0.11 || diff > 0.11 {
		t.Errorf("playhead moved across refresh: %f -> %f", before, after)
	}
	if !p.IsPlaying() {
		t.Error("RefreshTracks did not preserve the playing state")
	}

	p.Stop()
}

// S6: stop resets the playhead and a following play starts from zero.
func TestStopResetsAndReplays(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 3.0, 2)

	p := newTestPlayer(t, [][]string{{tone}})

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	p.Stop()

	if !p.IsFinished() {
		t.Error("IsFinished after Stop: got false")
	}
	if got := p.GetTime(); got != 0 {
		t.Errorf("GetTime after Stop: got %f, want 0", got)
	}
	if p.IsPlaying() || p.IsPaused() {
		t.Error("flags after Stop: want neither playing nor paused")
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play after Stop failed: %v", err)
	}
	if got := p.GetTime(); got > 1.0 {
		t.Errorf("replay did not start from zero: GetTime=%f", got)
	}
	p.Stop()
}

// Volume is clamped, stored as the fade target, and survives a pause cycle.
func TestVolumeTargetAuthoritative(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 2.0, 2)

	p := newTestPlayer(t, [][]string{{tone}})

	p.SetVolume(0.6)
	if v := p.Volume(); v != 0.6 {
		t.Fatalf("Volume: got %f, want 0.6", v)
	}
	p.SetVolume(1.7)
	if v := p.Volume(); v != 1.0 {
		t.Errorf("Volume after SetVolume(1.7): got %f, want 1.0", v)
	}
	p.SetVolume(0.4)

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	p.Pause()
	time.Sleep(400 * time.Millisecond)
	p.Resume()
	// Give the resume fade time to finish ramping to the target.
	time.Sleep(300 * time.Millisecond)

	if v := p.Volume(); v != 0.4 {
		t.Errorf("target volume after pause cycle: got %f, want 0.4", v)
	}
	p.Stop()
}

// A container composition plays end to end through the PCM track decoder.
func TestPlayContainerComposition(t *testing.T) {
	manifest := []byte(`{"encoder_version": 1, "play_settings": {"tracks": [{"ids": [1]}]}}`)

	// One second of stereo f32 PCM in ten 100 ms blocks.
	blockSamples := make([]float32, 800*2)
	for i := range blockSamples {
		blockSamples[i] = 0.1
	}
	blocks := make([]testmkv.Block, 10)
	for i := range blocks {
		blocks[i] = testmkv.Block{
			Track:   1,
			RelTime: int16(i * 100),
			Data:    testmkv.PCMFloats(blockSamples),
		}
	}

	path := filepath.Join(t.TempDir(), "comp.prot")
	c := testmkv.Container{
		TimecodeScale: 1_000_000,
		Tracks: []testmkv.Track{{
			Number:   1,
			CodecID:  "A_PCM/FLOAT/IEEE",
			Rate:     8000,
			Channels: 2,
			BitDepth: 32,
		}},
		Attachments:  map[string][]byte{"play_settings.json": manifest},
		DurationTags: []string{"00:00:01"},
		Clusters:     []testmkv.Cluster{{Timecode: 0, Blocks: blocks}},
	}
	if err := c.Write(path); err != nil {
		t.Fatalf("writing container fixture: %v", err)
	}

	p, err := New(path,
		WithRand(rand.New(rand.NewSource(1))),
		WithSinkFactory(func(rate, channels int) (types.Sink, error) {
			return sink.NewBuffer(rate, channels), nil
		}),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Close)

	if d := p.GetDuration(); d != 1.0 {
		t.Fatalf("GetDuration: got %f, want 1.0", d)
	}

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFinished(t, p, 6*time.Second)

	if got := p.GetTime(); got < 0.9 || got > 1.1 {
		t.Errorf("GetTime at end: got %f, want 1.0 +/- 0.1", got)
	}
}

func TestReporterEmitsOnChange(t *testing.T) {
	dir := t.TempDir()
	tone := writeTone(t, dir, "tone.wav", 2.0, 2)

	p := newTestPlayer(t, [][]string{{tone}})

	var mu sync.Mutex
	var reports []types.Report
	p.SetReporting(func(report types.Report) {
		mu.Lock()
		reports = append(reports, report)
		mu.Unlock()
	}, 20*time.Millisecond)

	if err := p.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFinished(t, p, 6*time.Second)
	p.StopReporting()

	mu.Lock()
	defer mu.Unlock()

	if len(reports) < 2 {
		t.Fatalf("reports: got %d, want at least 2", len(reports))
	}
	// Consecutive reports always differ, and time never regresses.
	for i := 1; i < len(reports); i++ {
		if reports[i] == reports[i-1] {
			t.Errorf("report %d duplicates its predecessor", i)
		}
		if reports[i].Time < reports[i-1].Time {
			t.Errorf("report %d: time regressed %f -> %f", i, reports[i-1].Time, reports[i].Time)
		}
	}
	last := reports[len(reports)-1]
	if last.Duration < 1.99 || last.Duration > 2.01 {
		t.Errorf("reported duration: got %f, want 2.0", last.Duration)
	}
}
