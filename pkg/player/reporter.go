package player

import (
	"sync/atomic"
	"time"

	"github.com/Proteus-Audio/proteus-cli/pkg/types"
)

// ReportFunc receives playback reports. Called from the reporter goroutine.
type ReportFunc func(types.Report)

// Reporter polls a player on an interval and emits a Report whenever any
// field changed since the last emission.
type Reporter struct {
	player   *Player
	report   ReportFunc
	interval time.Duration
	finish   atomic.Bool
}

// NewReporter creates a reporter for the player. Call Start to begin polling.
func NewReporter(p *Player, report ReportFunc, interval time.Duration) *Reporter {
	return &Reporter{
		player:   p,
		report:   report,
		interval: interval,
	}
}

// Start begins the polling loop in its own goroutine.
func (r *Reporter) Start() {
	r.finish.Store(false)
	go r.run()
}

// Stop ends the polling loop after the current tick.
func (r *Reporter) Stop() {
	r.finish.Store(true)
}

func (r *Reporter) run() {
	var last types.Report

	for !r.finish.Load() {
		report := types.Report{
			Time:     r.player.GetTime(),
			Volume:   r.player.Volume(),
			Duration: r.player.GetDuration(),
			Playing:  r.player.IsPlaying(),
		}

		if report != last {
			r.report(report)
			last = report
		}

		time.Sleep(r.interval)
	}
}

// SetReporting attaches a reporter to the player and starts it, replacing
// any previous one.
func (p *Player) SetReporting(report ReportFunc, interval time.Duration) {
	p.StopReporting()
	p.reporter = NewReporter(p, report, interval)
	p.reporter.Start()
}

// StopReporting stops the player's reporter, if any.
func (p *Player) StopReporting() {
	if p.reporter != nil {
		p.reporter.Stop()
		p.reporter = nil
	}
}
