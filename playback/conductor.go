package playback

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go-chorale/debug"
)

// lane is one independently-suspending scheduling task. The pump asks
// every lane for its earliest deadline, waits for the soonest one, and
// advances that lane. Suspension happens only in the pump, so lane
// work never runs concurrently with other lane work.
type lane interface {
	nextDeadline() (time.Time, bool)
	advance(now time.Time)
}

// ErrNothingToPlay is returned by Play when neither timeline holds a
// playable unit.
var ErrNothingToPlay = errors.New("nothing to play")

const defaultVelocity = 96

// Conductor owns the device, the registry and the current run, and
// drives the harmony and melody lanes from a single pump goroutine.
// The device is a shared resource with at most one active run:
// starting a new run fully cancels and flushes the previous one first.
type Conductor struct {
	dev     Device
	clock   Clock
	reg     *Registry
	auditor *Auditor

	velocity      uint8
	emphasizeBass bool

	gen    atomic.Uint64 // bumped on every run start and stop
	runSeq uint64

	mu       sync.Mutex
	run      Run
	regions  []ChordRegion
	melody   []MelodyNote
	playing  bool
	stopChan chan struct{}
	doneChan chan struct{}

	// UpdateChan gets a non-blocking tick whenever playback state
	// changed, for the TUI to re-poll.
	UpdateChan chan struct{}
}

// Option configures a Conductor.
type Option func(*Conductor)

// WithVelocity sets the trigger velocity for both lanes.
func WithVelocity(v uint8) Option {
	return func(c *Conductor) {
		if v > 0 {
			c.velocity = v
		}
	}
}

// WithBassEmphasis enables the octave-doubled bass embellishment.
func WithBassEmphasis(on bool) Option {
	return func(c *Conductor) { c.emphasizeBass = on }
}

// WithAuditor attaches a diagnostic auditor. It observes the device if
// the device supports observation; it never changes scheduling.
func WithAuditor(a *Auditor) Option {
	return func(c *Conductor) { c.auditor = a }
}

// NewConductor creates a conductor for the given device and clock.
func NewConductor(dev Device, clock Clock, opts ...Option) *Conductor {
	c := &Conductor{
		dev:        dev,
		clock:      clock,
		reg:        NewRegistry(),
		velocity:   defaultVelocity,
		UpdateChan: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.auditor != nil {
		c.auditor.Attach(dev)
	}
	return c
}

// Play cancels any prior run, then schedules the given timelines
// against a fresh epoch. Regions are taken in the given order; melody
// events are sorted by (startTick, pitch). Returns ErrNothingToPlay
// when no unit of either timeline is playable.
func (c *Conductor) Play(regions []ChordRegion, melody []MelodyNote) error {
	if !anyPlayable(regions, melody) {
		return ErrNothingToPlay
	}

	// Flush the previous run before any new note sounds.
	c.Stop()

	sorted := make([]MelodyNote, len(melody))
	copy(sorted, melody)
	SortMelody(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.runSeq++
	run := Run{ID: c.runSeq, Epoch: time.Now(), Gen: c.gen.Add(1)}
	stale := func() bool { return c.gen.Load() != run.Gen }

	lanes := []lane{
		newHarmonyLane(c.clock, c.dev, c.reg, run, regions, c.velocity, c.emphasizeBass),
		newMelodyLane(c.clock, c.dev, c.reg, run, sorted, c.velocity, stale),
	}

	c.run = run
	c.regions = regions
	c.melody = sorted
	c.playing = true
	c.stopChan = make(chan struct{})
	c.doneChan = make(chan struct{})

	if c.auditor != nil {
		c.auditor.BeginRun(run, regions, sorted, c.clock)
	}

	debug.Log("run", "run %d started: %d regions, %d melody events", run.ID, len(regions), len(sorted))
	go c.pump(run, lanes, c.stopChan, c.doneChan)
	return nil
}

func anyPlayable(regions []ChordRegion, melody []MelodyNote) bool {
	for _, r := range regions {
		if r.Playable() {
			return true
		}
	}
	for _, n := range melody {
		if n.Playable() {
			return true
		}
	}
	return false
}

// pump is the cooperative scheduler: one goroutine, absolute-deadline
// waits, earliest lane first. Relative ordering between the lanes is
// therefore decided purely by wall-clock comparison.
func (c *Conductor) pump(run Run, lanes []lane, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		var next lane
		var at time.Time
		for _, l := range lanes {
			if t, ok := l.nextDeadline(); ok && (next == nil || t.Before(at)) {
				next, at = l, t
			}
		}
		if next == nil {
			break
		}

		if wait := time.Until(at); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			// Behind schedule: advance immediately, but let a stop win.
			select {
			case <-stop:
				return
			default:
			}
		}

		next.advance(time.Now())
		c.notifyUpdate()
	}

	c.finishRun(run)
}

func (c *Conductor) finishRun(run Run) {
	c.mu.Lock()
	if c.run.Gen == run.Gen {
		c.playing = false
		c.stopChan = nil
	}
	c.mu.Unlock()
	debug.Log("run", "run %d complete", run.ID)
	c.notifyUpdate()
}

// Stop cancels the current run: it halts the pump, invalidates any
// deferred work under the old generation, and synchronously releases
// everything the registry still owns. Stopping is a normal control
// operation, not an error, and is safe to call when idle.
func (c *Conductor) Stop() {
	c.mu.Lock()
	stop, done := c.stopChan, c.doneChan
	c.stopChan = nil
	wasPlaying := c.playing
	c.playing = false
	runID := c.run.ID
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	// Invalidate deferred releases captured under the old run.
	c.gen.Add(1)

	swept := c.reg.ReleaseAll()
	for _, h := range swept {
		if err := c.dev.Release(h.ID); err != nil {
			debug.Log("run", "sweep release %s (%v %d) failed: %v", h.ID, h.Role, h.Pitch, err)
		}
	}
	if wasPlaying {
		debug.Log("run", "run %d cancelled, swept %d handles", runID, len(swept))
	}
	c.notifyUpdate()
}

// Playing reports whether a run is in progress.
func (c *Conductor) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// RunInfo returns the current run id, its epoch and whether it is
// still playing.
func (c *Conductor) RunInfo() (id uint64, epoch time.Time, playing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run.ID, c.run.Epoch, c.playing
}

// Elapsed returns the time since the current run's epoch, zero when
// nothing ever played.
func (c *Conductor) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run.Epoch.IsZero() {
		return 0
	}
	return time.Since(c.run.Epoch)
}

// Registry exposes the lifecycle registry for read-only queries.
func (c *Conductor) Registry() *Registry {
	return c.reg
}

// Report returns the auditor's report for the current run; ok is false
// when no auditor is attached.
func (c *Conductor) Report() (Report, bool) {
	if c.auditor == nil {
		return Report{}, false
	}
	return c.auditor.Report(), true
}

func (c *Conductor) notifyUpdate() {
	select {
	case c.UpdateChan <- struct{}{}:
	default:
	}
}
