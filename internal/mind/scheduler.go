package mind

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/keshon/server-miyabi/pkg/jobmgr"
)

// moodSaveTimeout bounds one fire-and-forget mood history write.
const moodSaveTimeout = 10 * time.Second

// Clock abstracts wall time and timers so tests can drive the scheduler.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Rand is the randomness source for intervals and next-mood picks. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Int63n(n int64) int64
}

// MoodRecorder persists mood history. Called off the transition path.
type MoodRecorder interface {
	SaveMoodChange(ctx context.Context, moodName string, durationHeldMs int64) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SchedulerConfig holds the startup mood and the automatic change window.
type SchedulerConfig struct {
	DefaultMood string
	MinInterval time.Duration
	MaxInterval time.Duration
}

// SchedulerOption customizes a MoodScheduler.
type SchedulerOption func(*MoodScheduler)

func WithClock(c Clock) SchedulerOption { return func(s *MoodScheduler) { s.clock = c } }

func WithRand(r Rand) SchedulerOption { return func(s *MoodScheduler) { s.rnd = r } }

func WithRecorder(r MoodRecorder) SchedulerOption { return func(s *MoodScheduler) { s.recorder = r } }

// WithJobs sets the job manager used for history writes. Default: a private manager logging to [JOB].
func WithJobs(m *jobmgr.Manager) SchedulerOption { return func(s *MoodScheduler) { s.jobs = m } }

// WithOnChange registers a callback invoked after each effective transition, outside the lock.
func WithOnChange(f func(MoodTransitionEvent)) SchedulerOption {
	return func(s *MoodScheduler) { s.onChange = f }
}

// MoodScheduler owns the single authoritative mood and the automatic change timer.
// Reads are safe from any goroutine; only the scheduler mutates the state.
type MoodScheduler struct {
	catalog  *Catalog
	cfg      SchedulerConfig
	clock    Clock
	rnd      Rand
	recorder MoodRecorder
	jobs     *jobmgr.Manager
	onChange func(MoodTransitionEvent)

	mu      sync.RWMutex
	state   MoodState
	timer   Timer
	gen     uint64 // bumped whenever the pending timer is replaced; stale fires compare against it
	nextAt  time.Time
	started bool
	stopped bool

	// history writes, in transition order; one drain job at a time
	saveMu    sync.Mutex
	saveQueue []moodSave
	saving    bool
}

type moodSave struct {
	name   string
	heldMs int64
}

// NewMoodScheduler validates cfg against the catalog and activates the default mood.
// The automatic timer is not armed until Start.
func NewMoodScheduler(catalog *Catalog, cfg SchedulerConfig, opts ...SchedulerOption) (*MoodScheduler, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, fmt.Errorf("mood scheduler: empty catalog")
	}
	if cfg.MinInterval <= 0 || cfg.MaxInterval <= 0 {
		return nil, fmt.Errorf("mood scheduler: intervals must be positive (min=%s max=%s)", cfg.MinInterval, cfg.MaxInterval)
	}
	if cfg.MinInterval > cfg.MaxInterval {
		return nil, fmt.Errorf("mood scheduler: min interval %s exceeds max %s", cfg.MinInterval, cfg.MaxInterval)
	}
	def, ok := catalog.Lookup(cfg.DefaultMood)
	if !ok {
		return nil, fmt.Errorf("mood scheduler: default mood: %w", &UnknownMoodError{Name: cfg.DefaultMood})
	}

	s := &MoodScheduler{
		catalog: catalog,
		cfg:     cfg,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(s.clock.Now().UnixNano()))
	}
	if s.jobs == nil {
		s.jobs = jobmgr.NewManager(nil)
	}
	s.state = MoodState{Current: def, ActivatedAt: s.clock.Now()}
	return s, nil
}

// Catalog returns the catalog the scheduler selects from.
func (s *MoodScheduler) Catalog() *Catalog { return s.catalog }

// CurrentMood returns the active mood. No side effects.
func (s *MoodScheduler) CurrentMood() Mood {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Current
}

// State returns mood and activation time as one consistent snapshot.
func (s *MoodScheduler) State() MoodState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NextChangeAt returns when the pending automatic change fires, zero if none is armed.
func (s *MoodScheduler) NextChangeAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.timer == nil {
		return time.Time{}
	}
	return s.nextAt
}

// Start arms the first automatic change. Calling it again is a no-op.
func (s *MoodScheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	d := s.scheduleLocked()
	mood := s.state.Current.Name
	s.mu.Unlock()
	log.Printf("[MIND] action=scheduler_start mood=%s next_in=%s", mood, d)
}

// Stop cancels the pending automatic change and waits for queued history writes.
func (s *MoodScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.jobs.Wait()
}

// RequestTransition switches to the named mood. Unknown names fail with *UnknownMoodError
// and leave the state untouched. Asking for the active mood does nothing: no event, no timer reset.
func (s *MoodScheduler) RequestTransition(name string) error {
	target, ok := s.catalog.Lookup(name)
	if !ok {
		return &UnknownMoodError{Name: name}
	}
	s.mu.Lock()
	ev, changed := s.applyLocked(target, false)
	s.mu.Unlock()
	if changed {
		s.emit(ev)
	}
	return nil
}

// applyLocked performs the in-memory transition and re-arms the timer. Caller holds mu.
func (s *MoodScheduler) applyLocked(target Mood, automatic bool) (MoodTransitionEvent, bool) {
	if target.Name == s.state.Current.Name {
		return MoodTransitionEvent{}, false
	}
	now := s.clock.Now()
	held := now.Sub(s.state.ActivatedAt)
	if held < 0 {
		held = 0
	}
	ev := MoodTransitionEvent{
		Previous:     s.state.Current,
		Next:         target,
		DurationHeld: held,
		At:           now,
		Automatic:    automatic,
	}
	s.state = MoodState{Current: target, ActivatedAt: now}
	if s.recorder != nil {
		s.saveMu.Lock()
		s.saveQueue = append(s.saveQueue, moodSave{name: target.Name, heldMs: held.Milliseconds()})
		s.saveMu.Unlock()
	}
	if s.started && !s.stopped {
		s.scheduleLocked()
	}
	return ev, true
}

// scheduleLocked replaces the pending timer so at most one automatic change is armed.
func (s *MoodScheduler) scheduleLocked() time.Duration {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	d := s.nextInterval()
	s.nextAt = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, func() { s.fire(gen) })
	return d
}

func (s *MoodScheduler) nextInterval() time.Duration {
	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.rnd.Int63n(int64(span)+1))
}

// fire runs on the timer goroutine. A fire from a replaced timer is dropped.
func (s *MoodScheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	next, ok := s.catalog.pickOther(s.state.Current.Name, s.rnd)
	if !ok {
		// single-mood catalog: nothing to change to, keep ticking
		s.scheduleLocked()
		s.mu.Unlock()
		return
	}
	ev, changed := s.applyLocked(next, true)
	s.mu.Unlock()
	if changed {
		s.emit(ev)
	}
}

// emit logs the event, notifies the observer and queues the history write.
// The transition is already complete; the write result never flows back.
func (s *MoodScheduler) emit(ev MoodTransitionEvent) {
	log.Printf("[MIND] action=mood_change from=%s to=%s held=%s auto=%t",
		ev.Previous.Name, ev.Next.Name, ev.DurationHeld.Round(time.Second), ev.Automatic)

	if s.onChange != nil {
		s.onChange(ev)
	}
	if s.recorder == nil {
		return
	}
	s.saveMu.Lock()
	start := !s.saving && len(s.saveQueue) > 0
	if start {
		s.saving = true
	}
	s.saveMu.Unlock()
	if start {
		s.jobs.Go("mood-save", s.drainSaves)
	}
}

// drainSaves writes queued history entries one by one until the queue is empty.
func (s *MoodScheduler) drainSaves(ctx context.Context) error {
	var errs []error
	for {
		s.saveMu.Lock()
		if len(s.saveQueue) == 0 {
			s.saving = false
			s.saveMu.Unlock()
			return errors.Join(errs...)
		}
		next := s.saveQueue[0]
		s.saveQueue = s.saveQueue[1:]
		s.saveMu.Unlock()

		saveCtx, cancel := context.WithTimeout(ctx, moodSaveTimeout)
		if err := s.recorder.SaveMoodChange(saveCtx, next.name, next.heldMs); err != nil {
			errs = append(errs, fmt.Errorf("save mood change %s: %w", next.name, err))
		}
		cancel()
	}
}
