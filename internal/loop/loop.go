// Package loop runs the agent's cognitive cycle.
//
// A cycle is a fixed sequence of phases (perceive, plan, act,
// reflect). The Loop drives the sequence on a timer in a background
// goroutine and survives phase panics and errors; a failing phase is
// logged and skipped, never fatal to the loop.
package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCycleInterval = 1000 * time.Millisecond
	defaultPollInterval  = 100 * time.Millisecond
	errorBackoff         = 100 * time.Millisecond
)

// Phase is one step of the cognitive cycle.
type Phase func(ctx context.Context) error

// Phases holds the cycle steps in execution order. Nil phases are
// skipped.
type Phases struct {
	Perceive Phase
	Plan     Phase
	Act      Phase
	Reflect  Phase
}

type phaseToggles struct {
	perceive bool
	plan     bool
	act      bool
	reflect  bool
}

// Loop drives the cognitive cycle. All methods are safe for
// concurrent use.
type Loop struct {
	mu      sync.Mutex
	log     *zap.Logger
	phases  Phases
	toggles phaseToggles

	interval     time.Duration
	pollInterval time.Duration
	running      bool
	paused       bool
	stopCh       chan struct{}
	doneCh       chan struct{}

	cycles   uint64
	lastTook time.Duration
}

// New creates a stopped Loop with all phases enabled and the default
// cycle interval.
func New(log *zap.Logger, phases Phases) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		log:          log.Named("loop"),
		phases:       phases,
		toggles:      phaseToggles{perceive: true, plan: true, act: true, reflect: true},
		interval:     defaultCycleInterval,
		pollInterval: defaultPollInterval,
	}
}

// ConfigurePhases enables or disables individual phases. Takes effect
// on the next cycle.
func (l *Loop) ConfigurePhases(perceive, plan, act, reflect bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.toggles = phaseToggles{perceive: perceive, plan: plan, act: act, reflect: reflect}
}

// SetCycleInterval changes the delay between cycles. Non-positive
// values restore the default.
func (l *Loop) SetCycleInterval(d time.Duration) {
	if d <= 0 {
		d = defaultCycleInterval
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interval = d
}

// SetPollInterval changes how often a paused worker rechecks for
// resume or stop. Non-positive values restore the default.
func (l *Loop) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = defaultPollInterval
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pollInterval = d
}

// Start launches the background cycle worker. Starting a running loop
// is a no-op.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.log.Debug("loop already running")
		return nil
	}
	l.running = true
	l.paused = false
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	go l.run(ctx, l.stopCh, l.doneCh)
	l.log.Info("cognitive loop started")
	return nil
}

// Stop signals the worker and waits for the in-flight cycle to
// finish. Only the first caller closes the stop channel; concurrent
// and repeated Stops just wait for the worker to drain.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		doneCh := l.doneCh
		l.mu.Unlock()
		if doneCh != nil {
			<-doneCh
		}
		return
	}
	l.running = false
	l.paused = false
	stopCh, doneCh := l.stopCh, l.doneCh
	l.mu.Unlock()

	close(stopCh)
	<-doneCh
	l.log.Info("cognitive loop stopped")
}

// Pause holds the worker between cycles. The in-flight cycle runs to
// completion. Returns false when the loop is not running.
func (l *Loop) Pause() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		l.log.Warn("pause requested but loop is not running")
		return false
	}
	l.paused = true
	return true
}

// Resume releases a paused worker. Returns false when not paused.
func (l *Loop) Resume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		l.log.Warn("resume requested but loop is not paused")
		return false
	}
	l.paused = false
	return true
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if l.isPaused() {
			if !l.sleep(ctx, stopCh, l.currentPollInterval()) {
				return
			}
			continue
		}

		wait := l.cycleInterval()
		if !l.RunCycle(ctx) {
			wait = errorBackoff
		}
		if !l.sleep(ctx, stopCh, wait) {
			return
		}
	}
}

// sleep waits for d unless stopped first. Returns false on stop.
func (l *Loop) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// RunCycle executes one full cycle synchronously. Phase failures and
// panics are logged and folded into the return value without aborting
// the remaining phases. Every cycle bumps the counter.
func (l *Loop) RunCycle(ctx context.Context) bool {
	start := time.Now()
	phases, toggles := l.snapshot()

	ok := true
	steps := []struct {
		name    string
		enabled bool
		fn      Phase
	}{
		{"perceive", toggles.perceive, phases.Perceive},
		{"plan", toggles.plan, phases.Plan},
		{"act", toggles.act, phases.Act},
		{"reflect", toggles.reflect, phases.Reflect},
	}
	for _, s := range steps {
		if !s.enabled || s.fn == nil {
			continue
		}
		if err := runPhase(ctx, s.name, s.fn); err != nil {
			l.log.Warn("phase failed", zap.String("phase", s.name), zap.Error(err))
			ok = false
		}
	}

	l.mu.Lock()
	l.cycles++
	l.lastTook = time.Since(start)
	l.mu.Unlock()
	return ok
}

// runPhase converts a phase panic into an error so one bad phase
// cannot kill the worker.
func runPhase(ctx context.Context, name string, fn Phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", name, r)
		}
	}()
	return fn(ctx)
}

func (l *Loop) snapshot() (Phases, phaseToggles) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phases, l.toggles
}

func (l *Loop) cycleInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func (l *Loop) currentPollInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pollInterval
}

func (l *Loop) isPaused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Running reports whether the worker goroutine is live.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Paused reports whether the worker is holding between cycles.
func (l *Loop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// CycleCount returns the number of cycles run so far.
func (l *Loop) CycleCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

// LastCycleDuration returns how long the most recent cycle took.
func (l *Loop) LastCycleDuration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTook
}

// Status reports loop state for the agent status surface.
func (l *Loop) Status() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"running":                l.running,
		"paused":                 l.paused,
		"cycle_count":            l.cycles,
		"cycle_interval_ms":      l.interval.Milliseconds(),
		"poll_interval_ms":       l.pollInterval.Milliseconds(),
		"last_cycle_duration_ms": l.lastTook.Milliseconds(),
		"phase_perceive":         l.toggles.perceive,
		"phase_plan":             l.toggles.plan,
		"phase_act":              l.toggles.act,
		"phase_reflect":          l.toggles.reflect,
	}
}
