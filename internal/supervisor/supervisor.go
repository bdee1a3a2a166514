// Package supervisor decides when the host looks for and connects to the bound
// sensor: immediately in the foreground, and on a wake/hold cycle in the
// background.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/pulsesync/internal/groutine"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/schedule"
	"github.com/srg/pulsesync/internal/telemetry"
	"github.com/srg/pulsesync/scanner"
)

// ErrNoPeripheral is returned when no sensor has been bound yet.
var ErrNoPeripheral = errors.New("no peripheral bound")

// State is the supervisor's view of the connection cycle.
type State int

const (
	Stopped State = iota
	Scanning
	MatchFound
	Connected
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Scanning:
		return "scanning"
	case MatchFound:
		return "match_found"
	case Connected:
		return "connected"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Finder locates the bound sensor.
type Finder interface {
	FindFirst(ctx context.Context, address string, timeout time.Duration) (scanner.Sensor, error)
}

// Session is the link the supervisor drives.
type Session interface {
	Connect(ctx context.Context, identity telemetry.PeripheralIdentity) error
	Disconnect()
	IsConnected() bool
	Done() <-chan struct{}
}

// Settings is the persisted state the supervisor reads and writes.
type Settings interface {
	Peripheral(ctx context.Context) (telemetry.PeripheralIdentity, error)
	SetPeripheral(ctx context.Context, p telemetry.PeripheralIdentity) error
	Background(ctx context.Context) (bool, error)
	SetBackground(ctx context.Context, enabled bool) error
}

// StepSaver persists the running step total.
type StepSaver interface {
	Save(ctx context.Context) error
}

// Options are the supervisor's timings.
type Options struct {
	ScanTimeout    time.Duration
	ConnectTimeout time.Duration
	WakeInterval   time.Duration
	HoldDuration   time.Duration
	RetryDelay     time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		ScanTimeout:    6 * time.Second,
		ConnectTimeout: 15 * time.Second,
		WakeInterval:   300 * time.Second,
		HoldDuration:   30 * time.Second,
		RetryDelay:     5 * time.Second,
	}
}

// Supervisor runs the reconnection policy.
type Supervisor struct {
	finder   Finder
	session  Session
	settings Settings
	steps    StepSaver
	feed     *live.Feed
	sched    schedule.Scheduler
	opts     Options
	logger   *logrus.Logger

	mu         sync.Mutex
	state      State
	foreground bool
	// gen changes on Pause, Stop and on a foreground preempting a background
	// attempt; work started under an older gen is stale.
	gen uint64
	// attempt is closed when the running scan and connect ends; nil when idle.
	attempt           chan struct{}
	attemptForeground bool
	ctx        context.Context
	cancel     context.CancelFunc
	scanCancel context.CancelFunc
	wakeTimer  schedule.Timer
	holdTimer  schedule.Timer
	retryTimer schedule.Timer
}

// New creates a stopped supervisor. A nil scheduler means real timers.
func New(finder Finder, session Session, settings Settings, steps StepSaver, feed *live.Feed,
	sched schedule.Scheduler, opts Options, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	if sched == nil {
		sched = schedule.Real()
	}
	if feed == nil {
		feed = live.NewFeed()
	}
	return &Supervisor{
		finder:   finder,
		session:  session,
		settings: settings,
		steps:    steps,
		feed:     feed,
		sched:    sched,
		opts:     opts,
		logger:   logger,
		state:    Stopped,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start enters the foreground and runs one scan and connect cycle. A background
// wake attempt still running is cancelled and waited for first.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}
	s.foreground = true
	s.cancelTimersLocked()
	var preempted chan struct{}
	if s.attempt != nil && !s.attemptForeground {
		s.gen++
		if s.scanCancel != nil {
			s.scanCancel()
			s.scanCancel = nil
		}
		preempted = s.attempt
	}
	s.mu.Unlock()

	if preempted != nil {
		s.logger.Debug("Cancelling background attempt for the foreground")
		<-preempted
	}
	return s.connectOnce(s.baseContext())
}

// Resume returns to the foreground after a Pause.
func (s *Supervisor) Resume(ctx context.Context) error {
	s.logger.Info("Resuming foreground operation")
	return s.Start(ctx)
}

// Pause drops the link and, in background mode, arms the wake cycle.
func (s *Supervisor) Pause(ctx context.Context) {
	s.mu.Lock()
	s.foreground = false
	s.gen++
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	s.cancelTimersLocked()
	s.state = Paused
	s.mu.Unlock()

	s.logger.Info("Pausing: releasing the sensor link")
	s.saveSteps(ctx)
	s.session.Disconnect()

	bg, err := s.settings.Background(ctx)
	if err != nil {
		s.logger.WithField("error", err).Warn("Failed to read background setting")
		return
	}
	if bg {
		s.armWake()
	}
}

// Stop cancels every timer and in-flight attempt and disconnects.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.foreground = false
	s.gen++
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	s.cancelTimersLocked()
	s.state = Stopped
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.saveSteps(context.Background())
	s.session.Disconnect()
}

// SetBackground persists background mode and applies it if currently paused.
// Disabling it ends a running wake window: the link is released at once.
func (s *Supervisor) SetBackground(ctx context.Context, enabled bool) error {
	if err := s.settings.SetBackground(ctx, enabled); err != nil {
		return fmt.Errorf("failed to save background setting: %w", err)
	}

	s.mu.Lock()
	backgrounded := !s.foreground && s.state != Stopped
	paused := backgrounded && s.state == Paused
	if !enabled {
		s.stopTimerLocked(&s.wakeTimer)
		s.stopTimerLocked(&s.holdTimer)
		if backgrounded {
			s.gen++
			if s.scanCancel != nil {
				s.scanCancel()
				s.scanCancel = nil
			}
			s.state = Paused
		}
	}
	s.mu.Unlock()

	switch {
	case enabled && paused:
		s.armWake()
	case !enabled && backgrounded:
		s.logger.Debug("Background mode off; releasing the sensor link")
		s.saveSteps(ctx)
		s.session.Disconnect()
	}
	return nil
}

func (s *Supervisor) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func (s *Supervisor) saveSteps(ctx context.Context) {
	if s.steps == nil {
		return
	}
	if err := s.steps.Save(ctx); err != nil {
		s.logger.WithField("error", err).Warn("Failed to persist step total")
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// stale reports whether a Pause or Stop happened since gen was taken.
func (s *Supervisor) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Supervisor) stopTimerLocked(t *schedule.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Supervisor) cancelTimersLocked() {
	s.stopTimerLocked(&s.wakeTimer)
	s.stopTimerLocked(&s.holdTimer)
	s.stopTimerLocked(&s.retryTimer)
}

// connectOnce scans for the bound sensor and connects to the first match.
// Concurrent triggers are dropped.
func (s *Supervisor) connectOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.attempt != nil {
		s.mu.Unlock()
		s.logger.Debug("Connect attempt already in flight; dropping trigger")
		return nil
	}
	done := make(chan struct{})
	s.attempt = done
	s.attemptForeground = s.foreground
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.attempt = nil
		s.mu.Unlock()
		close(done)
	}()

	if s.session.IsConnected() {
		s.setState(Connected)
		return nil
	}

	identity, err := s.settings.Peripheral(ctx)
	if err != nil {
		s.setState(Stopped)
		return fmt.Errorf("failed to read bound peripheral: %w", err)
	}
	if identity.IsZero() {
		s.setState(Stopped)
		s.logger.Info("No peripheral bound; run 'pulsesync bind' first")
		return ErrNoPeripheral
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	gen := s.gen
	s.scanCancel = cancel
	s.state = Scanning
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.gen == gen {
			s.scanCancel = nil
		}
		s.mu.Unlock()
	}()

	fields := logrus.Fields{"peripheral": identity.ID, "timeout": s.opts.ScanTimeout}
	s.logger.WithFields(fields).Info("Scanning for bound peripheral...")

	sensor, err := s.finder.FindFirst(attemptCtx, identity.ID, s.opts.ScanTimeout)
	if s.stale(gen) {
		s.logger.Debug("Scan result discarded after pause")
		return nil
	}
	if err != nil {
		s.setState(Stopped)
		if errors.Is(err, scanner.ErrNotFound) {
			s.logger.WithFields(fields).Info("Bound peripheral not found")
		} else {
			s.logger.WithFields(fields).WithField("error", err).Warn("Scan failed")
		}
		return err
	}

	s.setState(MatchFound)
	if identity.Name == "" {
		identity.Name = sensor.Name
	}

	connCtx, connCancel := context.WithTimeout(attemptCtx, s.opts.ConnectTimeout)
	defer connCancel()
	if err := s.session.Connect(connCtx, identity); err != nil {
		if !s.stale(gen) {
			s.setState(Stopped)
		}
		s.logger.WithFields(logrus.Fields{"peripheral": identity.ID, "error": err}).Warn("Connect failed")
		return err
	}
	if s.stale(gen) {
		s.logger.Debug("Connected after pause; releasing link")
		s.session.Disconnect()
		return nil
	}

	if err := s.settings.SetPeripheral(ctx, identity); err != nil {
		s.logger.WithField("error", err).Warn("Failed to persist peripheral identity")
	}
	s.setState(Connected)
	s.feed.Notify("Connected to %s", identity.DisplayName())

	s.watch(s.session.Done(), gen)
	return nil
}

// watch reacts to link loss: retry in the foreground, fall back to Paused otherwise.
func (s *Supervisor) watch(done <-chan struct{}, gen uint64) {
	ctx := s.baseContext()
	groutine.Go(ctx, "supervisor-link-watch", func(ctx context.Context) {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return
		}
		if !s.foreground {
			s.state = Paused
			return
		}
		s.state = Stopped
		s.logger.WithField("retry_in", s.opts.RetryDelay).Warn("Link lost; scanning again shortly")
		s.armRetryLocked(gen)
	})
}

// armRetryLocked schedules a foreground reconnect. Caller holds mu.
func (s *Supervisor) armRetryLocked(gen uint64) {
	s.stopTimerLocked(&s.retryTimer)
	s.retryTimer = s.sched.AfterFunc(s.opts.RetryDelay, func() {
		s.mu.Lock()
		if s.gen != gen || !s.foreground {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		s.mu.Unlock()

		err := s.connectOnce(s.baseContext())
		if err == nil || errors.Is(err, ErrNoPeripheral) {
			return
		}
		// Keep trying while in the foreground.
		s.mu.Lock()
		if s.gen == gen && s.foreground {
			s.armRetryLocked(gen)
		}
		s.mu.Unlock()
	})
}

// armWake schedules the next background wake.
func (s *Supervisor) armWake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked(&s.wakeTimer)
	gen := s.gen
	s.wakeTimer = s.sched.AfterFunc(s.opts.WakeInterval, func() { s.onWake(gen) })
	s.logger.WithField("in", s.opts.WakeInterval).Debug("Background wake armed")
}

func (s *Supervisor) onWake(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.foreground {
		s.mu.Unlock()
		return
	}
	s.wakeTimer = nil
	s.mu.Unlock()

	s.armWake()

	if s.session.IsConnected() {
		return
	}

	s.logger.Debug("Background wake: looking for the sensor")
	if err := s.connectOnce(s.baseContext()); err != nil || !s.session.IsConnected() {
		s.mu.Lock()
		if s.gen == gen && !s.foreground {
			s.state = Paused
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.foreground {
		return
	}
	s.stopTimerLocked(&s.holdTimer)
	s.holdTimer = s.sched.AfterFunc(s.opts.HoldDuration, func() { s.onHold(gen) })
}

// onHold ends a background connection window.
func (s *Supervisor) onHold(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.foreground {
		s.mu.Unlock()
		return
	}
	s.holdTimer = nil
	s.state = Paused
	s.mu.Unlock()

	s.logger.Debug("Background hold elapsed; releasing the sensor link")
	s.saveSteps(context.Background())
	s.session.Disconnect()
}
