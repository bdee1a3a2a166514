// Package app wires the daemon together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/pulsesync/internal/buffer"
	"github.com/srg/pulsesync/internal/credential"
	"github.com/srg/pulsesync/internal/device"
	"github.com/srg/pulsesync/internal/devicefactory"
	"github.com/srg/pulsesync/internal/groutine"
	"github.com/srg/pulsesync/internal/live"
	"github.com/srg/pulsesync/internal/schedule"
	"github.com/srg/pulsesync/internal/session"
	"github.com/srg/pulsesync/internal/settings"
	"github.com/srg/pulsesync/internal/store"
	"github.com/srg/pulsesync/internal/supervisor"
	"github.com/srg/pulsesync/internal/syncer"
	"github.com/srg/pulsesync/internal/transport"
	"github.com/srg/pulsesync/pkg/config"
	"github.com/srg/pulsesync/scanner"
)

// MemoryDB selects the in-process store instead of a SQLite file.
const MemoryDB = ":memory:"

var ErrNotRunning = errors.New("daemon is not running")

// Store is the full durable store contract.
type Store interface {
	buffer.Store
	settings.KV
	Close() error
}

// Option customizes an App.
type Option func(*App)

// WithScheduler replaces the real timers, e.g. with a schedule.Manual in tests.
func WithScheduler(s schedule.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// WithStore uses an already opened store.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// App holds every long-lived component. The radio-side parts are created by Run.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	sched  schedule.Scheduler
	store  Store

	Settings    *settings.Settings
	Buffer      *buffer.Buffer
	Feed        *live.Feed
	Trace       *live.Trace
	Steps       *session.StepCounter
	Transport   *transport.Client
	Credentials *credential.Stored
	Syncer      *syncer.Syncer

	mu         sync.Mutex
	radio      device.Radio
	session    *session.Session
	supervisor *supervisor.Supervisor
	closeOnce  sync.Once
}

// New opens the store and builds everything that does not need the radio.
// A store that cannot be opened is the only fatal startup error.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.sched == nil {
		a.sched = schedule.Real()
	}

	if a.store == nil {
		s, err := openStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = s
	}

	a.Settings = settings.New(a.store)
	a.Buffer = buffer.New(a.store, logger)
	a.Feed = live.NewFeed()
	a.Trace = live.NewTrace(cfg.TraceSamples, logger)
	a.Steps = session.NewStepCounter(a.Settings, logger)
	if err := a.Steps.Load(ctx); err != nil {
		logger.WithField("error", err).Warn("Failed to load step total; starting from 0")
	}
	a.Transport = transport.New(cfg.ServerURL, cfg.HTTPTimeout, logger)
	a.Credentials = credential.NewStored(a.Settings, cfg.Token)
	a.Syncer = syncer.New(a.Buffer, a.Transport, a.Credentials, a.Feed, a.sched, cfg.SyncInterval, logger)

	return a, nil
}

func openStore(path string) (Store, error) {
	if path == MemoryDB {
		return store.NewMemory(), nil
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Radio opens the host adapter on first use.
func (a *App) Radio() (device.Radio, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.radio != nil {
		return a.radio, nil
	}
	radio, err := devicefactory.DeviceFactory(a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open radio: %w", err)
	}
	a.radio = radio
	return radio, nil
}

// Scanner returns a scanner over the host radio.
func (a *App) Scanner() (*scanner.Scanner, error) {
	radio, err := a.Radio()
	if err != nil {
		return nil, err
	}
	return scanner.NewScanner(radio, a.logger), nil
}

func (a *App) supervisorOptions() supervisor.Options {
	return supervisor.Options{
		ScanTimeout:    a.cfg.ScanTimeout,
		ConnectTimeout: a.cfg.ConnectTimeout,
		WakeInterval:   a.cfg.WakeInterval,
		HoldDuration:   a.cfg.HoldDuration,
		RetryDelay:     a.cfg.RetryDelay,
	}
}

// Run starts the supervisor, the sync loop and the optional live server, then
// blocks until ctx ends and shuts everything down.
func (a *App) Run(ctx context.Context) error {
	radio, err := a.Radio()
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.session = session.New(radio, a.Buffer, a.Feed, a.Steps, a.logger)
	a.supervisor = supervisor.New(scanner.NewScanner(radio, a.logger), a.session, a.Settings, a.Steps,
		a.Feed, a.sched, a.supervisorOptions(), a.logger)
	sup := a.supervisor
	a.mu.Unlock()

	var workers groutine.Group
	workers.Go(ctx, "trace-follow", func(ctx context.Context) {
		a.Trace.Follow(ctx, a.Feed.Waveform)
	})
	if a.cfg.LiveAddr != "" {
		srv := live.NewServer(a.Feed, a.Trace, a.logger)
		workers.Go(ctx, "live-server", func(ctx context.Context) {
			if err := srv.ListenAndServe(ctx, a.cfg.LiveAddr); err != nil {
				a.logger.WithField("error", err).Error("Live display server stopped")
			}
		})
	}

	a.Syncer.Start(ctx)

	if err := sup.Start(ctx); err != nil {
		if errors.Is(err, supervisor.ErrNoPeripheral) {
			a.logger.Warn("No sensor bound; run 'pulsesync bind <address>' first")
		} else {
			a.logger.WithField("error", err).Warn("Initial connect failed")
		}
	}

	<-ctx.Done()
	a.logger.Info("Shutting down")
	a.shutdown()
	workers.Wait()
	return a.Close()
}

func (a *App) shutdown() {
	a.Syncer.Stop()

	a.mu.Lock()
	sup := a.supervisor
	a.mu.Unlock()
	if sup != nil {
		sup.Stop()
	}
}

func (a *App) runningSupervisor() (*supervisor.Supervisor, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.supervisor == nil {
		return nil, ErrNotRunning
	}
	return a.supervisor, nil
}

// Pause moves the daemon to the background policy.
func (a *App) Pause(ctx context.Context) error {
	sup, err := a.runningSupervisor()
	if err != nil {
		return err
	}
	sup.Pause(ctx)
	return nil
}

// Resume returns the daemon to the foreground and reconnects.
func (a *App) Resume(ctx context.Context) error {
	sup, err := a.runningSupervisor()
	if err != nil {
		return err
	}
	return sup.Resume(ctx)
}

// SetBackground persists background mode, applying it to a running daemon.
func (a *App) SetBackground(ctx context.Context, enabled bool) error {
	if sup, err := a.runningSupervisor(); err == nil {
		return sup.SetBackground(ctx, enabled)
	}
	return a.Settings.SetBackground(ctx, enabled)
}

// State reports the supervisor state, Stopped when not running.
func (a *App) State() supervisor.State {
	sup, err := a.runningSupervisor()
	if err != nil {
		return supervisor.Stopped
	}
	return sup.State()
}

// Session returns the link session, nil before Run.
func (a *App) Session() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Flush runs one upload now.
func (a *App) Flush(ctx context.Context) (int, error) {
	return a.Syncer.Flush(ctx)
}

// Close releases the radio and the store. The step total is persisted by the
// supervisor when Run shuts down.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		radio := a.radio
		a.mu.Unlock()
		if stopper, ok := radio.(interface{ Stop() error }); ok {
			if serr := stopper.Stop(); serr != nil {
				a.logger.WithField("error", serr).Debug("Failed to stop radio")
			}
		}
		err = a.store.Close()
	})
	return err
}
