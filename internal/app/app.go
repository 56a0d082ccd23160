// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the daemon lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tejashwikalptaru/adzantune/internal/adapter/audio/beepaudio"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/clock"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/credentials"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/library"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/notify"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/remote/spotifyconnect"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/repository/memory"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/repository/redisstore"
	"github.com/tejashwikalptaru/adzantune/internal/adapter/schedule/myquran"
	"github.com/tejashwikalptaru/adzantune/internal/config"
	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/logger"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
	"github.com/tejashwikalptaru/adzantune/internal/service"
	"github.com/tejashwikalptaru/adzantune/internal/telemetry"
)

// AppName is used for desktop notification titles and log lines.
const AppName = "AdzanTune"

// Options overrides infrastructure for tests and the --mock-audio flag.
// Zero values select the production adapters.
type Options struct {
	// UseMockAudio selects the in-memory audio engine
	UseMockAudio bool

	Logger    *slog.Logger
	Clock     ports.Clock
	Registry  *prometheus.Registry
	Schedules ports.ScheduleProvider

	// Remote replaces the Spotify session. It is used even when
	// remote.enabled is false.
	Remote ports.RemoteSession

	// Redis replaces the client built from storage.redis_addr.
	Redis redis.UniversalClient
}

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
//
// The Application struct is responsible for:
// - Creating and wiring all dependencies
// - Managing the daemon lifecycle (start, shutdown)
// - Providing the components the console drives
type Application struct {
	// Core dependencies
	cfg      *config.Config
	logger   *slog.Logger
	clock    ports.Clock
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	// Infrastructure
	eventBus    *eventbus.SyncEventBus
	audioEngine ports.AudioEngine
	redis       redis.UniversalClient
	ownsRedis   bool
	remote      ports.RemoteSession
	schedules   ports.ScheduleProvider
	notifier    ports.Notifier
	resolver    *library.Resolver

	// Repositories
	ledger     ports.PlayedLedger
	memoryRepo ports.PlaybackMemoryRepository
	tokens     ports.TokenStore

	// Services
	queue      *service.QueueEngine
	local      *service.LocalPlayer
	announcer  *service.ClipPlayer
	ads        *service.ClipPlayer
	memory     *service.MemoryService
	arbitrator *service.Arbitrator
	scheduler  *service.Scheduler
	poller     *service.RemotePoller

	cancel       context.CancelFunc
	background   sync.WaitGroup
	started      bool
	shutdownOnce sync.Once
	mu           sync.Mutex
}

// NewApplication creates a new application with all dependencies wired.
// This is the main dependency injection function.
func NewApplication(cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	app := &Application{cfg: cfg}

	// Step 1: Create logger
	app.logger = opts.Logger
	if app.logger == nil {
		app.logger = logger.NewLogger(logger.Config{
			Level:  logger.ParseLevel(cfg.Log.Level, slog.LevelInfo),
			Format: cfg.Log.Format,
		})
	}
	app.logger.Info("initializing application",
		GetVersionInfo().LogAttr(),
		slog.String("environment", cfg.Environment))

	// Step 2: Clock and metrics
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	app.clock = opts.Clock
	if app.clock == nil {
		app.clock = clock.NewSystem(loc)
	}
	app.registry = opts.Registry
	if app.registry == nil {
		app.registry = prometheus.NewRegistry()
	}
	app.metrics = telemetry.NewMetrics(app.registry)

	// Step 3: Create an event bus
	app.eventBus = eventbus.NewSyncEventBus()
	app.eventBus.SetLogger(app.logger.With(slog.String("component", "eventbus")))

	// Step 4: Create repositories
	if err := app.initStorage(opts); err != nil {
		return nil, err
	}

	// Step 5: Create an audio engine
	if err := app.initAudio(opts.UseMockAudio); err != nil {
		app.closeStorage()
		return nil, err
	}

	// Step 6: Collaborators
	app.notifier = app.buildNotifier()
	app.schedules = opts.Schedules
	if app.schedules == nil {
		app.schedules = myquran.NewClient(
			app.logger.With(slog.String("component", "myquran")),
			cfg.Schedule.APIBaseURL,
			nil,
		)
	}
	app.remote = opts.Remote
	if app.remote == nil && cfg.Remote.Enabled {
		app.remote = app.buildRemote()
	}

	// Step 7: Create services (with dependency injection)
	app.initServices(loc)

	return app, nil
}

// initStorage selects the memory or redis repositories.
func (a *Application) initStorage(opts Options) error {
	switch {
	case opts.Redis != nil:
		a.redis = opts.Redis
	case a.cfg.Storage.Backend == config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Storage.RedisAddr,
			Password: a.cfg.Storage.RedisPassword,
			DB:       a.cfg.Storage.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Storage.RedisAddr, err)
		}
		a.redis = client
		a.ownsRedis = true
	default:
		a.ledger = memory.NewPlayedLedger()
		a.memoryRepo = memory.NewPlaybackMemoryRepository()
		// The credentials provider seeds from remote.refresh_token
		a.tokens = memory.NewTokenStore(nil)
		a.logger.Info("using in-memory storage")
		return nil
	}

	a.ledger = redisstore.NewPlayedLedger(a.redis)
	a.memoryRepo = redisstore.NewPlaybackMemoryRepository(a.redis)
	a.tokens = redisstore.NewTokenStore(a.redis)
	a.logger.Info("using redis storage", slog.String("addr", a.cfg.Storage.RedisAddr))
	return nil
}

func (a *Application) initAudio(useMock bool) error {
	buffer := time.Duration(a.cfg.Audio.BufferMs) * time.Millisecond

	if useMock {
		engine := mock.NewEngine()
		engine.SetLogger(a.logger.With(slog.String("engine", "mock")))
		if err := engine.Initialize(a.cfg.Audio.SampleRate, buffer); err != nil {
			return fmt.Errorf("failed to initialize audio engine: %w", err)
		}
		a.audioEngine = engine
		return nil
	}

	engine := beepaudio.NewEngine()
	engine.SetLogger(a.logger.With(slog.String("engine", "beep")))
	if err := engine.Initialize(a.cfg.Audio.SampleRate, buffer); err != nil {
		return fmt.Errorf("failed to initialize audio engine: %w", err)
	}
	a.audioEngine = engine
	return nil
}

func (a *Application) buildNotifier() ports.Notifier {
	sinks := notify.Multi{notify.NewLogNotifier(a.logger.With(slog.String("component", "notify")), a.eventBus)}
	if a.cfg.Notify.Desktop {
		sinks = append(sinks, notify.NewDesktopNotifier(a.logger.With(slog.String("component", "desktop")), AppName))
	}
	return sinks
}

func (a *Application) buildRemote() ports.RemoteSession {
	creds := credentials.NewProvider(
		a.logger.With(slog.String("component", "credentials")),
		a.tokens,
		credentials.Config{
			ClientID:     a.cfg.Remote.ClientID,
			ClientSecret: a.cfg.Remote.ClientSecret,
			TokenURL:     a.cfg.Remote.TokenURL,
			RefreshToken: a.cfg.Remote.RefreshToken,
			Development:  a.cfg.IsDevelopment(),
		},
	)
	return spotifyconnect.NewSession(
		a.logger.With(slog.String("component", "spotify")),
		creds,
		spotifyconnect.Config{
			DeviceID:   a.cfg.Remote.DeviceID,
			DeviceName: a.cfg.Remote.DeviceName,
			BaseURL:    a.cfg.Remote.APIBaseURL,
		},
	)
}

func (a *Application) initServices(loc *time.Location) {
	cfg := a.cfg
	resolver := library.NewResolver(cfg.Library.MusicDir, cfg.Library.AdsDir)
	a.resolver = resolver

	a.queue = service.NewQueueEngine(a.eventBus, nil)

	a.local = service.NewLocalPlayer(
		a.logger.With(slog.String("service", "local")),
		a.audioEngine,
		resolver,
		a.eventBus,
		a.clock,
		cfg.Audio.LocalVolume,
	)
	a.announcer = service.NewClipPlayer(a.logger.With(slog.String("service", "announcer")), a.audioEngine, a.clock)
	a.ads = service.NewClipPlayer(a.logger.With(slog.String("service", "ads")), a.audioEngine, a.clock)

	a.memory = service.NewMemoryService(
		context.Background(),
		a.logger.With(slog.String("service", "memory")),
		a.memoryRepo,
		a.eventBus,
		a.clock,
	)

	a.arbitrator = service.NewArbitrator(service.ArbitratorDeps{
		Logger:    a.logger.With(slog.String("service", "arbitrator")),
		Bus:       a.eventBus,
		Clock:     a.clock,
		Queue:     a.queue,
		Local:     a.local,
		Remote:    a.remote,
		Announcer: a.announcer,
		Ads:       a.ads,
		Resolver:  resolver,
		Notifier:  a.notifier,
		Memory:    a.memory,
		Metrics:   a.metrics,
	}, service.ArbitratorConfig{
		AnnouncementPath:   cfg.Announcement.AudioPath,
		AnnouncementVolume: cfg.Announcement.Volume,
		AdVolume:           cfg.Ads.Volume,
		IqomahDelay:        cfg.Announcement.IqomahDelay,
		ResumeOnDismiss:    cfg.Interruption.ResumeOnDismiss,
	})

	a.scheduler = service.NewScheduler(
		a.logger.With(slog.String("service", "scheduler")),
		a.clock,
		a.schedules,
		a.ledger,
		a.arbitrator,
		a.metrics,
		service.SchedulerConfig{
			LocationID:   cfg.Schedule.LocationID,
			Tolerance:    cfg.Announcement.Tolerance,
			PollInterval: cfg.Announcement.PollInterval,
			Enabled:      cfg.Announcement.Enabled && cfg.Schedule.LocationID != "",
			Location:     loc,
		},
	)

	if a.remote != nil {
		a.poller = service.NewRemotePoller(
			a.logger.With(slog.String("service", "remote-poller")),
			a.clock,
			a.remote,
			a.arbitrator,
			cfg.Remote.PollInterval,
		)
	}
}

// Start restores the remembered modes and starts the background routines:
// the scheduler, the remote poller and the metrics listener.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return domain.NewServiceError("Application", "Start", "already started", nil)
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.arbitrator.Restore()

	if a.remote != nil {
		if _, err := a.arbitrator.ConnectRemote(runCtx); err != nil {
			// Non-fatal - playback stays local until the remote is reachable
			a.logger.Warn("remote session not connected", slog.Any("error", err))
		}
		a.poller.Start(runCtx)
	}

	if a.cfg.Announcement.Enabled && a.cfg.Schedule.LocationID == "" {
		a.logger.Warn("announcements disabled: schedule.location_id is not set")
	}
	a.scheduler.Start(runCtx)

	if addr := a.cfg.Metrics.Listen; addr != "" {
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			if err := telemetry.Serve(runCtx, a.logger.With(slog.String("component", "metrics")), addr, a.registry); err != nil {
				a.logger.Error("metrics listener failed", slog.Any("error", err))
			}
		}()
	}

	a.logger.Info("AdzanTune started")
	return nil
}

// Shutdown gracefully shuts down the application.
// It is safe to call more than once.
func (a *Application) Shutdown() error {
	var errs []error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down application")

		a.mu.Lock()
		cancel := a.cancel
		a.mu.Unlock()

		// Stop producers of new work first (in reverse order of creation)
		if a.poller != nil {
			a.poller.Stop()
		}
		a.scheduler.Stop()
		if cancel != nil {
			cancel()
		}
		a.background.Wait()

		a.arbitrator.Shutdown()
		a.ads.Shutdown()
		a.announcer.Shutdown()
		if err := a.local.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("local player: %w", err))
		}
		a.memory.Close()

		// Shutdown audio engine
		if a.audioEngine != nil {
			if err := a.audioEngine.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("audio engine: %w", err))
			}
		}

		a.closeStorage()

		if err := a.eventBus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event bus: %w", err))
		}

		a.logger.Info("application shutdown complete")
	})

	return errors.Join(errs...)
}

func (a *Application) closeStorage() {
	if a.ownsRedis && a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// EventBus returns the interruption signal bus.
func (a *Application) EventBus() ports.EventBus { return a.eventBus }

// Arbitrator returns the playback arbitration state machine.
func (a *Application) Arbitrator() *service.Arbitrator { return a.arbitrator }

// Queue returns the queue engine.
func (a *Application) Queue() *service.QueueEngine { return a.queue }

// LocalPlayer returns the local producer.
func (a *Application) LocalPlayer() *service.LocalPlayer { return a.local }

// Scheduler returns the announcement scheduler.
func (a *Application) Scheduler() *service.Scheduler { return a.scheduler }

// Memory returns the playback memory keeper.
func (a *Application) Memory() *service.MemoryService { return a.memory }

// Remote returns the remote session, or nil when remote playback is off.
func (a *Application) Remote() ports.RemoteSession { return a.remote }

// Library returns the resolver for local tracks and advertisements.
func (a *Application) Library() *library.Resolver { return a.resolver }

// Registry returns the metrics registry.
func (a *Application) Registry() *prometheus.Registry { return a.registry }
