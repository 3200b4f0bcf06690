// Package client composes the sync engine, outbound queue, connectivity
// monitor and receipt tracker into one runnable client via fx.
package client

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/parlochat/parlo/internal/bus"
	"github.com/parlochat/parlo/internal/config"
	"github.com/parlochat/parlo/internal/connectivity"
	"github.com/parlochat/parlo/internal/lock"
	"github.com/parlochat/parlo/internal/logging"
	"github.com/parlochat/parlo/internal/outbox"
	"github.com/parlochat/parlo/internal/profile"
	"github.com/parlochat/parlo/internal/receipts"
	"github.com/parlochat/parlo/internal/remote"
	"github.com/parlochat/parlo/internal/status"
	"github.com/parlochat/parlo/internal/store"
	intsync "github.com/parlochat/parlo/internal/sync"
)

// Params holds the resolved profile configuration and the externally
// supplied collaborators passed to the fx module.
type Params struct {
	Profile string
	UID     string
	Remote  remote.Store
	Source  connectivity.Source
}

// Module returns the fx module for the client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMonitor,
			provideSyncEngine,
			provideQueue,
			provideTracker,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Init()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMonitor(p Params, cfg *config.Config, logger *zap.Logger) *connectivity.Monitor {
	return connectivity.NewMonitor(p.Source, cfg.Debounce(), logger)
}

func provideSyncEngine(p Params, db *store.DB, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(p.UID, db, p.Remote, b, logger, cfg.RemoteTimeout())
}

func provideQueue(db *store.DB, engine *intsync.Engine, monitor *connectivity.Monitor, b *bus.Bus, logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(db, engine, monitor, b, logger)
}

func provideTracker(p Params, db *store.DB, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *receipts.Tracker {
	return receipts.NewTracker(p.UID, db, p.Remote, b, logger, cfg.RemoteTimeout())
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *store.DB, monitor *connectivity.Monitor, engine *intsync.Engine, queue *outbox.Queue, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	var realtime realtimeHandle
	var unsubConn func()
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := monitor.Start(); err != nil {
				return err
			}
			queue.Start(runCtx)

			// Link edges drive the runtime state; the immediate fire also
			// covers starting up without a link.
			unsubConn = monitor.Subscribe(func(online bool) {
				b.Publish(bus.Event{Kind: bus.KindConnectivity, Timestamp: time.Now(), Payload: online})
				if !online {
					_ = machine.Transition(status.Offline)
					return
				}
				if machine.Current() == status.Offline {
					_ = machine.Transition(status.Syncing)
					_ = machine.Transition(status.Ready)
				}
			})

			// Initial sync and the realtime subscriptions run in the
			// background; the local cache serves reads meanwhile.
			go func() {
				for !monitor.IsOnline() {
					if runCtx.Err() != nil {
						return
					}
					if monitor.WaitForOnline(time.Second) {
						break
					}
				}
				_ = machine.Transition(status.Syncing)
				if err := engine.InitialSync(runCtx); err != nil {
					logger.Error("initial sync failed", zap.Error(err))
				}
				stop, err := engine.StartRealtimeSync(runCtx)
				if err != nil {
					logger.Error("realtime sync failed to start", zap.Error(err))
					_ = machine.Transition(status.Error)
					return
				}
				if !realtime.set(stop) {
					// Shutdown won the race; do not leave a live subscription.
					return
				}
				_ = machine.Transition(status.Ready)
				logger.Info("client ready", zap.String("uid", p.UID))
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			if unsubConn != nil {
				unsubConn()
			}
			realtime.teardown()
			queue.Stop()
			monitor.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
