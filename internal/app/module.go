// Package app composes the engine's components into an fx application.
package app

import (
	"context"

	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/chatdb"
	"github.com/imsglab/imsg/internal/config"
	"github.com/imsglab/imsg/internal/contacts"
	"github.com/imsglab/imsg/internal/engine"
	"github.com/imsglab/imsg/internal/home"
	"github.com/imsglab/imsg/internal/imessage"
	"github.com/imsglab/imsg/internal/journal"
	"github.com/imsglab/imsg/internal/lock"
	"github.com/imsglab/imsg/internal/logging"
	"github.com/imsglab/imsg/internal/resolve"
	"github.com/imsglab/imsg/internal/send"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config config.Config
}

// Module returns the fx module composing all providers and lifecycle
// hooks.
func Module(p Params) fx.Option {
	return fx.Module("imsg",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideDirectory,
			provideResolver,
			provideClient,
			provideOrchestrator,
			provideJournal,
			provideRecorder,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	if err := home.EnsureDir(); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(home.Dir())
	if err != nil {
		return nil, err
	}
	logger.Debug("state lock acquired", zap.String("dir", home.Dir()))
	return l, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*chatdb.DB, error) {
	db, err := chatdb.Open(p.Config.ChatDBPath, logger, b)
	if err != nil {
		return nil, err
	}
	logger.Info("message store opened", zap.String("path", p.Config.ChatDBPath))
	return db, nil
}

func provideDirectory(p Params, b *bus.Bus, logger *zap.Logger) *contacts.Directory {
	books := contacts.DiscoverBooks(p.Config.AddressBookDir)
	logger.Info("address books discovered", zap.Int("count", len(books)))
	return contacts.NewDirectory(contacts.NewBookLoader(books), p.Config.DirectoryTTL, b, logger)
}

func provideResolver(db *chatdb.DB, dir *contacts.Directory, logger *zap.Logger) *resolve.Resolver {
	return resolve.NewResolver(db, dir, logger)
}

func provideClient(p Params, logger *zap.Logger) *imessage.Client {
	return imessage.NewClient(p.Config.AutomationTimeout, logger)
}

func provideOrchestrator(client *imessage.Client, b *bus.Bus, logger *zap.Logger) *send.Orchestrator {
	return send.NewOrchestrator(client, b, logger)
}

func provideJournal(logger *zap.Logger) (*journal.Journal, error) {
	j, err := journal.Open(home.JournalPath())
	if err != nil {
		return nil, err
	}
	logger.Info("delivery journal opened", zap.String("path", home.JournalPath()))
	return j, nil
}

func provideRecorder(j *journal.Journal, b *bus.Bus, logger *zap.Logger) *journal.Recorder {
	return journal.NewRecorder(j, b, logger)
}

func provideEngine(db *chatdb.DB, dir *contacts.Directory, res *resolve.Resolver, orch *send.Orchestrator, client *imessage.Client, logger *zap.Logger) *engine.Engine {
	pending := engine.NewFileCandidates(home.CandidatesPath())
	return engine.New(db, dir, res, orch, client, pending, logger)
}

func registerLifecycle(lc fx.Lifecycle, rec *journal.Recorder, j *journal.Journal, db *chatdb.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			rec.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			rec.Stop()
			if err := j.Close(); err != nil {
				logger.Warn("error closing journal", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing message store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing state lock", zap.Error(err))
			}
			return nil
		},
	})
}
