package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	framework "github.com/akriventsev/potter-repository"
	"github.com/akriventsev/potter-repository/framework/adapters/messagebus"
	"github.com/akriventsev/potter-repository/framework/adapters/store"
	"github.com/akriventsev/potter-repository/framework/config"
	"github.com/akriventsev/potter-repository/framework/core"
	"github.com/akriventsev/potter-repository/framework/logger"
	"github.com/akriventsev/potter-repository/framework/migrations"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

// app общие зависимости команд
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	// store хранилище без декораторов: миграции и health checks
	store persistence.Store
	// data хранилище для репозиториев (кэш и публикация изменений)
	data persistence.Store
	// components декораторы с собственным жизненным циклом (кэш, публикатор)
	components []core.Component
	// hub источник WebSocket потока изменений (nil, если поток выключен)
	hub *messagebus.InMemoryPublisher
}

func bootstrap(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Env:         cfg.Environment,
		Level:       cfg.Log.Level,
		ServiceName: cfg.ServiceName,
		Version:     cfg.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zap.ReplaceGlobals(log)

	name, storeCfg := cfg.Store.Adapter()
	st, err := store.NewStoreFactory().Create(ctx, name, storeCfg)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", zap.String("type", name))

	a := &app{cfg: cfg, logger: log, store: st, data: st}
	if err := a.decorate(); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// decorate подключает Redis кэш и публикацию изменений
func (a *app) decorate() error {
	if a.cfg.Cache.Enabled {
		cached, err := store.NewCachedStore(a.data, a.cfg.Cache.Store(), a.logger)
		if err != nil {
			return err
		}
		a.data = cached
		a.components = append(a.components, cached)
	}

	var pub messagebus.Publisher
	if a.cfg.Events.Enabled() {
		name, pubCfg := a.cfg.Events.Publisher()
		created, err := messagebus.NewPublisherFactory().Create(name, pubCfg, a.logger)
		if err != nil {
			return err
		}
		pub = created
	}

	if a.cfg.Events.Stream {
		hub, ok := pub.(*messagebus.InMemoryPublisher)
		if !ok {
			hub = messagebus.NewInMemoryPublisher(messagebus.InMemoryConfig{})
			if pub != nil {
				pub = messagebus.NewMultiPublisher(pub, hub)
			} else {
				pub = hub
			}
		}
		a.hub = hub
	}

	if pub != nil {
		a.data = messagebus.NewNotifyingStore(a.data, pub, a.logger)
		a.components = append(a.components, pub)
	}
	return nil
}

// framework регистрирует компоненты приложения в порядке запуска
func (a *app) framework(extra ...core.Component) (*framework.BaseFramework, error) {
	fw := framework.New()
	for _, c := range append(append([]core.Component(nil), a.components...), extra...) {
		if err := fw.RegisterComponent(c); err != nil {
			return nil, err
		}
	}
	return fw, nil
}

func (a *app) close(ctx context.Context) {
	if lc, ok := a.store.(core.Lifecycle); ok {
		if err := lc.Stop(ctx); err != nil {
			a.logger.Warn("failed to close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// migrationRunner возвращает goose runner для SQL хранилища
func (a *app) migrationRunner() (*migrations.Runner, error) {
	sqlStore, ok := a.store.(*store.SQLStore)
	if !ok {
		return nil, fmt.Errorf("store %s does not use SQL migrations", a.cfg.Store.Type)
	}
	return migrations.NewRunner(sqlStore.DB(), sqlStore.Dialect().Name())
}

// migrate приводит схему хранилища к актуальной версии
func (a *app) migrate(ctx context.Context) error {
	switch st := a.store.(type) {
	case *store.SQLStore:
		runner, err := a.migrationRunner()
		if err != nil {
			return err
		}
		results, err := runner.Up(ctx)
		for _, r := range results {
			a.logger.Info("migration applied", zap.Int64("version", r.Version), zap.String("name", r.Name), zap.Duration("duration", r.Duration))
		}
		return err
	case *store.MongoStore:
		return migrations.EnsureMongoCollections(ctx, st.Database(), migrations.DefaultMongoCollections())
	default:
		return nil
	}
}
