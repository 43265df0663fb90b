package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/4thel00z/docchat/internal"
)

// engineBuilder creates the engine of one workspace.
type engineBuilder func(ctx context.Context, scope internal.Scope) (*internal.Engine, error)

type app struct {
	resolver *internal.ScopeResolver
	build    engineBuilder

	mu      sync.Mutex
	engines map[string]*internal.Engine

	processUC  *internal.ProcessDocumentsUseCase
	searchUC   *internal.SearchUseCase
	askUC      *internal.AskUseCase
	exportUC   *internal.ExportChatUseCase
	sessionsUC *internal.ListSessionsUseCase
	statusUC   *internal.IndexStatusUseCase
}

func newApp(logOut io.Writer) *app {
	return newAppWith(internal.NewScopeResolver(), defaultEngineBuilder(logOut))
}

func newAppWith(resolver *internal.ScopeResolver, build engineBuilder) *app {
	a := &app{
		resolver: resolver,
		build:    build,
		engines:  make(map[string]*internal.Engine),
	}

	a.processUC = internal.NewProcessDocumentsUseCase(a.engineFor)
	a.searchUC = internal.NewSearchUseCase(a.engineFor)
	a.askUC = internal.NewAskUseCase(a.engineFor)
	a.exportUC = internal.NewExportChatUseCase(a.engineFor)
	a.sessionsUC = internal.NewListSessionsUseCase(a.engineFor)
	a.statusUC = internal.NewIndexStatusUseCase(a.engineFor)
	return a
}

// engineFor builds each workspace's engine once per process.
func (a *app) engineFor(ctx context.Context, scopeHint string) (*internal.Engine, error) {
	scope := a.resolver.Resolve(scopeHint)

	a.mu.Lock()
	defer a.mu.Unlock()

	if eng, ok := a.engines[scope.DataPath]; ok {
		return eng, nil
	}
	eng, err := a.build(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("open workspace %s: %w", scope.DataPath, err)
	}
	a.engines[scope.DataPath] = eng
	return eng, nil
}

// config loads the effective configuration without building an engine.
func (a *app) config(scopeHint string) (internal.Scope, *internal.Config, error) {
	scope := a.resolver.Resolve(scopeHint)
	if err := internal.LoadDotEnv(scope); err != nil {
		return scope, nil, err
	}
	cfg, err := internal.LoadConfig(scope)
	return scope, cfg, err
}

func (a *app) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for path, eng := range a.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(a.engines, path)
	}
	return errors.Join(errs...)
}

func defaultEngineBuilder(logOut io.Writer) engineBuilder {
	return func(ctx context.Context, scope internal.Scope) (*internal.Engine, error) {
		if err := internal.LoadDotEnv(scope); err != nil {
			return nil, err
		}
		cfg, err := internal.LoadConfig(scope)
		if err != nil {
			return nil, err
		}
		if err := scope.Init(); err != nil {
			return nil, err
		}

		logger := internal.NewLogger(cfg.Log, logOut)

		var opts []internal.EngineOption
		store, err := internal.OpenStore(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			logger.Warn("session store unavailable, chat history will not be saved", "driver", cfg.Store.Driver, "err", err)
		} else {
			opts = append(opts, internal.WithSessions(internal.NewSessionService(store)))
		}

		eng, err := internal.NewEngine(cfg, logger, opts...)
		if err != nil && store != nil {
			_ = store.Close()
		}
		return eng, err
	}
}
