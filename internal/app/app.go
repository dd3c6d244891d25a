package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/insituflow/flume/internal/box"
	"github.com/insituflow/flume/internal/ctxlog"
	"github.com/insituflow/flume/internal/expr"
	"github.com/insituflow/flume/internal/mesh"
	"github.com/insituflow/flume/internal/workspace"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: one workspace, one published dataset, one evaluator.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *Config
	workspace *workspace.Workspace
	dataset   *mesh.Dataset
	evaluator *expr.Evaluator
}

// New is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger, the dataset opened
// and published, and every core module registered.
func New(outW io.Writer, cfg *Config, modules ...workspace.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	ds, err := openDataset(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	logger.Debug("Dataset opened.", "domains", len(ds.Domains), "cycle", ds.Cycle())

	ws := workspace.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		if err := mod.Register(ctx, ws); err != nil {
			return nil, fmt.Errorf("registering modules: %w", err)
		}
	}
	logger.Debug("All modules registered.", "count", len(modules))

	if err := ws.Publish(expr.DatasetKey, box.Borrowed(ds)); err != nil {
		return nil, fmt.Errorf("publishing dataset: %w", err)
	}

	return &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		workspace: ws,
		dataset:   ds,
		evaluator: expr.New(ws, ds),
	}, nil
}

// openDataset loads the dataset file, or synthesizes the example mesh when
// no file was given.
func openDataset(cfg *Config) (*mesh.Dataset, error) {
	if cfg.DataPath != "" {
		return mesh.Load(cfg.DataPath)
	}
	return mesh.Example(cfg.ExampleDomains, cfg.ExamplePoints), nil
}

// Workspace returns the application's workspace. This is primarily for
// testing.
func (a *App) Workspace() *workspace.Workspace {
	return a.workspace
}
