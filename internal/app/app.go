package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/viraflow/internal/config"
	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/tooldef"
)

// App encapsulates one run's dependencies and lifecycle. It owns its own
// logger instance rather than touching the global default, so tests can
// run several Apps side by side with isolated output.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    *config.Run
	tools  *tooldef.Profile

	httpServer *http.Server
}

// New constructs a fully initialized App: validated configuration in,
// logger configured, tool profiles loaded and overlaid.
func New(outW io.Writer, cfg *config.Run) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	tools, err := tooldef.Load(ctx, cfg.ToolsFile)
	if err != nil {
		return nil, fmt.Errorf("loading tool profiles: %w", err)
	}
	logger.Debug("Tool profiles loaded.", "count", tools.Len())

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		tools:  tools,
	}, nil
}
