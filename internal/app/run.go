package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/profile"

	"github.com/vk/viraflow/internal/ctxlog"
	"github.com/vk/viraflow/internal/pipeline"
	"github.com/vk/viraflow/internal/publish"
	"github.com/vk/viraflow/internal/samples"
	"github.com/vk/viraflow/internal/scheduler"
	"github.com/vk/viraflow/internal/toolrun"
)

// ErrRunFailed marks a run that completed but had at least one failed
// instance. The summary has already been rendered when it is returned;
// callers only translate it into a non-zero exit.
var ErrRunFailed = errors.New("run finished with failures")

// Run executes one full pipeline run.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.CPUProfileDir != "" {
		p := profile.Start(profile.CPUProfile, profile.ProfilePath(a.cfg.CPUProfileDir), profile.NoShutdownHook)
		defer p.Stop()
	}

	a.startHealthcheck(ctx)
	defer a.closeHealthcheck(ctx)

	discovered, err := samples.Discover(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("discovering samples: %w", err)
	}
	if len(discovered) == 0 {
		return fmt.Errorf("no samples found in %s", a.cfg.ReadsFolder)
	}
	a.logger.Info("Samples discovered.", "count", len(discovered), "folder", a.cfg.ReadsFolder)

	graph, err := pipeline.Graph(ctx, a.cfg, a.tools)
	if err != nil {
		return fmt.Errorf("building pipeline graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	// Scratch tree for one run attempt. A fresh id per attempt keeps
	// re-runs into the same output folder from trampling each other.
	workDir := filepath.Join(a.cfg.OutFolder, "work", uuid.NewString()[:8])
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	a.logger.Debug("Work directory created.", "path", workDir)

	exec := toolrun.NewExec(a.tools, a.cfg, workDir)
	sched := scheduler.New(graph, a.cfg.Threads, exec)

	a.logger.Info("🚀 Starting pipeline run.", "run", a.cfg.RunName, "mode", a.cfg.Mode, "threads", a.cfg.Threads)
	sum, runErr := sched.Run(ctx, pipeline.Sources(ctx, a.cfg, discovered))
	if runErr != nil {
		// Cancellation still produced a partial summary worth showing.
		if sum != nil {
			sum.Render(a.outW)
		}
		return fmt.Errorf("pipeline run aborted: %w", runErr)
	}
	a.logger.Info("🏁 Pipeline run finished.", "duration", sum.Duration.Round(time.Second))

	if err := publish.Publish(ctx, a.cfg, sum, sched.Instances()); err != nil {
		return fmt.Errorf("publishing results: %w", err)
	}

	sum.Render(a.outW)
	if sum.Failed() {
		return ErrRunFailed
	}
	return nil
}
