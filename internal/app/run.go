package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/vk/zgoubigo/internal/deck"
	"github.com/vk/zgoubigo/internal/events"
	"github.com/vk/zgoubigo/internal/results"
	"github.com/vk/zgoubigo/internal/table"
	"github.com/vk/zgoubigo/internal/validate"
	"github.com/vk/zgoubigo/internal/zgoubi"
)

// Run executes the full lifecycle: load the deck, run the engine batch
// across the parametric mapping, write the concatenated result tables, and
// clean the per-run working directories up.
//
// A failed run does not abort the batch; Run returns an error only when the
// batch could not start or every run failed.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	seq, mapping, err := deck.Load(ctx, a.appCfg.DeckPath, a.registry)
	if err != nil {
		return err
	}
	a.logger.Info("Deck loaded.", "beamline", seq.Name(), "elements", seq.Len())

	sink, err := a.buildSink(ctx)
	if err != nil {
		return err
	}
	defer sink.Close()

	z := zgoubi.New(
		zgoubi.WithExecutable(a.runtime.Engine),
		zgoubi.WithMaxProcs(a.runtime.MaxProcs),
		zgoubi.WithTimeout(a.runtime.RunTimeout()),
		zgoubi.WithSink(sink),
	)
	res, err := z.Run(ctx, seq, mapping, validate.Default()...)
	if err != nil {
		return err
	}

	failed := 0
	for _, rec := range res.Records() {
		if !rec.Success {
			failed++
		}
	}
	a.logger.Info("Batch finished.", "runs", res.Len(), "failed", failed)

	if err := a.writeTables(ctx, res); err != nil {
		return err
	}
	if !a.runtime.KeepRunDirs {
		if err := seq.Cleanup(); err != nil {
			a.logger.Warn("Failed to remove some working directories.", "error", err)
		}
	}

	if res.Len() > 0 && failed == res.Len() {
		return fmt.Errorf("app: all %d runs failed", failed)
	}
	return nil
}

func (a *App) buildSink(ctx context.Context) (events.Sink, error) {
	if a.runtime.EventsEndpoint == "" {
		return events.NopSink{}, nil
	}
	sink, err := events.NewSocketIOSink(ctx, a.runtime.EventsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("app: event sink: %w", err)
	}
	return sink, nil
}

// writeTables persists each non-empty concatenated view as CSV under the
// output directory.
func (a *App) writeTables(ctx context.Context, res *results.Results) error {
	views := []struct {
		name  string
		table *table.Table
	}{
		{"tracks.csv", res.Tracks(ctx)},
		{"matrix.csv", res.Matrix(ctx)},
		{"optics.csv", res.Optics(ctx)},
		{"srloss.csv", res.SRLoss(ctx)},
		{"srloss_steps.csv", res.SRLossSteps(ctx)},
	}

	if err := os.MkdirAll(a.runtime.OutputDir, 0o755); err != nil {
		return fmt.Errorf("app: output directory: %w", err)
	}
	for _, v := range views {
		if v.table.NumRows() == 0 {
			continue
		}
		path := filepath.Join(a.runtime.OutputDir, v.name)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("app: write %s: %w", path, err)
		}
		err = v.table.WriteCSV(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("app: write %s: %w", path, err)
		}
		a.logger.Info("Result table written.", "path", path, "rows", v.table.NumRows())
	}
	return nil
}
