// Package zgoubi drives the particle-tracking engine as a subprocess: one
// working directory per parametric assignment, a bounded pool of concurrent
// engine processes, and demultiplexing of the captured result text back onto
// the commands that produced it.
package zgoubi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/vk/zgoubigo/internal/events"
	"github.com/vk/zgoubigo/internal/results"
	"github.com/vk/zgoubigo/internal/sequence"
	"github.com/vk/zgoubigo/internal/sweep"
)

const (
	// DefaultExecutable is the engine binary looked up on PATH when no
	// explicit path is configured.
	DefaultExecutable = "zgoubi"

	// InputFilename is the fixed name the engine reads its deck from.
	InputFilename = "zgoubi.dat"

	// ResultFile is the fixed name of the engine's main result file.
	ResultFile = "zgoubi.res"
)

// Zgoubi dispatches engine runs. The zero value is not usable; construct
// with New.
type Zgoubi struct {
	executable string
	maxProcs   int
	timeout    time.Duration
	sink       events.Sink
}

// Option configures a dispatcher.
type Option func(*Zgoubi)

// WithExecutable sets the engine binary name or path.
func WithExecutable(path string) Option {
	return func(z *Zgoubi) { z.executable = path }
}

// WithMaxProcs bounds the number of concurrently running engine processes.
func WithMaxProcs(n int) Option {
	return func(z *Zgoubi) { z.maxProcs = n }
}

// WithTimeout bounds the wall-clock time of each individual run. Zero means
// no per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(z *Zgoubi) { z.timeout = d }
}

// WithSink publishes run lifecycle events to the given sink.
func WithSink(sink events.Sink) Option {
	return func(z *Zgoubi) { z.sink = sink }
}

// New creates a dispatcher. Defaults: the `zgoubi` binary from PATH, one
// process per CPU, no per-run timeout, no event sink.
func New(opts ...Option) *Zgoubi {
	z := &Zgoubi{
		executable: DefaultExecutable,
		maxProcs:   runtime.NumCPU(),
		sink:       events.NopSink{},
	}
	for _, opt := range opts {
		opt(z)
	}
	if z.maxProcs < 1 {
		z.maxProcs = 1
	}
	return z
}

// runOutcome carries one worker's result back to the dispatcher.
type runOutcome struct {
	index  int
	result []string
	err    error
}

// Run materializes one deck per assignment of mapping, executes the engine
// once per deck with bounded concurrency, and demultiplexes the captured
// result text back onto the sequence's commands.
//
// A failing run never aborts the batch: its record is marked failed and the
// remaining runs proceed. Deck materialization itself is serial because it
// adjusts the shared sequence.
func (z *Zgoubi) Run(ctx context.Context, seq *sequence.Sequence, mapping *sweep.Mapping, validators ...sequence.Validator) (*results.Results, error) {
	logger := ctxlog.FromContext(ctx)

	if mapping == nil {
		mapping = sweep.New()
	}
	runs, err := seq.Materialize(ctx, mapping, InputFilename, "", validators...)
	if err != nil {
		return nil, err
	}

	z.sink.Publish(ctx, events.Event{Type: events.TypeBatchStarted, Time: time.Now()})
	logger.Info("Starting engine batch.", "runs", len(runs), "maxProcs", z.maxProcs)

	jobs := make(chan int)
	outcomes := make(chan runOutcome)
	var wg sync.WaitGroup

	workers := z.maxProcs
	if workers > len(runs) {
		workers = len(runs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				run := runs[i]
				z.sink.Publish(ctx, events.Event{
					Type:       events.TypeRunStarted,
					Assignment: run.Assignment.String(),
					Dir:        run.Dir,
					Time:       time.Now(),
				})
				lines, err := z.execute(ctx, run.Dir)
				outcomes <- runOutcome{index: i, result: lines, err: err}
			}
		}(w)
	}
	go func() {
		for i := range runs {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(outcomes)
	}()

	records := make([]results.Record, len(runs))
	for outcome := range outcomes {
		run := runs[outcome.index]
		rec := results.Record{
			Assignment: run.Assignment,
			Dir:        run.Dir,
			Result:     outcome.result,
			Success:    outcome.err == nil,
			Err:        outcome.err,
			Input:      seq,
		}
		records[outcome.index] = rec

		event := events.Event{
			Type:       events.TypeRunSucceeded,
			Assignment: run.Assignment.String(),
			Dir:        run.Dir,
			Time:       time.Now(),
		}
		if outcome.err != nil {
			event.Type = events.TypeRunFailed
			event.Error = outcome.err.Error()
			logger.Error("Engine run failed.", "assignment", run.Assignment.String(), "dir", run.Dir, "error", outcome.err)
		} else {
			logger.Debug("Engine run finished.", "assignment", run.Assignment.String(), "dir", run.Dir)
		}
		z.sink.Publish(ctx, event)
	}

	// Demultiplexing mutates the shared sequence, so it happens after the
	// pool has drained.
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		seq.MarkExecuted(rec.Dir)
		attachOutputs(ctx, seq, rec.Assignment, rec.Result)
	}

	z.sink.Publish(ctx, events.Event{Type: events.TypeBatchFinished, Time: time.Now()})
	return results.New(records), nil
}

// execute runs one engine process inside dir and returns the result-file
// lines.
func (z *Zgoubi) execute(ctx context.Context, dir string) ([]string, error) {
	runCtx := ctx
	if z.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, z.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, z.executable)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("zgoubi: %s in %s: %w: %s", z.executable, dir, err, strings.TrimSpace(string(out)))
	}

	raw, err := os.ReadFile(filepath.Join(dir, ResultFile))
	if err != nil {
		return nil, fmt.Errorf("zgoubi: execution ended but result file %s not found: %w", ResultFile, err)
	}
	return strings.Split(string(raw), "\n"), nil
}

// attachOutputs routes the result-file text of one run back to the commands
// of the sequence, keyed by label and keyword.
func attachOutputs(ctx context.Context, seq *sequence.Sequence, assignment sweep.Assignment, result []string) {
	for _, c := range seq.Commands() {
		block := findLabeledOutput(result, c.Label1, c.Keyword())
		if err := c.AttachOutput(block, assignment); err != nil {
			ctxlog.FromContext(ctx).Warn("Post-processing of attached output failed.",
				"command", c.String(), "error", err)
		}
	}
}

// findLabeledOutput extracts the result-file block belonging to one labeled
// command. A block starts at a line naming both the label and the keyword on
// the engine's `Keyword` banner and ends at the next `****` separator.
func findLabeledOutput(out []string, label, keyword string) []string {
	var block []string
	for _, line := range out {
		if strings.Contains(line, " "+label+" ") && strings.Contains(line, "Keyword") && strings.Contains(line, keyword) {
			block = append(block, line)
			continue
		}
		if len(block) > 0 {
			if strings.Contains(line, "****") {
				break
			}
			block = append(block, line)
		}
	}
	kept := block[:0]
	for _, line := range block {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return kept
}
