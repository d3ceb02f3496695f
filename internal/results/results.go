// Package results collects per-run outcomes of an engine batch and
// demultiplexes the engine's output files back onto the parametric
// assignments that produced them.
package results

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/vk/zgoubigo/internal/output"
	"github.com/vk/zgoubigo/internal/sequence"
	"github.com/vk/zgoubigo/internal/sweep"
	"github.com/vk/zgoubigo/internal/table"
)

// Record is one run's outcome: the assignment that produced it, its working
// directory, the captured result-file text and the failure state.
type Record struct {
	Assignment sweep.Assignment
	Dir        string
	Result     []string
	Success    bool
	Err        error
	Input      *sequence.Sequence
}

// Results is an ordered collection of run records with lazily-loaded,
// cached tabular views over the engine's output files.
type Results struct {
	records []Record

	tracks      *table.Table
	matrix      *table.Table
	optics      *table.Table
	srloss      *table.Table
	srlossSteps *table.Table
}

// New creates a Results from run records.
func New(records []Record) *Results {
	return &Results{records: append([]Record(nil), records...)}
}

// Merge concatenates the run records of several Results into a new one.
// Caches are not carried over.
func Merge(results ...*Results) *Results {
	var records []Record
	for _, r := range results {
		if r != nil {
			records = append(records, r.records...)
		}
	}
	return New(records)
}

// Len returns the number of run records.
func (r *Results) Len() int { return len(r.records) }

// Records returns the run records in order.
func (r *Results) Records() []Record {
	return append([]Record(nil), r.records...)
}

// At returns one record by position.
func (r *Results) At(i int) Record { return r.records[i] }

// Assignments returns every record's parametric assignment, in order.
func (r *Results) Assignments() []sweep.Assignment {
	out := make([]sweep.Assignment, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Assignment
	}
	return out
}

// Option adjusts how a tabular view is collected.
type Option func(*options)

type options struct {
	filter      []sweep.Assignment
	forceReload bool
}

// WithFilter restricts the view to runs whose assignment equals one of the
// given ones. Filtered views are recomputed on every call and never cached.
func WithFilter(assignments ...sweep.Assignment) Option {
	return func(o *options) { o.filter = assignments }
}

// WithForceReload bypasses and refreshes the cached view.
func WithForceReload() Option {
	return func(o *options) { o.forceReload = true }
}

// Tracks returns the concatenated tracking-particle table across matching
// runs, rows tagged with the originating assignment. Particle numbers are
// offset per run so they stay unique in the concatenation.
func (r *Results) Tracks(ctx context.Context, opts ...Option) *table.Table {
	return r.collect(ctx, "tracks", output.ReadTracks, &r.tracks, true, opts)
}

// Matrix returns the concatenated transfer-matrix table.
func (r *Results) Matrix(ctx context.Context, opts ...Option) *table.Table {
	return r.collect(ctx, "matrix", output.ReadMatrix, &r.matrix, false, opts)
}

// Optics returns the concatenated optical-functions table.
func (r *Results) Optics(ctx context.Context, opts ...Option) *table.Table {
	return r.collect(ctx, "optics", output.ReadOptics, &r.optics, false, opts)
}

// SRLoss returns the concatenated per-element radiation-loss table.
func (r *Results) SRLoss(ctx context.Context, opts ...Option) *table.Table {
	return r.collect(ctx, "srloss", output.ReadSRLoss, &r.srloss, false, opts)
}

// SRLossSteps returns the concatenated per-step radiation-loss table.
func (r *Results) SRLossSteps(ctx context.Context, opts ...Option) *table.Table {
	return r.collect(ctx, "srloss_steps", output.ReadSRLossSteps, &r.srlossSteps, false, opts)
}

func (r *Results) collect(ctx context.Context, what string, read func(string) (*table.Table, error), cache **table.Table, renumber bool, optList []Option) *table.Table {
	logger := ctxlog.FromContext(ctx)
	var o options
	for _, opt := range optList {
		opt(&o)
	}

	if *cache != nil && o.filter == nil && !o.forceReload {
		return *cache
	}

	var parts []*table.Table
	particleOffset := 0.0
	for _, rec := range r.records {
		if !matches(rec.Assignment, o.filter) {
			continue
		}
		t, err := read(rec.Dir)
		if err != nil {
			logger.Warn("Skipping run without readable output file.",
				"view", what, "assignment", rec.Assignment.String(), "dir", rec.Dir, "error", err)
			continue
		}
		if renumber {
			particleOffset = renumberParticles(t, particleOffset)
		}
		for key, value := range rec.Assignment {
			t.SetConst(key.String(), sweep.FormatValue(value))
		}
		parts = append(parts, t)
	}
	merged := table.Concat(parts...)
	if o.filter == nil {
		*cache = merged
	}
	return merged
}

func matches(a sweep.Assignment, filter []sweep.Assignment) bool {
	if filter == nil {
		return true
	}
	for _, f := range filter {
		if a.Equal(f) {
			return true
		}
	}
	return false
}

// renumberParticles offsets the IT column by the running particle count and
// returns the new running maximum.
func renumberParticles(t *table.Table, offset float64) float64 {
	ids, err := t.Floats("IT")
	if err != nil {
		return offset
	}
	maxID := offset
	for i, id := range ids {
		shifted := id + offset
		if shifted > maxID {
			maxID = shifted
		}
		ids[i] = shifted
	}
	for i, id := range ids {
		_ = t.SetCell(i, "IT", strconv.FormatFloat(id, 'g', -1, 64))
	}
	return maxID
}

// Save copies the named files from every run directory into
// assignment-tagged subdirectories of destination. Missing files are logged
// and skipped.
func (r *Results) Save(ctx context.Context, destination string, files []string) error {
	logger := ctxlog.FromContext(ctx)
	for _, rec := range r.records {
		target := filepath.Join(destination, rec.Assignment.String())
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("results: save: %w", err)
		}
		for _, name := range files {
			if err := copyFile(filepath.Join(rec.Dir, name), filepath.Join(target, name)); err != nil {
				logger.Warn("Skipping missing run file during save.",
					"assignment", rec.Assignment.String(), "file", name, "error", err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
