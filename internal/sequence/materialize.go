package sequence

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/zgoubigo/internal/ctxlog"
	"github.com/vk/zgoubigo/internal/sweep"
)

// Materialize writes one ready-to-execute deck per parametric assignment.
//
// The supplied mapping's combinations are cross-producted with any
// combinations implied by a beam command present in the sequence. For each
// resulting assignment the sequence is adjusted, validated and written to
// filename inside a fresh working directory under basePath (the system
// temporary directory when basePath is empty), then restored to its
// pre-adjustment state. A duplicate of an assignment materialized earlier
// replaces the earlier entry, and the stale working directory is removed.
//
// Materialize mutates the sequence while adjusting and must not run
// concurrently with other operations on it; parallelize the engine runs,
// not the deck writes.
func (s *Sequence) Materialize(ctx context.Context, mapping *sweep.Mapping, filename, basePath string, validators ...Validator) ([]Materialized, error) {
	logger := ctxlog.FromContext(ctx)

	combos, err := mapping.Combinations()
	if err != nil {
		return nil, err
	}
	beam, err := s.Beam()
	if err != nil {
		return nil, err
	}
	if beam != nil && beam.Definition().BeamMappings != nil {
		beamMapping, err := beam.Definition().BeamMappings(beam)
		if err != nil {
			return nil, err
		}
		if beamMapping != nil {
			beamCombos, err := beamMapping.Combinations()
			if err != nil {
				return nil, err
			}
			crossed := make([]sweep.Assignment, 0, len(combos)*len(beamCombos))
			for _, a := range combos {
				for _, b := range beamCombos {
					crossed = append(crossed, a.Merged(b))
				}
			}
			combos = crossed
		}
	}

	if basePath != "" {
		if err := os.MkdirAll(basePath, 0o755); err != nil {
			return nil, fmt.Errorf("sequence: base path: %w", err)
		}
	}

	var created []Materialized
	for _, assignment := range combos {
		s.dropMaterialized(assignment)

		prior, err := s.Adjust(assignment)
		if err != nil {
			return created, err
		}

		dir, err := os.MkdirTemp(basePath, "zgoubigo-")
		if err != nil {
			s.restore(ctx, prior)
			return created, fmt.Errorf("sequence: working directory: %w", err)
		}
		if err := s.Write(dir, filename, validators...); err != nil {
			s.restore(ctx, prior)
			_ = os.RemoveAll(dir)
			return created, err
		}
		s.restore(ctx, prior)

		entry := Materialized{Assignment: assignment, Dir: dir}
		s.materialized = append(s.materialized, entry)
		created = append(created, entry)
		logger.Debug("Materialized input deck.", "assignment", assignment.String(), "dir", dir)
	}
	return created, nil
}

// restore undoes an adjustment, logging rather than failing: the sequence
// state matters more than the error site, and prior values always address
// existing commands.
func (s *Sequence) restore(ctx context.Context, prior sweep.Assignment) {
	if _, err := s.Adjust(prior); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to restore sequence after adjustment.", "error", err)
	}
}

// dropMaterialized removes an earlier entry for the same assignment,
// deleting its working directory.
func (s *Sequence) dropMaterialized(assignment sweep.Assignment) {
	kept := s.materialized[:0]
	for _, m := range s.materialized {
		if m.Assignment.Equal(assignment) {
			_ = os.RemoveAll(m.Dir)
			continue
		}
		kept = append(kept, m)
	}
	s.materialized = kept
}

// Runs returns the accumulated materialized decks.
func (s *Sequence) Runs() []Materialized {
	return append([]Materialized(nil), s.materialized...)
}

// MarkExecuted flags the materialized entry for dir as run by the engine.
func (s *Sequence) MarkExecuted(dir string) {
	for i := range s.materialized {
		if s.materialized[i].Dir == dir {
			s.materialized[i].Executed = true
		}
	}
}

// Cleanup removes every materialized working directory and clears all
// per-command output state, returning the sequence to its pre-run state.
func (s *Sequence) Cleanup() error {
	var firstErr error
	for _, m := range s.materialized {
		if err := os.RemoveAll(m.Dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.materialized = nil
	for _, c := range s.line {
		c.ClearOutputs()
	}
	return firstErr
}
