// Package validate holds the structural validators applied to an input
// sequence before it is written, following the constraints the engine
// imposes on its input decks. Validators are independent, composable and
// order-insensitive.
package validate

import (
	"fmt"

	"github.com/vk/zgoubigo/internal/command"
	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sequence"
)

// FirstIsSource fails when a non-empty sequence does not start with a
// source-kind command (the particle object definition).
func FirstIsSource(s *sequence.Sequence) error {
	if s.Len() == 0 {
		return nil
	}
	if first := s.At(0); !first.IsSource() {
		return fmt.Errorf("validate: first command is %s, not a source object", first.Keyword())
	}
	return nil
}

// SourceWithinLimit fails when any source-kind command declares more
// particles than the engine supports.
func SourceWithinLimit(s *sequence.Sequence) error {
	for _, c := range s.Commands() {
		if !c.IsSource() {
			continue
		}
		v, ok := c.Get("IMAX")
		if !ok {
			continue
		}
		imax, err := quantity.MagnitudeFromCty(v, "")
		if err != nil {
			return fmt.Errorf("validate: %s[%s]: IMAX: %w", c.Keyword(), c.Label1, err)
		}
		if imax > command.SourceParticleLimit {
			return fmt.Errorf("validate: %s[%s]: IMAX %d exceeds the engine maximum of %d",
				c.Keyword(), c.Label1, int(imax), command.SourceParticleLimit)
		}
	}
	return nil
}

// Default returns the validator set applied when callers do not choose
// their own.
func Default() []sequence.Validator {
	return []sequence.Validator{FirstIsSource, SourceWithinLimit}
}
