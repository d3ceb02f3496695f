package zgoubi

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/zgoubigo/internal/command"
	"github.com/vk/zgoubigo/internal/events"
	"github.com/vk/zgoubigo/internal/quantity"
	"github.com/vk/zgoubigo/internal/sequence"
	"github.com/vk/zgoubigo/internal/sweep"
	"github.com/vk/zgoubigo/internal/testutil"
)

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Publish(_ context.Context, e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(typ events.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func testSequence() *sequence.Sequence {
	return sequence.New("LINE",
		command.New(command.Objet, command.WithLabel1("BUNCH")),
		command.New(command.Drift, command.WithLabel1("D1"),
			command.WithParam("XL", quantity.Val(quantity.MustNew(10, "cm")))),
	)
}

func testMapping() *sweep.Mapping {
	return sweep.New(sweep.NewGroup().Vary(
		sweep.Key{Element: "D1", Parameter: "XL"},
		quantity.Val(quantity.MustNew(10, "cm")),
		quantity.Val(quantity.MustNew(20, "cm")),
		quantity.Val(quantity.MustNew(30, "cm")),
	))
}

func TestRunBatchWithOneFailingVariant(t *testing.T) {
	ctx := testutil.Context()
	seq := testSequence()

	// The fake engine rejects the deck whose drift length is 20 and succeeds
	// on the others.
	result := testutil.ResultBlock("OBJET", "BUNCH", " object data") +
		testutil.ResultBlock("ESL", "D1", " drift data")
	body := `grep -qx "20" zgoubi.dat && exit 1` + "\n" +
		testutil.EngineScript(result, map[string]string{
			"zgoubi.plt": "IT X\n1 0.1\n",
		})
	engine := testutil.WriteScript(t, body)

	sink := &recordingSink{}
	z := New(WithExecutable(engine), WithMaxProcs(2), WithSink(sink))

	res, err := z.Run(ctx, seq, testMapping())
	require.NoError(t, err, "a failing run must not abort the batch")
	defer seq.Cleanup()

	require.Equal(t, 3, res.Len())

	failures := 0
	for _, rec := range res.Records() {
		if rec.Success {
			assert.NotEmpty(t, rec.Result)
			continue
		}
		failures++
		assert.Error(t, rec.Err)
		assert.Contains(t, rec.Assignment.String(), "20cm")
	}
	assert.Equal(t, 1, failures)

	// Output demultiplexing reaches the commands of the successful runs.
	d1, err := seq.Lookup("D1")
	require.NoError(t, err)
	require.Len(t, d1.Outputs(), 2)
	assert.Contains(t, d1.Outputs()[0].Lines[0], "Keyword")

	// Lifecycle events: one per run plus the batch brackets.
	assert.Equal(t, 1, sink.count(events.TypeBatchStarted))
	assert.Equal(t, 3, sink.count(events.TypeRunStarted))
	assert.Equal(t, 2, sink.count(events.TypeRunSucceeded))
	assert.Equal(t, 1, sink.count(events.TypeRunFailed))
	assert.Equal(t, 1, sink.count(events.TypeBatchFinished))

	// Successful runs are flagged as executed on the sequence.
	executed := 0
	for _, run := range seq.Runs() {
		if run.Executed {
			executed++
		}
	}
	assert.Equal(t, 2, executed)

	// The tracks view concatenates the two successful runs.
	tracks := res.Tracks(ctx)
	assert.Equal(t, 2, tracks.NumRows())
}

func TestRunMissingResultFileIsAFailure(t *testing.T) {
	ctx := testutil.Context()
	seq := testSequence()

	engine := testutil.WriteScript(t, "true")
	z := New(WithExecutable(engine))

	res, err := z.Run(ctx, seq, nil)
	require.NoError(t, err)
	defer seq.Cleanup()

	require.Equal(t, 1, res.Len())
	rec := res.At(0)
	assert.False(t, rec.Success)
	require.Error(t, rec.Err)
	assert.Contains(t, rec.Err.Error(), ResultFile)
}

func TestRunNilMappingMeansBaselineRun(t *testing.T) {
	ctx := testutil.Context()
	seq := testSequence()

	engine := testutil.WriteScript(t, testutil.EngineScript("done", nil))
	z := New(WithExecutable(engine))

	res, err := z.Run(ctx, seq, nil)
	require.NoError(t, err)
	defer seq.Cleanup()

	require.Equal(t, 1, res.Len())
	assert.True(t, res.At(0).Success)
	assert.Equal(t, "baseline", res.At(0).Assignment.String())
}

func TestFindLabeledOutput(t *testing.T) {
	out := []string{
		"preamble",
		"     Keyword, label(s) : ESL  D1 ",
		" drift line one",
		"",
		" drift line two",
		"************************************",
		"     Keyword, label(s) : ESL  D2 ",
		" other drift",
		"************************************",
	}

	t.Run("extracts the labeled block without blanks", func(t *testing.T) {
		block := findLabeledOutput(out, "D1", "ESL")
		require.Len(t, block, 3)
		assert.Contains(t, block[0], "Keyword")
		assert.Equal(t, " drift line one", block[1])
		assert.Equal(t, " drift line two", block[2])
	})

	t.Run("label must match exactly", func(t *testing.T) {
		assert.Empty(t, findLabeledOutput(out, "D", "ESL"))
	})

	t.Run("keyword must match", func(t *testing.T) {
		assert.Empty(t, findLabeledOutput(out, "D1", "MARKER"))
	})
}
