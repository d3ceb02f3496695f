package results

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/zgoubigo/internal/output"
	"github.com/vk/zgoubigo/internal/sweep"
	"github.com/vk/zgoubigo/internal/testutil"
)

func assignment(el, param, value string) sweep.Assignment {
	return sweep.Assignment{
		{Element: el, Parameter: param}: cty.StringVal(value),
	}
}

func TestTracksConcatenatesAndTagsRuns(t *testing.T) {
	ctx := testutil.Context()

	dir1 := t.TempDir()
	testutil.WriteColumnsFile(t, dir1, output.PltFile, "IT X\n1 0.1\n2 0.2\n")
	dir2 := t.TempDir()
	testutil.WriteColumnsFile(t, dir2, output.PltFile, "IT X\n1 0.3\n2 0.4\n")

	res := New([]Record{
		{Assignment: assignment("D1", "XL", "10cm"), Dir: dir1, Success: true},
		{Assignment: assignment("D1", "XL", "20cm"), Dir: dir2, Success: true},
	})

	tracks := res.Tracks(ctx)
	require.Equal(t, 4, tracks.NumRows())

	// Particle ids are offset per run so the concatenation keeps them unique.
	ids, err := tracks.Floats("IT")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, ids)

	tags, err := tracks.Column("D1.XL")
	require.NoError(t, err)
	assert.Equal(t, []string{"10cm", "10cm", "20cm", "20cm"}, tags)
}

func TestViewIsCachedUntilForceReload(t *testing.T) {
	ctx := testutil.Context()
	dir := t.TempDir()
	testutil.WriteColumnsFile(t, dir, output.OpticsFile, "BETA11\n1.0\n")

	res := New([]Record{{Assignment: sweep.Assignment{}, Dir: dir, Success: true}})

	first := res.Optics(ctx)
	require.Equal(t, 1, first.NumRows())

	testutil.WriteColumnsFile(t, dir, output.OpticsFile, "BETA11\n1.0\n2.0\n")
	assert.Equal(t, 1, res.Optics(ctx).NumRows(), "unfiltered view is served from cache")
	assert.Equal(t, 2, res.Optics(ctx, WithForceReload()).NumRows())
	assert.Equal(t, 2, res.Optics(ctx).NumRows(), "force reload refreshed the cache")
}

func TestFilterBypassesCache(t *testing.T) {
	ctx := testutil.Context()

	dir1 := t.TempDir()
	testutil.WriteColumnsFile(t, dir1, output.MatrixFile, "R11\n1.0\n")
	dir2 := t.TempDir()
	testutil.WriteColumnsFile(t, dir2, output.MatrixFile, "R11\n2.0\n")

	a1 := assignment("D1", "XL", "10cm")
	a2 := assignment("D1", "XL", "20cm")
	res := New([]Record{
		{Assignment: a1, Dir: dir1, Success: true},
		{Assignment: a2, Dir: dir2, Success: true},
	})

	all := res.Matrix(ctx)
	require.Equal(t, 2, all.NumRows())

	only := res.Matrix(ctx, WithFilter(a2))
	require.Equal(t, 1, only.NumRows())
	cell, err := only.Cell(0, "R11")
	require.NoError(t, err)
	assert.Equal(t, "2.0", cell)

	assert.Equal(t, 2, res.Matrix(ctx).NumRows(), "filtered query leaves the cache intact")
}

func TestMissingOutputFileIsSkipped(t *testing.T) {
	ctx := testutil.Context()

	okDir := t.TempDir()
	testutil.WriteColumnsFile(t, okDir, output.SRLossFile, "DE\n0.5\n")

	res := New([]Record{
		{Assignment: assignment("D1", "XL", "10cm"), Dir: okDir, Success: true},
		{Assignment: assignment("D1", "XL", "20cm"), Dir: t.TempDir(), Success: false},
	})

	tbl := res.SRLoss(ctx)
	assert.Equal(t, 1, tbl.NumRows())
}

func TestMerge(t *testing.T) {
	a := New([]Record{{Assignment: sweep.Assignment{}, Dir: "a"}})
	b := New([]Record{{Assignment: sweep.Assignment{}, Dir: "b"}})

	merged := Merge(a, nil, b)
	require.Equal(t, 2, merged.Len())
	assert.Equal(t, "a", merged.At(0).Dir)
	assert.Equal(t, "b", merged.At(1).Dir)
}

func TestSaveCopiesRunFiles(t *testing.T) {
	ctx := testutil.Context()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zgoubi.res"), []byte("result text"), 0o644))

	res := New([]Record{{Assignment: sweep.Assignment{}, Dir: dir, Success: true}})

	dest := t.TempDir()
	require.NoError(t, res.Save(ctx, dest, []string{"zgoubi.res", "zgoubi.dat"}))

	raw, err := os.ReadFile(filepath.Join(dest, "baseline", "zgoubi.res"))
	require.NoError(t, err)
	assert.Equal(t, "result text", string(raw))

	_, err = os.Stat(filepath.Join(dest, "baseline", "zgoubi.dat"))
	assert.True(t, os.IsNotExist(err), "missing source files are skipped")
}
