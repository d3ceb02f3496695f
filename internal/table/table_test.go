package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRowAndAccess(t *testing.T) {
	tbl := New("X", "Y")
	require.NoError(t, tbl.AppendRow("1", "2"))
	require.NoError(t, tbl.AppendRow("3", "4"))
	require.Error(t, tbl.AppendRow("5"))

	assert.Equal(t, 2, tbl.NumRows())

	col, err := tbl.Column("Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "4"}, col)

	floats, err := tbl.Floats("X")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, floats)

	cell, err := tbl.Cell(1, "X")
	require.NoError(t, err)
	assert.Equal(t, "3", cell)

	_, err = tbl.Column("Z")
	require.Error(t, err)
}

func TestSetConst(t *testing.T) {
	tbl := New("X")
	require.NoError(t, tbl.AppendRow("1"))
	require.NoError(t, tbl.AppendRow("2"))

	tbl.SetConst("TAG", "a")
	assert.Equal(t, []string{"X", "TAG"}, tbl.Columns())
	col, err := tbl.Column("TAG")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, col)

	// Overwriting an existing column keeps the column order.
	tbl.SetConst("X", "0")
	col, err = tbl.Column("X")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "0"}, col)
	assert.Equal(t, []string{"X", "TAG"}, tbl.Columns())
}

func TestSetCell(t *testing.T) {
	tbl := New("X")
	require.NoError(t, tbl.AppendRow("1"))

	require.NoError(t, tbl.SetCell(0, "X", "9"))
	cell, err := tbl.Cell(0, "X")
	require.NoError(t, err)
	assert.Equal(t, "9", cell)

	require.Error(t, tbl.SetCell(0, "Z", "9"))
	require.Error(t, tbl.SetCell(5, "X", "9"))
}

func TestConcatUnionsColumns(t *testing.T) {
	a := New("X", "Y")
	require.NoError(t, a.AppendRow("1", "2"))
	b := New("Y", "Z")
	require.NoError(t, b.AppendRow("3", "4"))

	merged := Concat(a, nil, b)
	assert.Equal(t, []string{"X", "Y", "Z"}, merged.Columns())
	require.Equal(t, 2, merged.NumRows())

	y, err := merged.Column("Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, y)

	z, err := merged.Column("Z")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "4"}, z)
}

func TestWriteCSV(t *testing.T) {
	tbl := New("X", "Y")
	require.NoError(t, tbl.AppendRow("1", "2"))

	var b strings.Builder
	require.NoError(t, tbl.WriteCSV(&b))
	assert.Equal(t, "X,Y\n1,2\n", b.String())
}
