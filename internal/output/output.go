// Package output reads the engine's fixed-name data files from a run's
// working directory into tables. The readers are pure functions: the exact
// column layouts belong to the engine, not to this module, so each file is
// read as a header line of column names followed by whitespace-separated
// rows.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/zgoubigo/internal/table"
)

// Fixed names of the engine's output data files.
const (
	PltFile         = "zgoubi.plt"
	MatrixFile      = "zgoubi.MATRIX.out"
	OpticsFile      = "zgoubi.OPTICS.out"
	SRLossFile      = "zgoubi.SRLOSS.out"
	SRLossStepsFile = "zgoubi.SRLOSS_STEPS.out"
)

// ReadTracks reads the tracking-particle file.
func ReadTracks(dir string) (*table.Table, error) {
	return readColumns(filepath.Join(dir, PltFile))
}

// ReadMatrix reads the transfer-matrix file.
func ReadMatrix(dir string) (*table.Table, error) {
	return readColumns(filepath.Join(dir, MatrixFile))
}

// ReadOptics reads the optical-functions file.
func ReadOptics(dir string) (*table.Table, error) {
	return readColumns(filepath.Join(dir, OpticsFile))
}

// ReadSRLoss reads the per-element synchrotron-radiation loss file.
func ReadSRLoss(dir string) (*table.Table, error) {
	return readColumns(filepath.Join(dir, SRLossFile))
}

// ReadSRLossSteps reads the per-step synchrotron-radiation loss file.
func ReadSRLossSteps(dir string) (*table.Table, error) {
	return readColumns(filepath.Join(dir, SRLossStepsFile))
}

// readColumns parses a whitespace-separated numeric text file: comment
// lines start with '#', the first remaining line names the columns.
func readColumns(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var t *table.Table
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if t == nil {
			t = table.New(fields...)
			continue
		}
		if len(fields) != len(t.Columns()) {
			return nil, fmt.Errorf("output: %s:%d: %d fields, want %d", path, lineNo, len(fields), len(t.Columns()))
		}
		if err := t.AppendRow(fields...); err != nil {
			return nil, fmt.Errorf("output: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("output: %s: %w", path, err)
	}
	if t == nil {
		t = table.New()
	}
	return t, nil
}
