// Package testutil holds shared helpers for the test suite: a fake engine
// binary backed by a shell script, deck fixtures and quiet logger contexts.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/zgoubigo/internal/ctxlog"
)

// Context returns a context carrying a logger that discards everything, so
// tests stay quiet regardless of the global default.
func Context() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
}

// WriteScript writes an executable shell script into a temporary directory
// and returns its path. The script body runs with the engine's working
// directory as current directory.
func WriteScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-zgoubi")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// EngineScript builds a fake engine body that writes the given result-file
// text and any extra output files into the working directory.
func EngineScript(result string, files map[string]string) string {
	var b strings.Builder
	writeHeredoc(&b, "zgoubi.res", result)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeHeredoc(&b, name, files[name])
	}
	return b.String()
}

func writeHeredoc(b *strings.Builder, name, content string) {
	fmt.Fprintf(b, "cat > %s <<'ZGEOF'\n%s\nZGEOF\n", name, content)
}

// ResultBlock renders one labeled section of a fake result file: the
// keyword banner naming the label, the payload lines, and the block
// separator.
func ResultBlock(keyword, label string, lines ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "     Keyword, label(s) : %s  %s \n", keyword, label)
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("****************************************\n")
	return b.String()
}

// WriteDeck writes a deck fixture into a temporary directory and returns
// its path.
func WriteDeck(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deck.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// WriteColumnsFile writes a whitespace-separated data file (header line of
// column names, then rows) into dir under name.
func WriteColumnsFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
