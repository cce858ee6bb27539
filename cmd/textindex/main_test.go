package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func dataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Hello World"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.TXT"), []byte("hello there"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("markdown only"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("secret"), 0o644))
	return dir
}

func TestBuild(t *testing.T) {
	data := dataDir(t)
	idx := filepath.Join(t.TempDir(), "index")
	metricsFile := filepath.Join(t.TempDir(), "build.prom")

	out, err := run(t, "build", idx, data, "--metrics-file", metricsFile, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexing 2 files took")

	r, err := segment.Open(segment.NewDirectory(idx), segment.DefaultName)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 2, r.DocCount())
	assert.Equal(t, 3, r.TermCount())

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "textindex_documents_indexed_total 2")
}

func TestBuild_PatternFromEnvAndFlag(t *testing.T) {
	data := dataDir(t)
	idx := t.TempDir()

	t.Setenv("TIX_PATTERN", "*.md")
	out, err := run(t, "build", idx, data)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexing 1 files took")

	out, err = run(t, "build", idx, data, "--pattern", "*.txt", "--include-hidden")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexing 3 files took")
}

func TestBuild_ConfigFile(t *testing.T) {
	data := dataDir(t)
	idx := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "textindex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
indexer:
  segmentName: custom.seg
  trackPositions: true
`), 0o644))

	_, err := run(t, "--config", cfgPath, "build", idx, data)
	require.NoError(t, err)

	r, err := segment.Open(segment.NewDirectory(idx), "custom.seg")
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.TrackPositions())
}

func TestBuild_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing args", []string{"build", "only-one"}},
		{"unknown flag", []string{"build", "a", "b", "--bogus"}},
		{"bad tokenizer", []string{"build", t.TempDir(), t.TempDir(), "--tokenizer", "klingon"}},
		{"negative workers", []string{"build", t.TempDir(), t.TempDir(), "--workers", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig), "got %v", err)
			assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
		})
	}
}

func TestBuild_MissingDataDir(t *testing.T) {
	idx := t.TempDir()
	_, err := run(t, "build", idx, filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInput))
	assert.Equal(t, apperrors.ExitFailure, apperrors.ExitCode(err))

	_, statErr := os.Stat(filepath.Join(idx, segment.DefaultName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInspect(t *testing.T) {
	data := dataDir(t)
	idx := t.TempDir()
	_, err := run(t, "build", idx, data, "--positions")
	require.NoError(t, err)
	segPath := filepath.Join(idx, segment.DefaultName)

	out, err := run(t, "inspect", segPath)
	require.NoError(t, err)
	assert.Contains(t, out, "documents 2")
	assert.Contains(t, out, "terms     3")
	assert.Contains(t, out, "positions true")

	out, err = run(t, "inspect", segPath, "--term", "HELLO")
	require.NoError(t, err)
	assert.Contains(t, out, `term "hello": 2 documents`)
	assert.Contains(t, out, "doc=0 freq=1 positions=[0]")
	assert.Contains(t, out, "doc=1 freq=1 positions=[0]")

	out, err = run(t, "inspect", segPath, "--doc", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "filename=b.TXT")

	_, err = run(t, "inspect", segPath, "--doc", "9")
	assert.True(t, errors.Is(err, apperrors.ErrInput))

	_, err = run(t, "inspect", segPath, "--term", "two words")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
}

func TestInspect_CorruptSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.seg")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, 128), 0o644))

	_, err := run(t, "inspect", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCorruptSegment))
	assert.Equal(t, apperrors.ExitSerialization, apperrors.ExitCode(err))
}

func TestCheck(t *testing.T) {
	idx := t.TempDir()

	out, err := run(t, "check", idx)
	require.NoError(t, err)
	assert.Contains(t, out, "no segment published yet")

	_, err = run(t, "build", idx, dataDir(t))
	require.NoError(t, err)
	out, err = run(t, "check", idx)
	require.NoError(t, err)
	assert.Contains(t, out, "2 documents, 3 terms")

	require.NoError(t, os.WriteFile(filepath.Join(idx, segment.DefaultName), []byte("garbage"), 0o644))
	_, err = run(t, "check", idx)
	assert.ErrorIs(t, err, errUnhealthy)
}
