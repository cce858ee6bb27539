package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/publish"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

func writeFiles(t *testing.T, dir string, contents map[string]string) {
	t.Helper()
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func loadSegment(t *testing.T, dest *segment.Directory) *index.Segment {
	t.Helper()
	r, err := segment.Open(dest, segment.DefaultName)
	require.NoError(t, err)
	defer r.Close()
	seg, err := r.Load()
	require.NoError(t, err)
	return seg
}

func TestBuildIndex_TwoFiles(t *testing.T) {
	data := t.TempDir()
	writeFiles(t, data, map[string]string{"a.txt": "Hello World", "b.txt": "hello there"})
	dest := segment.NewDirectory(t.TempDir())

	files := []string{filepath.Join(data, "a.txt"), filepath.Join(data, "b.txt")}
	res, err := BuildIndex(context.Background(), files, dest, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.DocumentCount)
	assert.Equal(t, 3, res.TermCount)
	assert.Empty(t, res.Skipped)
	assert.NotEmpty(t, res.BuildID)
	require.NotNil(t, res.Segment)
	assert.Equal(t, dest.Join(segment.DefaultName), res.Segment.Path)

	r, err := segment.Open(dest, segment.DefaultName)
	require.NoError(t, err)
	defer r.Close()

	hello, err := r.Postings("hello")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: 0, Frequency: 1}, {DocID: 1, Frequency: 1}}, hello)
	world, err := r.Postings("world")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: 0, Frequency: 1}}, world)

	fields, ok := r.StoredFields(0)
	require.True(t, ok)
	assert.Equal(t, "a.txt", fields[document.FieldFilename])
	assert.True(t, filepath.IsAbs(fields[document.FieldFullPath]))
	assert.Equal(t, "a.txt", filepath.Base(fields[document.FieldFullPath]))
	_, hasContent := fields[document.DefaultContentField]
	assert.False(t, hasContent)
}

func TestBuildIndex_SkipsUnreadableFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/c.txt", []byte("gamma alpha"), 0o644))
	dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")

	files := []string{"/data/a.txt", "/data/missing.txt", "/data/c.txt"}
	res, err := BuildIndex(context.Background(), files, dest, Options{Sources: fs})
	require.NoError(t, err)

	assert.Equal(t, 2, res.DocumentCount)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "/data/missing.txt", res.Skipped[0].Path)
	assert.True(t, errors.Is(res.Skipped[0].Err, apperrors.ErrInput))
	assert.True(t, errors.Is(res.Skipped[0].Err, os.ErrNotExist))

	seg := loadSegment(t, dest)
	assert.Equal(t, index.PostingList{{DocID: 0, Frequency: 1}, {DocID: 1, Frequency: 1}}, seg.Lookup("alpha"))
	fields, ok := seg.StoredFields(1)
	require.True(t, ok)
	assert.Equal(t, "c.txt", fields[document.FieldFilename])
}

func TestBuildIndex_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	data := t.TempDir()
	writeFiles(t, data, map[string]string{"ok.txt": "fine", "locked.txt": "secret"})
	locked := filepath.Join(data, "locked.txt")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	res, err := BuildIndex(context.Background(), []string{locked, filepath.Join(data, "ok.txt")},
		segment.NewDirectory(t.TempDir()), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DocumentCount)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, locked, res.Skipped[0].Path)
	assert.True(t, errors.Is(res.Skipped[0].Err, os.ErrPermission))
}

func TestBuildIndex_EmptyInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	dest := segment.NewDirectoryFs(fs, "/idx")

	res, err := BuildIndex(context.Background(), nil, dest, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.DocumentCount)
	assert.Zero(t, res.TermCount)

	seg := loadSegment(t, dest)
	assert.Zero(t, seg.DocCount)
	assert.Empty(t, seg.Terms)
}

func TestBuildIndex_Positions(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/a.txt", []byte("to be or not to be"), 0o644))
	dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")

	_, err := BuildIndex(context.Background(), []string{"/d/a.txt"}, dest,
		Options{Sources: fs, TrackPositions: true})
	require.NoError(t, err)

	seg := loadSegment(t, dest)
	assert.True(t, seg.TrackPositions)
	assert.Equal(t, index.PostingList{{DocID: 0, Frequency: 2, Positions: []int{1, 5}}}, seg.Lookup("be"))
}

func TestBuildIndex_CustomContentFieldAndTokenizer(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/a.txt", []byte("Grüße aus Köln"), 0o644))
	dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")

	_, err := BuildIndex(context.Background(), []string{"/d/a.txt"}, dest, Options{
		Sources:      fs,
		ContentField: "body",
		Tokenizer:    tokenizer.Unicode{},
	})
	require.NoError(t, err)

	seg := loadSegment(t, dest)
	assert.Equal(t, "body", seg.ContentField)
	assert.NotEmpty(t, seg.Lookup("köln"))
}

func TestBuildIndex_FullPathResolvesHostLinks(t *testing.T) {
	data := t.TempDir()
	writeFiles(t, data, map[string]string{"target.txt": "linked body"})
	link := filepath.Join(data, "link.txt")
	require.NoError(t, os.Symlink(filepath.Join(data, "target.txt"), link))
	want, err := filepath.EvalSymlinks(filepath.Join(data, "target.txt"))
	require.NoError(t, err)

	dest := segment.NewDirectory(t.TempDir())
	_, err = BuildIndex(context.Background(), []string{link}, dest, Options{})
	require.NoError(t, err)

	fields, ok := loadSegment(t, dest).StoredFields(0)
	require.True(t, ok)
	assert.Equal(t, want, fields[document.FieldFullPath])
	assert.Equal(t, "link.txt", fields[document.FieldFilename])
}

func TestBuildIndex_FullPathStaysInsideSourceFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "docs/a.txt", []byte("alpha"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/../data/b.txt", []byte("beta"), 0o644))

	dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")
	_, err := BuildIndex(context.Background(), []string{"docs/a.txt", "/data/../data/b.txt"}, dest, Options{Sources: fs})
	require.NoError(t, err)

	seg := loadSegment(t, dest)
	a, ok := seg.StoredFields(0)
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/docs/a.txt"), a[document.FieldFullPath])
	b, ok := seg.StoredFields(1)
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/data/b.txt"), b[document.FieldFullPath])
}

func TestBuildIndex_DeterministicAcrossWorkerCounts(t *testing.T) {
	fs := afero.NewMemMapFs()
	var files []string
	for i := range 60 {
		path := fmt.Sprintf("/data/doc%03d.txt", i)
		body := fmt.Sprintf("common term%d shared%d word%d", i, i%7, i%3)
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
		files = append(files, path)
	}

	var segs []*index.Segment
	for _, workers := range []int{1, 3, 16} {
		dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")
		res, err := BuildIndex(context.Background(), files, dest, Options{Sources: fs, Workers: workers})
		require.NoError(t, err)
		assert.Equal(t, 60, res.DocumentCount)
		segs = append(segs, loadSegment(t, dest))
	}
	assert.Equal(t, segs[0].Terms, segs[1].Terms)
	assert.Equal(t, segs[0].Terms, segs[2].Terms)
	assert.Equal(t, segs[0].Stored, segs[2].Stored)

	fields, ok := segs[2].StoredFields(42)
	require.True(t, ok)
	assert.Equal(t, "doc042.txt", fields[document.FieldFilename])
}

func TestBuildIndex_CancelledLeavesDestinationUntouched(t *testing.T) {
	srcFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(srcFs, "/d/a.txt", []byte("old"), 0o644))
	destFs := afero.NewMemMapFs()
	dest := segment.NewDirectoryFs(destFs, "/idx")

	_, err := BuildIndex(context.Background(), []string{"/d/a.txt"}, dest, Options{Sources: srcFs})
	require.NoError(t, err)
	before, err := afero.ReadFile(destFs, dest.Join(segment.DefaultName))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := BuildIndex(ctx, []string{"/d/a.txt"}, dest, Options{Sources: srcFs})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))

	after, err := afero.ReadFile(destFs, dest.Join(segment.DefaultName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuildIndex_CommitFailureIsTyped(t *testing.T) {
	m := metrics.New(nil)
	dest := segment.NewDirectoryFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/idx")

	_, err := BuildIndex(context.Background(), nil, dest, Options{Metrics: m})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnwritable))
	assert.Equal(t, apperrors.ExitStorage, apperrors.ExitCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues(metrics.StatusFailure)))
}

func TestBuildIndex_NilDestination(t *testing.T) {
	_, err := BuildIndex(context.Background(), nil, nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnwritable))
}

type captureSink struct {
	mu     sync.Mutex
	events []publish.Event
	err    error
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, e publish.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func TestBuildIndex_MetricsAndNotification(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/a.txt", []byte("one two"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/d/b.txt", []byte("two three"), 0o644))
	dest := segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx")

	m := metrics.New(nil)
	sink := &captureSink{}
	pub := publish.NewPublisher(config.PublishConfig{Timeout: time.Second, MaxAttempts: 1}, sink)

	res, err := BuildIndex(context.Background(), []string{"/d/a.txt", "/d/gone.txt", "/d/b.txt"}, dest,
		Options{Sources: fs, Metrics: m, Publisher: pub})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesSkippedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues(metrics.StatusSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SegmentTerms))
	assert.Equal(t, float64(res.Segment.Bytes), testutil.ToFloat64(m.SegmentBytes))

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	assert.Equal(t, res.BuildID, ev.BuildID)
	assert.Equal(t, 2, ev.Documents)
	assert.Equal(t, 1, ev.Skipped)
	assert.Equal(t, res.Segment.Checksum, ev.Checksum)
}

func TestBuildIndex_NotificationFailureDoesNotFailBuild(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/d/a.txt", []byte("x"), 0o644))
	sink := &captureSink{err: errors.New("unreachable")}
	pub := publish.NewPublisher(config.PublishConfig{Timeout: time.Second, MaxAttempts: 1}, sink)

	res, err := BuildIndex(context.Background(), []string{"/d/a.txt"},
		segment.NewDirectoryFs(afero.NewMemMapFs(), "/idx"), Options{Sources: fs, Publisher: pub})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DocumentCount)
	assert.Len(t, sink.events, 1)
}
