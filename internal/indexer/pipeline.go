// Package indexer drives a complete index build: it reads and tokenizes the
// input files in parallel, submits them to one Builder in input order,
// commits the finalized segment and notifies the configured sinks.
package indexer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/publish"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/tracing"
)

// Options configures a build. The zero value is usable.
type Options struct {
	ContentField   string
	TrackPositions bool
	Tokenizer      tokenizer.Tokenizer
	// Workers bounds concurrent file reads; 0 means runtime.NumCPU().
	Workers     int
	SegmentName string
	// Sources is the filesystem input files are read from; nil means the OS.
	Sources   afero.Fs
	Metrics   *metrics.Metrics
	Publisher *publish.Publisher
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ContentField == "" {
		o.ContentField = document.DefaultContentField
	}
	if o.Tokenizer == nil {
		o.Tokenizer = tokenizer.Default
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.SegmentName == "" {
		o.SegmentName = segment.DefaultName
	}
	if o.Sources == nil {
		o.Sources = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// SkippedFile is an input file that could not be indexed.
type SkippedFile struct {
	Path string
	Err  error
}

// Result summarizes a committed build.
type Result struct {
	BuildID       string
	DocumentCount int
	TermCount     int
	Skipped       []SkippedFile
	Elapsed       time.Duration
	Segment       *segment.CommitResult
}

// BuildIndex indexes files into a new segment in dest. Files are assigned
// document ids in the order given, starting at 0; an unreadable file is
// recorded in Result.Skipped and does not consume an id. Cancelling ctx
// aborts the build only up to the start of the commit, and dest is left
// untouched whenever an error is returned.
func BuildIndex(ctx context.Context, files []string, dest *segment.Directory, opts Options) (*Result, error) {
	start := time.Now()
	opts = opts.withDefaults()
	if dest == nil {
		return nil, apperrors.New(apperrors.ErrStorageUnwritable, "no destination directory")
	}

	buildID := uuid.NewString()
	ctx = logger.WithBuildID(ctx, buildID)
	log := opts.Logger.With("component", "pipeline", "build_id", buildID)
	ctx, root := tracing.StartSpan(ctx, "build", buildID)
	defer func() {
		root.End()
		root.Log(log)
	}()

	log.Info("build started", "files", len(files), "dest", dest.Path(), "workers", opts.Workers)

	builder := index.NewBuilder(index.BuilderOptions{
		Tokenizer:      opts.Tokenizer,
		TrackPositions: opts.TrackPositions,
		ContentField:   opts.ContentField,
	})
	p := &pipeline{opts: opts, builder: builder, log: log}

	accCtx, accSpan := tracing.StartChildSpan(ctx, "accumulate")
	err := p.accumulate(accCtx, files)
	accSpan.SetAttr("documents", builder.DocumentCount())
	accSpan.SetAttr("skipped", len(p.skipped))
	accSpan.End()
	if err != nil {
		return nil, fmt.Errorf("accumulating documents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build cancelled before commit: %w", err)
	}

	_, finSpan := tracing.StartChildSpan(ctx, "finalize")
	seg, err := builder.Finalize()
	if err != nil {
		finSpan.End()
		return nil, fmt.Errorf("finalizing index: %w", err)
	}
	finSpan.SetAttr("terms", len(seg.Terms))
	finSpan.End()

	commitCtx, commitSpan := tracing.StartChildSpan(ctx, "commit")
	committed, err := segment.NewWriter(opts.SegmentName).Commit(commitCtx, seg, dest)
	if err != nil {
		commitSpan.End()
		if opts.Metrics != nil {
			opts.Metrics.CommitsTotal.WithLabelValues(metrics.StatusFailure).Inc()
		}
		return nil, fmt.Errorf("committing segment: %w", err)
	}
	commitSpan.SetAttr("bytes", committed.Bytes)
	commitSpan.End()

	result := &Result{
		BuildID:       buildID,
		DocumentCount: seg.DocCount,
		TermCount:     len(seg.Terms),
		Skipped:       p.skipped,
		Elapsed:       time.Since(start),
		Segment:       committed,
	}
	if opts.Metrics != nil {
		opts.Metrics.ObserveCommit(committed.Documents, committed.Terms, committed.Bytes)
		opts.Metrics.BuildDuration.Observe(result.Elapsed.Seconds())
	}
	log.Info("build complete",
		"documents", result.DocumentCount,
		"terms", result.TermCount,
		"skipped", len(result.Skipped),
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)

	if opts.Publisher != nil {
		if err := opts.Publisher.Publish(ctx, eventFor(result)); err != nil {
			log.Warn("build committed but notification incomplete", "error", err)
		}
	}
	return result, nil
}

func eventFor(r *Result) publish.Event {
	return publish.Event{
		BuildID:     r.BuildID,
		SegmentPath: r.Segment.Path,
		Documents:   r.DocumentCount,
		Terms:       r.TermCount,
		Skipped:     len(r.Skipped),
		Bytes:       r.Segment.Bytes,
		Checksum:    r.Segment.Checksum,
		ElapsedMs:   r.Elapsed.Milliseconds(),
		CommittedAt: time.Now().UTC(),
	}
}

type pipeline struct {
	opts    Options
	builder *index.Builder
	log     *slog.Logger
	skipped []SkippedFile
}

// job is one input file travelling through the pipeline. done is closed
// once a worker has filled in analyzed or err.
type job struct {
	path     string
	analyzed *document.Analyzed
	err      error
	done     chan struct{}
}

// accumulate reads and analyzes files on a bounded worker pool while a
// single submitter hands the results to the builder in input order.
func (p *pipeline) accumulate(ctx context.Context, files []string) error {
	workers := min(p.opts.Workers, max(len(files), 1))
	g, gctx := errgroup.WithContext(ctx)
	ordered := make(chan *job, workers*2)
	work := make(chan *job, workers*2)

	g.Go(func() error {
		defer close(work)
		defer close(ordered)
		for _, path := range files {
			j := &job{path: path, done: make(chan struct{})}
			select {
			case ordered <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case work <- j:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for j := range work {
				if err := gctx.Err(); err != nil {
					j.err = err
				} else {
					j.analyzed, j.err = p.analyze(j.path)
				}
				close(j.done)
			}
			return nil
		})
	}

	g.Go(func() error {
		var next document.ID
		for j := range ordered {
			select {
			case <-j.done:
			case <-gctx.Done():
				return gctx.Err()
			}
			if j.err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.skip(j.path, j.err)
				continue
			}
			if err := p.builder.AddAnalyzed(j.analyzed.WithID(next)); err != nil {
				return fmt.Errorf("adding %s: %w", j.path, err)
			}
			next++
			if p.opts.Metrics != nil {
				p.opts.Metrics.DocsIndexedTotal.Inc()
			}
		}
		return nil
	})

	return g.Wait()
}

func (p *pipeline) skip(path string, err error) {
	p.log.Warn("skipping unreadable file", "path", path, "error", err)
	p.skipped = append(p.skipped, SkippedFile{Path: path, Err: err})
	if p.opts.Metrics != nil {
		p.opts.Metrics.FilesSkippedTotal.Inc()
	}
}

// analyze reads one file and tokenizes it. The document id is assigned
// later by the submitter.
func (p *pipeline) analyze(path string) (*document.Analyzed, error) {
	p.log.Debug("indexing file", "path", path)
	content, err := p.readFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInput, err, "reading "+path)
	}
	doc := document.New(0, map[string]string{
		document.FieldFilename: filepath.Base(path),
		document.FieldFullPath: canonicalPath(p.opts.Sources, path),
	}, p.opts.ContentField, content)
	return document.Analyze(doc, p.opts.Tokenizer, p.opts.TrackPositions), nil
}

func (p *pipeline) readFile(path string) (string, error) {
	f, err := p.opts.Sources.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// canonicalPath returns the path recorded as fullPath. Links are resolved
// only against the host filesystem; any other source is rooted at "/" and
// cleaned without consulting the host.
func canonicalPath(fs afero.Fs, path string) string {
	if _, ok := fs.(*afero.OsFs); !ok {
		if !filepath.IsAbs(path) {
			path = string(filepath.Separator) + path
		}
		return filepath.Clean(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
