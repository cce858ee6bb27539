// Package segment persists finalized index segments atomically and reads
// them back. A segment file is a fixed header, the stored field section,
// the postings section, an FST term dictionary and a crc32 footer.
package segment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// DefaultName is the file name a segment is published under.
const DefaultName = "index.seg"

// CommitResult describes a successfully published segment.
type CommitResult struct {
	Path      string
	Documents int
	Terms     int
	Bytes     int64
	Checksum  uint32
}

// Writer serialises Segments into segment files.
type Writer struct {
	name   string
	now    func() time.Time
	logger *slog.Logger
}

// NewWriter creates a Writer that publishes segments under name.
func NewWriter(name string) *Writer {
	if name == "" {
		name = DefaultName
	}
	return &Writer{
		name:   name,
		now:    time.Now,
		logger: slog.Default().With("component", "segment-writer"),
	}
}

func (w *Writer) Name() string { return w.name }

// Commit atomically writes seg into dest. Either dest ends up holding the
// complete new segment or it is left exactly as it was. ctx is consulted
// once before any bytes are written; after that the commit runs to
// completion or fails cleanly.
func (w *Writer) Commit(ctx context.Context, seg *index.Segment, dest *Directory) (*CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("commit not started: %w", err)
	}
	if seg == nil {
		return nil, apperrors.New(apperrors.ErrSerializationFailure, "nil segment")
	}
	if err := seg.Validate(); err != nil {
		return nil, err
	}
	data, checksum, err := encodeSegment(seg, w.now().UnixNano())
	if err != nil {
		return nil, err
	}

	unlock := dest.lock()
	defer unlock()

	f, err := dest.CreateTemp(w.name)
	if err != nil {
		return nil, err
	}
	tmpPath := f.Name()
	published := false
	defer func() {
		if published {
			return
		}
		if rmErr := dest.RemoveTemp(tmpPath); rmErr != nil {
			w.logger.Error("temp segment cleanup failed", "path", tmpPath, "error", rmErr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, storageError(err, "writing segment file")
	}
	if err := dest.Sync(f); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, storageError(err, "closing segment file")
	}
	if err := dest.Publish(tmpPath, w.name); err != nil {
		return nil, err
	}
	published = true

	result := &CommitResult{
		Path:      dest.Join(w.name),
		Documents: seg.DocCount,
		Terms:     len(seg.Terms),
		Bytes:     int64(len(data)),
		Checksum:  checksum,
	}
	w.logger.Info("segment committed",
		"path", result.Path,
		"docs", result.Documents,
		"terms", result.Terms,
		"bytes", result.Bytes,
	)
	return result, nil
}
