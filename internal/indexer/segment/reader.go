package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/blevesearch/vellum"
	"github.com/spf13/afero"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Reader gives read access to one committed segment.
type Reader struct {
	path         string
	header       Header
	contentField string
	stored       []index.StoredDocument
	postings     []byte
	dict         *vellum.FST
}

// Open reads the segment called name in dir.
func Open(dir *Directory, name string) (*Reader, error) {
	return OpenFile(dir.Fs(), dir.Join(name))
}

// OpenFile reads and verifies the segment at path. An incompatible format
// version is reported as ErrFormatVersionMismatch before any other field is
// interpreted.
func OpenFile(fs afero.Fs, path string) (*Reader, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	header, err := decodeHeader(data)
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", path, err)
	}
	bodyEnd := len(data) - FooterSize
	want := binary.LittleEndian.Uint32(data[bodyEnd : bodyEnd+4])
	if got := crc32.ChecksumIEEE(data[:bodyEnd]); got != want {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "%s: checksum %08x, want %08x", path, got, want)
	}

	stored, err := decodeStored(data[header.StoredOffset : header.StoredOffset+header.StoredSize])
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", path, err)
	}
	if len(stored.Docs) != int(header.DocCount) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment,
			"%s: header counts %d documents, store holds %d", path, header.DocCount, len(stored.Docs))
	}

	r := &Reader{
		path:         path,
		header:       header,
		contentField: stored.ContentField,
		stored:       stored.Docs,
		postings:     data[header.PostOffset : header.PostOffset+header.PostSize],
	}
	if header.DictSize > 0 {
		fst, err := vellum.Load(data[header.DictOffset : header.DictOffset+header.DictSize])
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCorruptSegment, err, "loading term dictionary")
		}
		r.dict = fst
	}
	return r, nil
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Header() Header { return r.header }

func (r *Reader) DocCount() int { return int(r.header.DocCount) }

func (r *Reader) TermCount() int { return int(r.header.TermCount) }

func (r *Reader) TrackPositions() bool { return r.header.TrackPositions() }

func (r *Reader) ContentField() string { return r.contentField }

func (r *Reader) CreatedAt() time.Time { return time.Unix(0, r.header.CreatedAt) }

// Postings returns the postings of an exact term, or nil when the term is
// not in the dictionary.
func (r *Reader) Postings(term string) (index.PostingList, error) {
	if r.dict == nil {
		return nil, nil
	}
	off, ok, err := r.dict.Get([]byte(term))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCorruptSegment, err, "dictionary lookup")
	}
	if !ok {
		return nil, nil
	}
	if off >= uint64(len(r.postings)) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "term %q points past postings", term)
	}
	entry, _, err := decodeTermAt(r.postings, int(off), r.TrackPositions())
	if err != nil {
		return nil, err
	}
	if entry.Term != term {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment, "dictionary maps %q to record of %q", term, entry.Term)
	}
	return entry.Postings, nil
}

// StoredFields returns the stored fields of a document.
func (r *Reader) StoredFields(id document.ID) (map[string]string, bool) {
	seg := index.Segment{Stored: r.stored}
	return seg.StoredFields(id)
}

// Terms returns every term in dictionary order.
func (r *Reader) Terms() ([]string, error) {
	entries, err := r.entries()
	if err != nil {
		return nil, err
	}
	terms := make([]string, len(entries))
	for i, e := range entries {
		terms[i] = e.Term
	}
	return terms, nil
}

// Load decodes the whole segment back into its in-memory form.
func (r *Reader) Load() (*index.Segment, error) {
	entries, err := r.entries()
	if err != nil {
		return nil, err
	}
	return &index.Segment{
		DocCount:       r.DocCount(),
		ContentField:   r.contentField,
		TrackPositions: r.TrackPositions(),
		Terms:          entries,
		Stored:         r.stored,
	}, nil
}

func (r *Reader) entries() ([]index.TermEntry, error) {
	entries := make([]index.TermEntry, 0, r.header.TermCount)
	off := 0
	for off < len(r.postings) {
		entry, next, err := decodeTermAt(r.postings, off, r.TrackPositions())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		off = next
	}
	if len(entries) != int(r.header.TermCount) {
		return nil, apperrors.Newf(apperrors.ErrCorruptSegment,
			"header counts %d terms, postings hold %d", r.header.TermCount, len(entries))
	}
	return entries, nil
}

// Close releases the term dictionary.
func (r *Reader) Close() error {
	if r.dict != nil {
		return r.dict.Close()
	}
	return nil
}
