// Package index accumulates analyzed documents into an in-memory inverted
// index and freezes it into a Segment ready for persistence.
package index

import (
	"cmp"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Tokenizer      tokenizer.Tokenizer
	TrackPositions bool
	ContentField   string
}

type termPostings struct {
	postings PostingList
	// ascending stays true while docs arrive in increasing id order.
	ascending bool
}

// Builder owns the term dictionary, postings and stored fields of one build.
// It is not safe for concurrent use: submissions must be serialized by the
// caller.
type Builder struct {
	opts      BuilderOptions
	terms     map[string]*termPostings
	stored    map[document.ID]map[string]string
	seen      *roaring.Bitmap
	docCount  int
	size      int64
	finalized bool
}

func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokenizer.Default
	}
	if opts.ContentField == "" {
		opts.ContentField = document.DefaultContentField
	}
	return &Builder{
		opts:   opts,
		terms:  make(map[string]*termPostings),
		stored: make(map[document.ID]map[string]string),
		seen:   roaring.New(),
	}
}

// AddDocument tokenizes doc and adds it to the index.
func (b *Builder) AddDocument(doc *document.Document) error {
	if err := b.check(doc.ID); err != nil {
		return err
	}
	return b.AddAnalyzed(document.Analyze(doc, b.opts.Tokenizer, b.opts.TrackPositions))
}

// AddAnalyzed adds an already tokenized document. For every distinct term it
// appends one posting carrying the in-document frequency. Nothing is changed
// when an error is returned.
func (b *Builder) AddAnalyzed(a *document.Analyzed) error {
	if err := b.check(a.ID); err != nil {
		return err
	}
	b.seen.Add(uint32(a.ID))

	for term, ts := range a.Terms {
		if term == "" || ts.Frequency < 1 {
			continue
		}
		tp, exists := b.terms[term]
		if !exists {
			// Clone so the dictionary does not pin the source text.
			term = strings.Clone(term)
			tp = &termPostings{ascending: true}
			b.terms[term] = tp
			b.size += int64(len(term) + 64)
		}
		if n := len(tp.postings); n > 0 && tp.postings[n-1].DocID > a.ID {
			tp.ascending = false
		}
		p := Posting{DocID: a.ID, Frequency: ts.Frequency}
		if b.opts.TrackPositions {
			p.Positions = slices.Clone(ts.Positions)
		}
		tp.postings = append(tp.postings, p)
		b.size += int64(16 + len(p.Positions)*8)
	}

	fields := make(map[string]string, len(a.Stored))
	for k, v := range a.Stored {
		fields[k] = v
		b.size += int64(len(k) + len(v))
	}
	b.stored[a.ID] = fields
	b.docCount++
	return nil
}

func (b *Builder) check(id document.ID) error {
	if b.finalized {
		return apperrors.Newf(apperrors.ErrBuilderFinalized, "cannot add document %d", id)
	}
	if b.seen.Contains(uint32(id)) {
		return apperrors.Newf(apperrors.ErrDuplicateDocumentID, "document %d already added", id)
	}
	return nil
}

// DocumentCount returns the number of documents successfully added.
func (b *Builder) DocumentCount() int {
	return b.docCount
}

// TermCount returns the number of distinct terms seen so far.
func (b *Builder) TermCount() int {
	return len(b.terms)
}

// Size is a rough estimate of the memory held by the builder in bytes.
func (b *Builder) Size() int64 {
	return b.size
}

// Finalize freezes the builder and returns the sorted Segment. Any later
// AddDocument or Finalize call fails with ErrBuilderFinalized.
func (b *Builder) Finalize() (*Segment, error) {
	if b.finalized {
		return nil, apperrors.New(apperrors.ErrBuilderFinalized, "finalize called twice")
	}
	b.finalized = true

	entries := make([]TermEntry, 0, len(b.terms))
	for term, tp := range b.terms {
		if !tp.ascending {
			slices.SortFunc(tp.postings, func(x, y Posting) int {
				return cmp.Compare(x.DocID, y.DocID)
			})
		}
		entries = append(entries, TermEntry{Term: term, Postings: tp.postings})
	}
	slices.SortFunc(entries, func(x, y TermEntry) int {
		return strings.Compare(x.Term, y.Term)
	})

	stored := make([]StoredDocument, 0, len(b.stored))
	for id, fields := range b.stored {
		stored = append(stored, StoredDocument{DocID: id, Fields: fields})
	}
	slices.SortFunc(stored, func(x, y StoredDocument) int {
		return cmp.Compare(x.DocID, y.DocID)
	})

	seg := &Segment{
		DocCount:       b.docCount,
		ContentField:   b.opts.ContentField,
		TrackPositions: b.opts.TrackPositions,
		Terms:          entries,
		Stored:         stored,
	}
	b.terms = nil
	b.stored = nil
	return seg, nil
}
