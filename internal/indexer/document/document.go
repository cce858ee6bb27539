// Package document defines the indexable unit handed to the index builder
// and its tokenized form.
package document

import (
	"maps"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
)

// Stored field names populated by the pipeline for every file.
const (
	FieldFilename       = "filename"
	FieldFullPath       = "fullPath"
	DefaultContentField = "contents"
)

// ID identifies a document within one build. The unsigned type rules out
// negative ids; uniqueness is enforced by the builder.
type ID uint32

// Document holds stored fields, which are kept verbatim and never
// tokenized, and the content, which is tokenized and never stored.
type Document struct {
	ID           ID
	Stored       map[string]string
	ContentField string
	Content      string
}

// New builds a Document. It copies stored so later changes by the caller
// are not observed.
func New(id ID, stored map[string]string, contentField string, content string) *Document {
	if contentField == "" {
		contentField = DefaultContentField
	}
	return &Document{
		ID:           id,
		Stored:       maps.Clone(stored),
		ContentField: contentField,
		Content:      content,
	}
}

// TermStats is the per-document occurrence data of one term.
type TermStats struct {
	Frequency int
	Positions []int
}

// Analyzed is a tokenized document ready for submission. It no longer
// references the raw content.
type Analyzed struct {
	ID         ID
	Stored     map[string]string
	Terms      map[string]*TermStats
	TokenCount int
}

// Analyze tokenizes doc's content. It touches no shared state and may run
// concurrently for independent documents.
func Analyze(doc *Document, tok tokenizer.Tokenizer, trackPositions bool) *Analyzed {
	if tok == nil {
		tok = tokenizer.Default
	}
	a := &Analyzed{
		ID:     doc.ID,
		Stored: doc.Stored,
		Terms:  make(map[string]*TermStats),
	}
	for token := range tok.Tokenize(doc.Content) {
		ts, ok := a.Terms[token.Term]
		if !ok {
			ts = &TermStats{}
			a.Terms[token.Term] = ts
		}
		ts.Frequency++
		if trackPositions {
			ts.Positions = append(ts.Positions, token.Position)
		}
		a.TokenCount++
	}
	return a
}

// WithID returns a shallow copy of a carrying a different id. The pipeline
// uses it to assign ids at submission time.
func (a *Analyzed) WithID(id ID) *Analyzed {
	c := *a
	c.ID = id
	return &c
}
