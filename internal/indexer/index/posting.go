package index

import (
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// Posting records the occurrences of one term in one document.
type Posting struct {
	DocID     document.ID
	Frequency int
	Positions []int
}

type PostingList []Posting

// TermEntry pairs a term with its postings, ascending by DocID.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// StoredDocument is one entry of the stored field store.
type StoredDocument struct {
	DocID  document.ID       `msgpack:"id"`
	Fields map[string]string `msgpack:"f"`
}

// Segment is the frozen result of one build: a sorted term dictionary with
// postings plus the stored field store.
type Segment struct {
	DocCount       int
	ContentField   string
	TrackPositions bool
	Terms          []TermEntry
	Stored         []StoredDocument
}

// Lookup returns the postings of term, or nil when the term is absent.
func (s *Segment) Lookup(term string) PostingList {
	i := sort.Search(len(s.Terms), func(i int) bool {
		return s.Terms[i].Term >= term
	})
	if i >= len(s.Terms) || s.Terms[i].Term != term {
		return nil
	}
	return s.Terms[i].Postings
}

// StoredFields returns the stored fields of id.
func (s *Segment) StoredFields(id document.ID) (map[string]string, bool) {
	i, found := slices.BinarySearchFunc(s.Stored, id, func(d StoredDocument, id document.ID) int {
		switch {
		case d.DocID < id:
			return -1
		case d.DocID > id:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return nil, false
	}
	return s.Stored[i].Fields, true
}

// Validate checks the structural invariants a segment must satisfy before it
// is serialized. Violations are reported as ErrSerializationFailure.
func (s *Segment) Validate() error {
	if s.DocCount != len(s.Stored) {
		return apperrors.Newf(apperrors.ErrSerializationFailure,
			"document count %d does not match %d stored documents", s.DocCount, len(s.Stored))
	}
	known := make(map[document.ID]struct{}, len(s.Stored))
	for i, d := range s.Stored {
		if i > 0 && s.Stored[i-1].DocID >= d.DocID {
			return apperrors.Newf(apperrors.ErrSerializationFailure,
				"stored documents not strictly ascending at doc %d", d.DocID)
		}
		known[d.DocID] = struct{}{}
	}
	for i, entry := range s.Terms {
		if entry.Term == "" {
			return apperrors.New(apperrors.ErrSerializationFailure, "empty term in dictionary")
		}
		if i > 0 && strings.Compare(s.Terms[i-1].Term, entry.Term) >= 0 {
			return apperrors.Newf(apperrors.ErrSerializationFailure,
				"dictionary not strictly ascending at term %q", entry.Term)
		}
		if len(entry.Postings) == 0 {
			return apperrors.Newf(apperrors.ErrSerializationFailure, "term %q has no postings", entry.Term)
		}
		for j, p := range entry.Postings {
			if j > 0 && entry.Postings[j-1].DocID >= p.DocID {
				return apperrors.Newf(apperrors.ErrSerializationFailure,
					"postings for %q not strictly ascending at doc %d", entry.Term, p.DocID)
			}
			if p.Frequency < 1 {
				return apperrors.Newf(apperrors.ErrSerializationFailure,
					"term %q doc %d has frequency %d", entry.Term, p.DocID, p.Frequency)
			}
			if _, ok := known[p.DocID]; !ok {
				return apperrors.Newf(apperrors.ErrSerializationFailure,
					"term %q references unknown doc %d", entry.Term, p.DocID)
			}
			if err := s.validatePositions(entry.Term, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Segment) validatePositions(term string, p Posting) error {
	if !s.TrackPositions {
		if len(p.Positions) != 0 {
			return apperrors.Newf(apperrors.ErrSerializationFailure,
				"term %q doc %d carries positions but tracking is off", term, p.DocID)
		}
		return nil
	}
	if len(p.Positions) != p.Frequency {
		return apperrors.Newf(apperrors.ErrSerializationFailure,
			"term %q doc %d has %d positions for frequency %d", term, p.DocID, len(p.Positions), p.Frequency)
	}
	for k, pos := range p.Positions {
		if pos < 0 || (k > 0 && p.Positions[k-1] >= pos) {
			return apperrors.Newf(apperrors.ErrSerializationFailure,
				"term %q doc %d positions not strictly ascending", term, p.DocID)
		}
	}
	return nil
}
