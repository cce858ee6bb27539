package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/blevesearch/vellum"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

// MagicBytes identifies a segment file ("TIDX").
const (
	MagicBytes    uint32 = 0x58444954
	FormatVersion uint32 = 1
	HeaderSize    int    = 80
	FooterSize    int    = 8
)

const flagPositions uint32 = 1 << 0

const (
	codecRaw byte = 0
	codecLZ4 byte = 1
)

// Header is the fixed-size header written at the start of every segment.
//
//	0  magic        u32
//	4  version      u32
//	8  flags        u32
//	12 docCount     u32
//	16 termCount    u32
//	20 reserved     u32
//	24 createdAt    i64 (unix nanos)
//	32 storedOffset u64, 40 storedSize u64
//	48 postOffset   u64, 56 postSize   u64
//	64 dictOffset   u64, 72 dictSize   u64
type Header struct {
	Magic        uint32
	Version      uint32
	Flags        uint32
	DocCount     uint32
	TermCount    uint32
	CreatedAt    int64
	StoredOffset int64
	StoredSize   int64
	PostOffset   int64
	PostSize     int64
	DictOffset   int64
	DictSize     int64
}

func (h Header) TrackPositions() bool {
	return h.Flags&flagPositions != 0
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint32(buf[16:20], h.TermCount)
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.StoredSize))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(h.DictSize))
	return buf
}

// decodeHeader validates magic and version before trusting any other field.
func decodeHeader(data []byte) (Header, error) {
	if len(data) < 8 {
		return Header{}, apperrors.Newf(apperrors.ErrCorruptSegment, "file too short (%d bytes)", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return Header{}, apperrors.Newf(apperrors.ErrCorruptSegment, "bad magic bytes %x", magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return Header{}, apperrors.Newf(apperrors.ErrFormatVersionMismatch,
			"segment version %d, supported version %d", version, FormatVersion)
	}
	if len(data) < HeaderSize+FooterSize {
		return Header{}, apperrors.Newf(apperrors.ErrCorruptSegment, "file too short (%d bytes)", len(data))
	}
	h := Header{
		Magic:        magic,
		Version:      version,
		Flags:        binary.LittleEndian.Uint32(data[8:12]),
		DocCount:     binary.LittleEndian.Uint32(data[12:16]),
		TermCount:    binary.LittleEndian.Uint32(data[16:20]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(data[24:32])),
		StoredOffset: int64(binary.LittleEndian.Uint64(data[32:40])),
		StoredSize:   int64(binary.LittleEndian.Uint64(data[40:48])),
		PostOffset:   int64(binary.LittleEndian.Uint64(data[48:56])),
		PostSize:     int64(binary.LittleEndian.Uint64(data[56:64])),
		DictOffset:   int64(binary.LittleEndian.Uint64(data[64:72])),
		DictSize:     int64(binary.LittleEndian.Uint64(data[72:80])),
	}
	bodyEnd := int64(len(data) - FooterSize)
	for _, sec := range [][2]int64{
		{h.StoredOffset, h.StoredSize},
		{h.PostOffset, h.PostSize},
		{h.DictOffset, h.DictSize},
	} {
		if sec[0] < int64(HeaderSize) || sec[1] < 0 || sec[0]+sec[1] > bodyEnd {
			return Header{}, apperrors.Newf(apperrors.ErrCorruptSegment,
				"section [%d,+%d) out of bounds", sec[0], sec[1])
		}
	}
	return h, nil
}

type storedSection struct {
	ContentField string                 `msgpack:"cf"`
	Docs         []index.StoredDocument `msgpack:"docs"`
}

// encodeSegment serializes seg into a complete segment file image and
// returns it with its checksum.
func encodeSegment(seg *index.Segment, createdAt int64) ([]byte, uint32, error) {
	stored, err := encodeStored(seg)
	if err != nil {
		return nil, 0, err
	}
	postings, offsets := encodePostings(seg)
	dict, err := encodeDictionary(seg, offsets)
	if err != nil {
		return nil, 0, err
	}

	h := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		DocCount:  uint32(seg.DocCount),
		TermCount: uint32(len(seg.Terms)),
		CreatedAt: createdAt,
	}
	if seg.TrackPositions {
		h.Flags |= flagPositions
	}
	h.StoredOffset = int64(HeaderSize)
	h.StoredSize = int64(len(stored))
	h.PostOffset = h.StoredOffset + h.StoredSize
	h.PostSize = int64(len(postings))
	h.DictOffset = h.PostOffset + h.PostSize
	h.DictSize = int64(len(dict))

	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(stored) + len(postings) + len(dict) + FooterSize)
	buf.Write(h.encode())
	buf.Write(stored)
	buf.Write(postings)
	buf.Write(dict)

	checksum := crc32.ChecksumIEEE(buf.Bytes())
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	buf.Write(footer)
	return buf.Bytes(), checksum, nil
}

func encodeStored(seg *index.Segment) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// Stored fields are maps; sorted keys keep segment bytes reproducible.
	enc.SetSortMapKeys(true)
	if err := enc.Encode(storedSection{ContentField: seg.ContentField, Docs: seg.Stored}); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerializationFailure, err, "encoding stored fields")
	}
	raw := buf.Bytes()
	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, compressed, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerializationFailure, err, "compressing stored fields")
	}
	out := make([]byte, 5, 5+len(raw))
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(raw)))
	// lz4 reports n == 0 for incompressible input.
	if n == 0 || n >= len(raw) {
		out[0] = codecRaw
		return append(out, raw...), nil
	}
	out[0] = codecLZ4
	return append(out, compressed[:n]...), nil
}

func decodeStored(data []byte) (storedSection, error) {
	var sec storedSection
	if len(data) < 5 {
		return sec, apperrors.New(apperrors.ErrCorruptSegment, "stored section truncated")
	}
	rawLen := int(binary.LittleEndian.Uint32(data[1:5]))
	payload := data[5:]
	switch data[0] {
	case codecRaw:
		if len(payload) != rawLen {
			return sec, apperrors.Newf(apperrors.ErrCorruptSegment, "stored section length %d, want %d", len(payload), rawLen)
		}
	case codecLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return sec, apperrors.Wrap(apperrors.ErrCorruptSegment, err, "decompressing stored fields")
		}
		if n != rawLen {
			return sec, apperrors.Newf(apperrors.ErrCorruptSegment, "stored section decompressed to %d bytes, want %d", n, rawLen)
		}
		payload = raw
	default:
		return sec, apperrors.Newf(apperrors.ErrCorruptSegment, "unknown stored codec %d", data[0])
	}
	if err := msgpack.Unmarshal(payload, &sec); err != nil {
		return sec, apperrors.Wrap(apperrors.ErrCorruptSegment, err, "decoding stored fields")
	}
	return sec, nil
}

// encodePostings writes every term record in dictionary order and returns
// the offset of each record within the section.
func encodePostings(seg *index.Segment) ([]byte, []uint64) {
	buf := make([]byte, 0, 64*len(seg.Terms))
	offsets := make([]uint64, len(seg.Terms))
	for i, entry := range seg.Terms {
		offsets[i] = uint64(len(buf))
		buf = binary.AppendUvarint(buf, uint64(len(entry.Term)))
		buf = append(buf, entry.Term...)
		buf = binary.AppendUvarint(buf, uint64(len(entry.Postings)))
		var prev document.ID
		for j, p := range entry.Postings {
			delta := uint64(p.DocID)
			if j > 0 {
				delta = uint64(p.DocID - prev)
			}
			prev = p.DocID
			buf = binary.AppendUvarint(buf, delta)
			buf = binary.AppendUvarint(buf, uint64(p.Frequency))
			if seg.TrackPositions {
				last := 0
				for _, pos := range p.Positions {
					buf = binary.AppendUvarint(buf, uint64(pos-last))
					last = pos
				}
			}
		}
	}
	return buf, offsets
}

// decodeTermAt reads the term record starting at off and returns it along
// with the offset of the next record.
func decodeTermAt(data []byte, off int, positions bool) (index.TermEntry, int, error) {
	var entry index.TermEntry
	next := func() (uint64, error) {
		if off >= len(data) {
			return 0, apperrors.Newf(apperrors.ErrCorruptSegment, "postings truncated at offset %d", off)
		}
		v, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return 0, apperrors.Newf(apperrors.ErrCorruptSegment, "bad varint at offset %d", off)
		}
		off += n
		return v, nil
	}

	termLen, err := next()
	if err != nil {
		return entry, 0, err
	}
	if uint64(len(data)-off) < termLen {
		return entry, 0, apperrors.Newf(apperrors.ErrCorruptSegment, "term overruns postings at offset %d", off)
	}
	entry.Term = string(data[off : off+int(termLen)])
	off += int(termLen)

	count, err := next()
	if err != nil {
		return entry, 0, err
	}
	if count > uint64(len(data)) {
		return entry, 0, apperrors.Newf(apperrors.ErrCorruptSegment, "implausible postings count %d for %q", count, entry.Term)
	}
	entry.Postings = make(index.PostingList, 0, count)
	var doc uint64
	for j := uint64(0); j < count; j++ {
		delta, err := next()
		if err != nil {
			return entry, 0, err
		}
		if j == 0 {
			doc = delta
		} else {
			doc += delta
		}
		freq, err := next()
		if err != nil {
			return entry, 0, err
		}
		p := index.Posting{DocID: document.ID(doc), Frequency: int(freq)}
		if positions {
			if freq > uint64(len(data)) {
				return entry, 0, apperrors.Newf(apperrors.ErrCorruptSegment, "implausible frequency %d for %q", freq, entry.Term)
			}
			p.Positions = make([]int, 0, freq)
			last := 0
			for k := uint64(0); k < freq; k++ {
				d, err := next()
				if err != nil {
					return entry, 0, err
				}
				last += int(d)
				p.Positions = append(p.Positions, last)
			}
		}
		entry.Postings = append(entry.Postings, p)
	}
	return entry, off, nil
}

func encodeDictionary(seg *index.Segment, offsets []uint64) ([]byte, error) {
	if len(seg.Terms) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerializationFailure, err, "creating term dictionary")
	}
	for i, entry := range seg.Terms {
		if err := builder.Insert([]byte(entry.Term), offsets[i]); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrSerializationFailure, err, fmt.Sprintf("inserting term %q", entry.Term))
		}
	}
	if err := builder.Close(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSerializationFailure, err, "closing term dictionary")
	}
	return buf.Bytes(), nil
}
