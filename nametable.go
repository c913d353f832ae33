package blk

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"unicode/utf8"
)

// NameTable is an ordered, deduplicated list of strings referenced by
// 0-based index from field and block records. Once built it is never
// mutated; blocks and fields of a decoded tree share its entries instead
// of holding private copies.
type NameTable struct {
	names []string
	index map[string]int
}

func newNameTable(capacity int) *NameTable {
	return &NameTable{
		names: make([]string, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

// Len returns the number of table entries.
func (t *NameTable) Len() int { return len(t.names) }

// Name returns the entry at index i. The index must be in range.
func (t *NameTable) Name(i int) string { return t.names[i] }

// Index returns the index of s, if present.
func (t *NameTable) Index(s string) (int, bool) {
	i, ok := t.index[s]
	return i, ok
}

// intern returns the index of s, adding it to the table if absent.
func (t *NameTable) intern(s string) int {
	if i, ok := t.index[s]; ok {
		return i
	}
	i := len(t.names)
	t.names = append(t.names, s)
	t.index[s] = i
	return i
}

// add appends s positionally, keeping duplicates. Decoded tables must
// preserve every on-disk entry so that record indices stay aligned.
func (t *NameTable) add(s string) {
	if _, ok := t.index[s]; !ok {
		t.index[s] = len(t.names)
	}
	t.names = append(t.names, s)
}

// indexWidth returns the number of bits used for every name index of a
// slim file addressing a table of n entries: ceil(log2(n)). A single-entry
// table needs no bits at all.
func indexWidth(n int) int {
	return bits.Len(uint(n - 1))
}

// parseNameRegion decodes a name region of count length-prefixed entries.
// Entry offsets are computed up front so that later index lookups are O(1)
// slice accesses rather than scans.
func parseNameRegion(region []byte, count int) (*NameTable, error) {
	// Every entry occupies at least its length byte; a larger count cannot
	// be honest and must not size any allocation.
	if count < 0 || count > len(region) {
		return nil, fmt.Errorf("%w: %d entries in a region of %d bytes", ErrMalformedName, count, len(region))
	}
	offs := make([]int, count+1)
	pos := 0
	for i := 0; i < count; i++ {
		offs[i] = pos
		n, sz := binary.Uvarint(region[pos:])
		if sz <= 0 {
			return nil, fmt.Errorf("%w: truncated length of entry %d", ErrMalformedName, i)
		}
		pos += sz
		if n > uint64(len(region)-pos) {
			return nil, fmt.Errorf("%w: entry %d of %d bytes leaves the region", ErrMalformedName, i, n)
		}
		pos += int(n)
	}
	offs[count] = pos
	if pos != len(region) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d entries", ErrMalformedName, len(region)-pos, count)
	}

	table := newNameTable(count)
	for i := 0; i < count; i++ {
		n, sz := binary.Uvarint(region[offs[i]:])
		raw := region[offs[i]+sz : offs[i]+sz+int(n)]
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("%w: entry %d is not valid UTF-8", ErrMalformedName, i)
		}
		table.add(string(raw))
	}
	return table, nil
}

// appendNameRegion appends the table's entries in order, each as a
// length-prefixed record.
func appendNameRegion(dst []byte, t *NameTable) []byte {
	var tmp [binary.MaxVarintLen64]byte
	for _, s := range t.names {
		n := binary.PutUvarint(tmp[:], uint64(len(s)))
		dst = append(dst, tmp[:n]...)
		dst = append(dst, s...)
	}
	return dst
}

// --------------------------------------------------------------------

// bitReader reads MSB-first bit-packed integers from a byte slice.
type bitReader struct {
	data []byte
	bit  int
}

// read consumes the next width bits. A width of zero yields 0 without
// consuming anything.
func (r *bitReader) read(width int) (uint32, error) {
	var v uint32
	for i := 0; i < width; i++ {
		byteIdx := r.bit >> 3
		if byteIdx >= len(r.data) {
			return 0, fmt.Errorf("%w: bit stream exhausted", ErrIndexOutOfBounds)
		}
		v <<= 1
		v |= uint32(r.data[byteIdx]>>(7-r.bit&7)) & 1
		r.bit++
	}
	return v, nil
}

// consumed returns the number of whole bytes covered by the bits read so
// far, i.e. the stream's padded length.
func (r *bitReader) consumed() int {
	return (r.bit + 7) >> 3
}

// bitWriter writes MSB-first bit-packed integers.
type bitWriter struct {
	buf  []byte
	bits int
}

func (w *bitWriter) write(v uint32, width int) {
	for i := width - 1; i >= 0; i-- {
		if w.bits&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 != 0 {
			w.buf[w.bits>>3] |= 1 << (7 - w.bits&7)
		}
		w.bits++
	}
}

// bytes returns the stream zero-padded to a byte boundary.
func (w *bitWriter) bytes() []byte { return w.buf }

// --------------------------------------------------------------------

// nameMapDigestSize is the size of the opaque digest header of an encoded
// name map file: an 8-byte names digest followed by a 32-byte dictionary
// digest. Neither is verified here.
const nameMapDigestSize = 8 + 32

// NameMap is the shared name table consulted by slim files. It is built
// once, is immutable afterwards and is safe to share across concurrent
// decode calls.
type NameMap struct {
	table *NameTable
}

// NewNameMap builds a name map from an ordered list of names. Duplicates
// collapse onto their first occurrence.
func NewNameMap(names []string) (*NameMap, error) {
	table := newNameTable(len(names))
	for i, s := range names {
		if !utf8.ValidString(s) {
			return nil, fmt.Errorf("%w: entry %d is not valid UTF-8", ErrMalformedName, i)
		}
		table.intern(s)
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedName)
	}
	return &NameMap{table: table}, nil
}

// ParseNameMap decodes a shared name map ("nm") file: the digest header
// followed by a zstd frame holding an entry count, a region size and the
// name region. dict is the optional raw decoder dictionary and may be nil.
func ParseNameMap(data, dict []byte) (*NameMap, error) {
	if len(data) < nameMapDigestSize {
		return nil, fmt.Errorf("%w: name map of %d bytes is shorter than its digest header", ErrMalformedName, len(data))
	}

	// Name map bodies carry no declared size; real maps are a few
	// megabytes, so inflation is capped well above that.
	body, err := zstdDecompressAll(data[nameMapDigestSize:], dict, 1<<28)
	if err != nil {
		return nil, err
	}

	count, sz := binary.Uvarint(body)
	if sz <= 0 {
		return nil, fmt.Errorf("%w: truncated entry count", ErrMalformedName)
	}
	if count > math.MaxInt32 {
		return nil, fmt.Errorf("%w: implausible entry count %d", ErrMalformedName, count)
	}
	body = body[sz:]
	size, sz := binary.Uvarint(body)
	if sz <= 0 {
		return nil, fmt.Errorf("%w: truncated region size", ErrMalformedName)
	}
	body = body[sz:]
	if size != uint64(len(body)) {
		return nil, fmt.Errorf("%w: region size %d disagrees with %d remaining bytes", ErrMalformedName, size, len(body))
	}

	table, err := parseNameRegion(body, int(count))
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedName)
	}
	return &NameMap{table: table}, nil
}

// Len returns the number of shared names.
func (m *NameMap) Len() int { return m.table.Len() }

// Name returns the shared name at index i.
func (m *NameMap) Name(i int) string { return m.table.Name(i) }

// Index returns the index of s, if present.
func (m *NameMap) Index(s string) (int, bool) { return m.table.Index(s) }

// Encode serializes the map into the "nm" file layout. The digest header
// is written as zeroes since decoders do not verify it. dict is the
// optional raw encoder dictionary and may be nil.
func (m *NameMap) Encode(dict []byte) ([]byte, error) {
	var tmp [binary.MaxVarintLen64]byte
	region := appendNameRegion(nil, m.table)

	body := make([]byte, 0, len(region)+2*binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp[:], uint64(m.table.Len()))
	body = append(body, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(len(region)))
	body = append(body, tmp[:n]...)
	body = append(body, region...)

	compressed, err := zstdCompress(body, dict)
	if err != nil {
		return nil, err
	}

	out := make([]byte, nameMapDigestSize, nameMapDigestSize+len(compressed))
	return append(out, compressed...), nil
}
