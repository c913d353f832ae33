package blk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Smallest inflation cap handed to the decompressor. Frames may declare a
// window larger than a tiny body.
const minInflateCap = 1 << 20

// DecodeOptions configure a decode call.
type DecodeOptions struct {
	// NameMap is the shared name table consulted by slim variants.
	NameMap *NameMap

	// Dict is the raw zstd dictionary required by FormatSlimZstdDict.
	Dict []byte
}

func (o *DecodeOptions) norm() *DecodeOptions {
	var oo DecodeOptions
	if o != nil {
		oo = *o
	}
	return &oo
}

// Decode parses the full byte content of a block file into an owned tree.
// The returned tree holds no references into data; a decode either
// completes or fails, partial trees are never returned.
func Decode(data []byte, o *DecodeOptions) (*Block, error) {
	oo := o.norm()

	variant, offset, err := DetectFormat(data)
	if err != nil {
		return nil, err
	}
	body := data[offset:]

	if variant.IsCompressed() {
		declared, n := binary.Uvarint(body)
		if n <= 0 {
			return nil, fmt.Errorf("%w: truncated compressed-size header", ErrIndexOutOfBounds)
		}

		var dict []byte
		if variant == FormatSlimZstdDict {
			if oo.Dict == nil {
				return nil, fmt.Errorf("%w: no dictionary supplied for %s", ErrDecompression, variant)
			}
			dict = oo.Dict
		}

		// Inflation is capped near the declared size. The floor keeps
		// foreign frames that declare a full-sized window decodable.
		limit := declared
		if limit < minInflateCap {
			limit = minInflateCap
		}
		if body, err = zstdDecompressAll(body[n:], dict, limit); err != nil {
			return nil, err
		}
		if uint64(len(body)) != declared {
			return nil, fmt.Errorf("%w: declared %d bytes, inflated to %d", ErrLengthMismatch, declared, len(body))
		}
	}

	return decodeBody(body, variant.IsSlim(), oo.NameMap)
}

// decodeBody splits an uncompressed body into its regions, parses the flat
// record arrays and assembles the block tree.
func decodeBody(body []byte, slim bool, nm *NameMap) (*Block, error) {
	c := &cursor{data: body}

	var names *NameTable
	if slim {
		if nm == nil {
			return nil, ErrMissingNameMap
		}
		names = nm.table
	} else {
		nameCount, err := c.count()
		if err != nil {
			return nil, err
		}
		nameSize, err := c.count()
		if err != nil {
			return nil, err
		}
		region, err := c.bytes(nameSize)
		if err != nil {
			return nil, err
		}
		if names, err = parseNameRegion(region, nameCount); err != nil {
			return nil, err
		}
	}

	blockCount, err := c.count()
	if err != nil {
		return nil, err
	}
	fieldCount, err := c.count()
	if err != nil {
		return nil, err
	}
	dataSize, err := c.count()
	if err != nil {
		return nil, err
	}
	blob, err := c.bytes(dataSize)
	if err != nil {
		return nil, err
	}

	fields, err := decodeFields(c, fieldCount, blob, names, slim)
	if err != nil {
		return nil, err
	}

	if blockCount == 0 {
		return nil, fmt.Errorf("%w: file contains no block records", ErrIndexOutOfBounds)
	}
	flat, err := decodeBlockRecords(c, blockCount, names, slim)
	if err != nil {
		return nil, err
	}
	if c.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after block records", ErrIndexOutOfBounds, c.remaining())
	}

	return buildTree(flat, fields)
}

// decodeFields parses the field record region into decoded fields.
func decodeFields(c *cursor, count int, blob []byte, names *NameTable, slim bool) ([]Field, error) {
	recSize := 8 // 3-byte name index, tag, payload
	if slim {
		recSize = 5 // tag, payload
	}
	if count > c.remaining()/recSize {
		return nil, fmt.Errorf("%w: %d field records in %d remaining bytes", ErrIndexOutOfBounds, count, c.remaining())
	}
	indices := make([]int, count)

	if slim {
		w := indexWidth(names.Len())
		stream, err := c.bytes((count*w + 7) / 8)
		if err != nil {
			return nil, err
		}
		br := bitReader{data: stream}
		for i := range indices {
			idx, err := br.read(w)
			if err != nil {
				return nil, err
			}
			indices[i] = int(idx)
		}
	}

	recs, err := c.bytes(count * recSize)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, count)
	for i := range fields {
		rec := recs[i*recSize : (i+1)*recSize]
		idx := indices[i]
		if !slim {
			idx = int(uint32(rec[0]) | uint32(rec[1])<<8 | uint32(rec[2])<<16)
			rec = rec[3:]
		}
		if idx >= names.Len() {
			return nil, fmt.Errorf("%w: field %d name index %d in a table of %d", ErrIndexOutOfBounds, i, idx, names.Len())
		}

		v, err := decodeValue(Tag(rec[0]), rec[1:5], blob, names, slim)
		if err != nil {
			return nil, err
		}
		fields[i] = Field{Name: names.Name(idx), Value: v}
	}
	return fields, nil
}

// flatBlock is one block record before tree assembly.
type flatBlock struct {
	name       string
	fieldCount int
	firstField int
	childCount int
	firstChild int
}

// decodeBlockRecords parses the block record region into the flat block
// arena.
func decodeBlockRecords(c *cursor, count int, names *NameTable, slim bool) ([]flatBlock, error) {
	if count > c.remaining() {
		return nil, fmt.Errorf("%w: %d block records in %d remaining bytes", ErrIndexOutOfBounds, count, c.remaining())
	}
	flat := make([]flatBlock, count)

	if slim {
		w := indexWidth(names.Len())
		br := bitReader{data: c.data[c.pos:]}
		for i := range flat {
			present, err := br.read(1)
			if err != nil {
				return nil, err
			}
			if present == 0 {
				continue
			}
			if i == 0 {
				return nil, fmt.Errorf("%w: root block record carries a name", ErrIndexOutOfBounds)
			}
			idx, err := br.read(w)
			if err != nil {
				return nil, err
			}
			if int(idx) >= names.Len() {
				return nil, fmt.Errorf("%w: block %d name index %d in a table of %d", ErrIndexOutOfBounds, i, idx, names.Len())
			}
			flat[i].name = names.Name(int(idx))
		}
		if _, err := c.bytes(br.consumed()); err != nil {
			return nil, err
		}
	}

	for i := range flat {
		if !slim {
			ref, err := c.count()
			if err != nil {
				return nil, err
			}
			if ref > 0 {
				if i == 0 {
					return nil, fmt.Errorf("%w: root block record carries name reference %d", ErrIndexOutOfBounds, ref)
				}
				if ref-1 >= names.Len() {
					return nil, fmt.Errorf("%w: block %d name reference %d in a table of %d", ErrIndexOutOfBounds, i, ref, names.Len())
				}
				flat[i].name = names.Name(ref - 1)
			}
		}

		var err error
		if flat[i].fieldCount, err = c.count(); err != nil {
			return nil, err
		}
		if flat[i].childCount, err = c.count(); err != nil {
			return nil, err
		}
		if flat[i].childCount > 0 {
			if flat[i].firstChild, err = c.count(); err != nil {
				return nil, err
			}
		}
	}
	return flat, nil
}

// buildTree turns the flat block arena and the flat field array into the
// recursive tree, verifying that every record range is claimed exactly
// once.
func buildTree(flat []flatBlock, fields []Field) (*Block, error) {
	// Field records are claimed sequentially in block record order.
	pos := 0
	for i := range flat {
		if flat[i].fieldCount > len(fields)-pos {
			return nil, fmt.Errorf("%w: block %d claims %d fields, %d remain", ErrIndexOutOfBounds, i, flat[i].fieldCount, len(fields)-pos)
		}
		flat[i].firstField = pos
		pos += flat[i].fieldCount
	}
	if pos != len(fields) {
		return nil, fmt.Errorf("%w: %d field records claimed by no block", ErrOverlappingBlockRange, len(fields)-pos)
	}

	// Child ranges must cover every non-root block exactly once.
	claimed := make([]bool, len(flat))
	claimed[0] = true
	for i := range flat {
		fb := flat[i]
		if fb.childCount == 0 {
			continue
		}
		if fb.firstChild < 1 || fb.childCount > len(flat)-fb.firstChild {
			return nil, fmt.Errorf("%w: block %d claims children %d..%d of %d", ErrIndexOutOfBounds, i, fb.firstChild, fb.firstChild+fb.childCount, len(flat))
		}
		// Children always follow their parent; a backward reference would
		// make the record graph cyclic.
		if fb.firstChild <= i {
			return nil, fmt.Errorf("%w: block %d claims children starting at %d", ErrOverlappingBlockRange, i, fb.firstChild)
		}
		for j := fb.firstChild; j < fb.firstChild+fb.childCount; j++ {
			if claimed[j] {
				return nil, fmt.Errorf("%w: block %d claimed twice", ErrOverlappingBlockRange, j)
			}
			claimed[j] = true
		}
	}
	for i, ok := range claimed {
		if !ok {
			return nil, fmt.Errorf("%w: block %d claimed by no parent", ErrOverlappingBlockRange, i)
		}
	}

	var build func(i, depth int) (*Block, error)
	build = func(i, depth int) (*Block, error) {
		if depth > maxDepth {
			return nil, ErrMaxDepthExceeded
		}
		fb := flat[i]
		b := &Block{Name: fb.name}
		if fb.fieldCount > 0 {
			// Three-index slice: appending to one block's fields must
			// never leak into a sibling's range.
			b.Fields = fields[fb.firstField : fb.firstField+fb.fieldCount : fb.firstField+fb.fieldCount]
		}
		for j := fb.firstChild; j < fb.firstChild+fb.childCount; j++ {
			child, err := build(j, depth+1)
			if err != nil {
				return nil, err
			}
			b.Blocks = append(b.Blocks, child)
		}
		return b, nil
	}
	return build(0, 1)
}

// --------------------------------------------------------------------

// cursor is a bounds-checked reader over one contiguous region.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.data[c.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated varint at offset %d", ErrIndexOutOfBounds, c.pos)
	}
	c.pos += n
	return v, nil
}

// count reads a varint that is used as a count, size or index and must fit
// a sane int.
func (c *cursor) count() (int, error) {
	v, err := c.uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: implausible count %d at offset %d", ErrIndexOutOfBounds, v, c.pos)
	}
	return int(v), nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, fmt.Errorf("%w: %d bytes at offset %d of %d", ErrIndexOutOfBounds, n, c.pos, len(c.data))
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) remaining() int { return len(c.data) - c.pos }
