package blk

import (
	"encoding/binary"
	"fmt"
)

// WriterOptions define encode specific options.
type WriterOptions struct {
	// Variant is the target format layout.
	// Default: FormatFat.
	Variant FormatVariant

	// NameMap is the shared name table that slim variants resolve their
	// names against. Every block and field name of the tree must be
	// present in it. Ignored by fat variants.
	NameMap *NameMap

	// Dict is the raw zstd dictionary required by FormatSlimZstdDict.
	Dict []byte
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}
	if oo.Variant == 0 {
		oo.Variant = FormatFat
	}
	return &oo
}

// Encode serializes a block tree into the chosen format variant. Encoding
// is deterministic: the name table is rebuilt in a stable first-seen
// traversal order, so the same tree always yields the same bytes (and a
// tree decoded from bytes this package produced re-encodes byte-exactly).
func Encode(root *Block, o *WriterOptions) ([]byte, error) {
	oo := o.norm()
	if !oo.Variant.isValid() {
		return nil, fmt.Errorf("blk: cannot encode unknown variant 0x%02X", byte(oo.Variant))
	}
	if root == nil {
		return nil, fmt.Errorf("blk: cannot encode a nil tree")
	}
	if root.Name != "" {
		return nil, fmt.Errorf("blk: the root block must be unnamed, got %q", root.Name)
	}
	slim := oo.Variant.IsSlim()
	if slim && oo.NameMap == nil {
		return nil, ErrMissingNameMap
	}
	if oo.Variant == FormatSlimZstdDict && oo.Dict == nil {
		return nil, fmt.Errorf("blk: no dictionary supplied for %s", oo.Variant)
	}

	// Flatten breadth-first; children of one block stay contiguous and
	// always follow their parent.
	flat := []*Block{root}
	firstChild := make([]int, 1, 16)
	for i := 0; i < len(flat); i++ {
		if len(flat[i].Blocks) > 0 {
			firstChild[i] = len(flat)
			flat = append(flat, flat[i].Blocks...)
			firstChild = append(firstChild, make([]int, len(flat[i].Blocks))...)
		}
	}

	// Resolve every name in flat order: the block's own name first, its
	// field names after. For fat targets this interning order IS the
	// emitted table order.
	var names *NameTable
	if slim {
		names = oo.NameMap.table
	} else {
		names = newNameTable(16)
	}
	blockNames := make([]int, len(flat)) // index+1, 0 = unnamed
	fieldNames := make([]int, 0, 64)
	for i, b := range flat {
		if i > 0 && b.Name != "" {
			idx, err := resolveName(names, b.Name, slim)
			if err != nil {
				return nil, err
			}
			blockNames[i] = idx + 1
		}
		for _, f := range b.Fields {
			idx, err := resolveName(names, f.Name, slim)
			if err != nil {
				return nil, err
			}
			fieldNames = append(fieldNames, idx)
		}
	}
	if !slim && names.Len() > 0xFFFFFF {
		return nil, fmt.Errorf("blk: %d names exceed the 3-byte index space", names.Len())
	}

	// Emit value payloads and the data blob.
	enc := valueEncoder{}
	if slim {
		enc.names = names
	}
	type fieldRec struct {
		tag     Tag
		payload [4]byte
	}
	recs := make([]fieldRec, 0, len(fieldNames))
	for _, b := range flat {
		for _, f := range b.Fields {
			tag, payload, err := enc.encode(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			recs = append(recs, fieldRec{tag: tag, payload: payload})
		}
	}

	// Assemble the body regions.
	var body []byte
	if !slim {
		region := appendNameRegion(nil, names)
		body = appendUvarint(body, uint64(names.Len()))
		body = appendUvarint(body, uint64(len(region)))
		body = append(body, region...)
	}
	body = appendUvarint(body, uint64(len(flat)))
	body = appendUvarint(body, uint64(len(recs)))
	body = appendUvarint(body, uint64(len(enc.blob)))
	body = append(body, enc.blob...)

	if slim {
		w := indexWidth(names.Len())
		bw := bitWriter{}
		for _, idx := range fieldNames {
			bw.write(uint32(idx), w)
		}
		body = append(body, bw.bytes()...)
		for _, rec := range recs {
			body = append(body, byte(rec.tag))
			body = append(body, rec.payload[:]...)
		}
		bw = bitWriter{}
		for _, ref := range blockNames {
			if ref == 0 {
				bw.write(0, 1)
				continue
			}
			bw.write(1, 1)
			bw.write(uint32(ref-1), w)
		}
		body = append(body, bw.bytes()...)
	} else {
		for i, rec := range recs {
			idx := fieldNames[i]
			body = append(body, byte(idx), byte(idx>>8), byte(idx>>16), byte(rec.tag))
			body = append(body, rec.payload[:]...)
		}
	}

	for i, b := range flat {
		if !slim {
			body = appendUvarint(body, uint64(blockNames[i]))
		}
		body = appendUvarint(body, uint64(len(b.Fields)))
		body = appendUvarint(body, uint64(len(b.Blocks)))
		if len(b.Blocks) > 0 {
			body = appendUvarint(body, uint64(firstChild[i]))
		}
	}

	// Prepend the magic byte, compressing the body if the variant asks
	// for it.
	out := []byte{byte(oo.Variant)}
	if !oo.Variant.IsCompressed() {
		return append(out, body...), nil
	}

	var dict []byte
	if oo.Variant == FormatSlimZstdDict {
		dict = oo.Dict
	}
	compressed, err := zstdCompress(body, dict)
	if err != nil {
		return nil, err
	}
	out = appendUvarint(out, uint64(len(body)))
	return append(out, compressed...), nil
}

// resolveName returns the table index for a name, interning it for fat
// targets and requiring shared-map membership for slim ones.
func resolveName(names *NameTable, s string, slim bool) (int, error) {
	if !slim {
		return names.intern(s), nil
	}
	idx, ok := names.Index(s)
	if !ok {
		return 0, fmt.Errorf("%w: name %q is not in the shared map", ErrMissingNameMap, s)
	}
	return idx, nil
}

func appendUvarint(dst []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(dst, tmp[:n]...)
}
