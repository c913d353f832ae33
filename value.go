package blk

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag identifies the kind of a field value. The on-disk byte width of a
// value is fully determined by its tag.
type Tag byte

// Supported value tags.
const (
	TagStr     Tag = 0x01
	TagInt     Tag = 0x02
	TagFloat   Tag = 0x03
	TagFloat2  Tag = 0x04
	TagFloat3  Tag = 0x05
	TagFloat4  Tag = 0x06
	TagInt2    Tag = 0x07
	TagInt3    Tag = 0x08
	TagBool    Tag = 0x09
	TagColor   Tag = 0x0A
	TagFloat12 Tag = 0x0B
	TagLong    Tag = 0x0C
)

// blobWidth returns the number of blob bytes a tag occupies, or 0 for tags
// whose value lives inline in the record payload. Strings are handled
// separately because their width is not fixed.
func (t Tag) blobWidth() int {
	switch t {
	case TagFloat2, TagInt2, TagLong:
		return 8
	case TagFloat3, TagInt3:
		return 12
	case TagFloat4:
		return 16
	case TagFloat12:
		return 48
	}
	return 0
}

// Value is one typed field value.
type Value interface {
	// Tag returns the type tag the value is encoded with.
	Tag() Tag
}

// The supported value kinds.
type (
	Str     string
	Int     int32
	Long    int64
	Float   float32
	Float2  [2]float32
	Float3  [3]float32
	Float4  [4]float32
	Int2    [2]int32
	Int3    [3]int32
	Bool    bool
	Float12 [12]float32
)

// Color is an RGBA color. On disk the channels are stored in BGRA order.
type Color struct {
	R, G, B, A uint8
}

func (Str) Tag() Tag     { return TagStr }
func (Int) Tag() Tag     { return TagInt }
func (Long) Tag() Tag    { return TagLong }
func (Float) Tag() Tag   { return TagFloat }
func (Float2) Tag() Tag  { return TagFloat2 }
func (Float3) Tag() Tag  { return TagFloat3 }
func (Float4) Tag() Tag  { return TagFloat4 }
func (Int2) Tag() Tag    { return TagInt2 }
func (Int3) Tag() Tag    { return TagInt3 }
func (Bool) Tag() Tag    { return TagBool }
func (Color) Tag() Tag   { return TagColor }
func (Float12) Tag() Tag { return TagFloat12 }

// nameMapBit marks a string payload as an index into the shared name table
// rather than a blob offset. Only valid in slim files.
const nameMapBit = 1 << 31

// blobSlice bounds-checks and slices n bytes at off from the data blob.
func blobSlice(blob []byte, off uint32, n int) ([]byte, error) {
	if int64(off)+int64(n) > int64(len(blob)) {
		return nil, fmt.Errorf("%w: %d+%d bytes in a blob of %d", ErrBlobRange, off, n, len(blob))
	}
	return blob[off : int(off)+n], nil
}

// decodeValue decodes a single typed value from a field record payload.
// names may be nil for fat files; slim selects the shared-map string path.
func decodeValue(tag Tag, payload []byte, blob []byte, names *NameTable, slim bool) (Value, error) {
	u := binary.LittleEndian.Uint32(payload)

	switch tag {
	case TagStr:
		if slim && u&nameMapBit != 0 {
			idx := int(u &^ nameMapBit)
			if names == nil {
				return nil, ErrMissingNameMap
			}
			if idx >= names.Len() {
				return nil, fmt.Errorf("%w: string name index %d in a table of %d", ErrIndexOutOfBounds, idx, names.Len())
			}
			return Str(names.Name(idx)), nil
		}
		if int64(u) >= int64(len(blob)) {
			return nil, fmt.Errorf("%w: string offset %d in a blob of %d", ErrBlobRange, u, len(blob))
		}
		n, sz := binary.Uvarint(blob[u:])
		if sz <= 0 {
			return nil, fmt.Errorf("%w: truncated string length at offset %d", ErrBlobRange, u)
		}
		raw, err := blobSlice(blob, u+uint32(sz), int(n))
		if err != nil {
			return nil, err
		}
		return Str(raw), nil

	case TagInt:
		return Int(int32(u)), nil
	case TagFloat:
		return Float(math.Float32frombits(u)), nil
	case TagBool:
		return Bool(payload[0] != 0), nil
	case TagColor:
		// BGRA on disk.
		return Color{R: payload[2], G: payload[1], B: payload[0], A: payload[3]}, nil

	case TagFloat2, TagFloat3, TagFloat4, TagInt2, TagInt3, TagFloat12, TagLong:
		raw, err := blobSlice(blob, u, tag.blobWidth())
		if err != nil {
			return nil, err
		}
		return decodeWide(tag, raw), nil
	}

	return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedType, byte(tag))
}

// decodeWide decodes a fixed-width blob-resident value. raw is already
// bounds-checked to tag.blobWidth() bytes.
func decodeWide(tag Tag, raw []byte) Value {
	f32 := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	i32 := func(i int) int32 {
		return int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	switch tag {
	case TagFloat2:
		return Float2{f32(0), f32(1)}
	case TagFloat3:
		return Float3{f32(0), f32(1), f32(2)}
	case TagFloat4:
		return Float4{f32(0), f32(1), f32(2), f32(3)}
	case TagInt2:
		return Int2{i32(0), i32(1)}
	case TagInt3:
		return Int3{i32(0), i32(1), i32(2)}
	case TagLong:
		return Long(int64(binary.LittleEndian.Uint64(raw)))
	case TagFloat12:
		var m Float12
		for i := range m {
			m[i] = f32(i)
		}
		return m
	}
	panic("blk: not a blob-resident tag")
}

// valueEncoder assembles the data blob while emitting field records. When
// names is non-nil (slim files), strings present in the shared table are
// referenced instead of being copied into the blob.
type valueEncoder struct {
	blob  []byte
	names *NameTable
	tmp   [binary.MaxVarintLen64]byte
}

// encode appends v's wide bytes (if any) to the blob and returns the tag
// and the 4-byte record payload.
func (e *valueEncoder) encode(v Value) (Tag, [4]byte, error) {
	var payload [4]byte
	tag := v.Tag()

	switch x := v.(type) {
	case Str:
		u, err := e.encodeStr(string(x))
		if err != nil {
			return 0, payload, err
		}
		binary.LittleEndian.PutUint32(payload[:], u)
	case Int:
		binary.LittleEndian.PutUint32(payload[:], uint32(x))
	case Float:
		binary.LittleEndian.PutUint32(payload[:], math.Float32bits(float32(x)))
	case Bool:
		if x {
			payload[0] = 1
		}
	case Color:
		payload[0], payload[1], payload[2], payload[3] = x.B, x.G, x.R, x.A
	case Float2:
		return e.wide(tag, payload, x[:], nil)
	case Float3:
		return e.wide(tag, payload, x[:], nil)
	case Float4:
		return e.wide(tag, payload, x[:], nil)
	case Int2:
		return e.wide(tag, payload, nil, x[:])
	case Int3:
		return e.wide(tag, payload, nil, x[:])
	case Float12:
		return e.wide(tag, payload, x[:], nil)
	case Long:
		off, err := e.grow(8)
		if err != nil {
			return 0, payload, err
		}
		binary.LittleEndian.PutUint64(e.blob[off:], uint64(x))
		binary.LittleEndian.PutUint32(payload[:], uint32(off))
	default:
		return 0, payload, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return tag, payload, nil
}

// wide appends a multi-component numeric value to the blob.
func (e *valueEncoder) wide(tag Tag, payload [4]byte, fs []float32, is []int32) (Tag, [4]byte, error) {
	off, err := e.grow(tag.blobWidth())
	if err != nil {
		return 0, payload, err
	}
	for i, f := range fs {
		binary.LittleEndian.PutUint32(e.blob[off+i*4:], math.Float32bits(f))
	}
	for i, n := range is {
		binary.LittleEndian.PutUint32(e.blob[off+i*4:], uint32(n))
	}
	binary.LittleEndian.PutUint32(payload[:], uint32(off))
	return tag, payload, nil
}

// encodeStr returns the payload word for a string value: a shared-map
// reference when possible, a blob offset otherwise.
func (e *valueEncoder) encodeStr(s string) (uint32, error) {
	if e.names != nil {
		if idx, ok := e.names.Index(s); ok {
			if idx >= nameMapBit {
				return 0, fmt.Errorf("blk: name index %d does not fit the string payload", idx)
			}
			return uint32(idx) | nameMapBit, nil
		}
	}

	off := len(e.blob)
	n := binary.PutUvarint(e.tmp[:], uint64(len(s)))
	e.blob = append(e.blob, e.tmp[:n]...)
	e.blob = append(e.blob, s...)

	limit := int64(math.MaxUint32)
	if e.names != nil {
		limit = nameMapBit - 1 // top bit is the shared-map marker
	}
	if int64(off) > limit {
		return 0, fmt.Errorf("blk: string offset %d does not fit the payload", off)
	}
	return uint32(off), nil
}

// grow extends the blob by n zero bytes and returns the previous length,
// checking that the resulting offset is still addressable by a payload.
func (e *valueEncoder) grow(n int) (int, error) {
	off := len(e.blob)
	if int64(off)+int64(n) > int64(math.MaxUint32) {
		return 0, fmt.Errorf("blk: data blob exceeds the addressable size")
	}
	e.blob = append(e.blob, make([]byte, n)...)
	return off, nil
}
