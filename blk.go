package blk

import "errors"

// FormatVariant is one recognized binary layout plus compression
// combination. It is determined once from the file's magic byte and never
// changes afterwards.
type FormatVariant byte

// Recognized format variants. The value of each constant is the magic byte
// that introduces a file of that variant.
const (
	FormatFat          FormatVariant = 0x01 // inline name table
	FormatFatZstd      FormatVariant = 0x02 // zstd-compressed fat body
	FormatSlim         FormatVariant = 0x03 // shared name table, bit-packed indices
	FormatSlimZstd     FormatVariant = 0x04 // zstd-compressed slim body
	FormatSlimZstdDict FormatVariant = 0x05 // slim body compressed with an external dictionary
)

func (v FormatVariant) isValid() bool {
	return v >= FormatFat && v <= FormatSlimZstdDict
}

// IsSlim reports whether the variant resolves names through a shared
// NameMap instead of an inline name table.
func (v FormatVariant) IsSlim() bool {
	return v >= FormatSlim
}

// IsCompressed reports whether the variant body is a zstd frame.
func (v FormatVariant) IsCompressed() bool {
	return v == FormatFatZstd || v == FormatSlimZstd || v == FormatSlimZstdDict
}

func (v FormatVariant) String() string {
	switch v {
	case FormatFat:
		return "fat"
	case FormatFatZstd:
		return "fat+zstd"
	case FormatSlim:
		return "slim"
	case FormatSlimZstd:
		return "slim+zstd"
	case FormatSlimZstdDict:
		return "slim+zstd+dict"
	}
	return "unknown"
}

// DetectFormat classifies the file content by its magic byte and returns
// the variant together with the offset at which the variant body begins.
func DetectFormat(data []byte) (FormatVariant, int, error) {
	if len(data) == 0 {
		return 0, 0, ErrUnrecognizedFormat
	}
	if v := FormatVariant(data[0]); v.isValid() {
		return v, 1, nil
	}
	return 0, 0, ErrUnrecognizedFormat
}

// Nesting limit for decoded block trees.
const maxDepth = 512

// Decode errors. All of them are terminal for the decode call in question:
// a malformed file yields a single descriptive error, never a partial tree.
var (
	// ErrUnrecognizedFormat is returned when the magic byte matches no
	// known format variant.
	ErrUnrecognizedFormat = errors.New("blk: unrecognized format signature")

	// ErrDecompression wraps failures of the zstd collaborator.
	ErrDecompression = errors.New("blk: decompression failed")

	// ErrLengthMismatch is returned when a compressed body inflates to a
	// size other than the one declared in the header.
	ErrLengthMismatch = errors.New("blk: decompressed length mismatch")

	// ErrMalformedName is returned when the name table declares lengths
	// that leave its region or contains invalid text.
	ErrMalformedName = errors.New("blk: malformed name table")

	// ErrBlobRange is returned when a value references bytes outside the
	// data blob.
	ErrBlobRange = errors.New("blk: value reference outside data blob")

	// ErrUnsupportedType is returned for unknown value type tags.
	ErrUnsupportedType = errors.New("blk: unsupported value type tag")

	// ErrOverlappingBlockRange is returned when block records claim
	// overlapping (or unreachable) slices of the flat record arrays.
	ErrOverlappingBlockRange = errors.New("blk: overlapping block record ranges")

	// ErrIndexOutOfBounds is returned when any record index leaves its
	// target region.
	ErrIndexOutOfBounds = errors.New("blk: index out of bounds")

	// ErrMaxDepthExceeded is returned when blocks nest deeper than the
	// supported limit.
	ErrMaxDepthExceeded = errors.New("blk: max block nesting depth exceeded")

	// ErrMissingNameMap is returned when a slim file is decoded (or
	// encoded) without a shared name map.
	ErrMissingNameMap = errors.New("blk: slim variant requires a shared name map")
)
