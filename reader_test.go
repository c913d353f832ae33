package blk_test

import (
	"encoding/binary"
	"strings"

	blk "github.com/axiangcoding/wt-blk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("DetectFormat", func() {
	It("should classify the magic byte", func() {
		variant, offset, err := blk.DetectFormat([]byte{0x01, 0xFF})
		Expect(err).NotTo(HaveOccurred())
		Expect(variant).To(Equal(blk.FormatFat))
		Expect(offset).To(Equal(1))

		variant, _, err = blk.DetectFormat([]byte{0x05})
		Expect(err).NotTo(HaveOccurred())
		Expect(variant).To(Equal(blk.FormatSlimZstdDict))
		Expect(variant.IsSlim()).To(BeTrue())
		Expect(variant.IsCompressed()).To(BeTrue())
	})

	It("should reject unknown signatures", func() {
		_, _, err := blk.DetectFormat(nil)
		Expect(err).To(MatchError(blk.ErrUnrecognizedFormat))

		_, _, err = blk.DetectFormat([]byte{0x00})
		Expect(err).To(MatchError(blk.ErrUnrecognizedFormat))

		_, _, err = blk.DetectFormat([]byte{0x42, 0x01, 0x02})
		Expect(err).To(MatchError(blk.ErrUnrecognizedFormat))
	})
})

var _ = Describe("Decode", func() {
	var tree *blk.Block

	BeforeEach(func() {
		tree = seedTree()
	})

	It("should round-trip every variant", func() {
		nm := seedNameMap(tree)
		dict := []byte("vec4f/int/long/alpha/beta/gamma dictionary seed material")

		for _, opts := range []*blk.WriterOptions{
			{Variant: blk.FormatFat},
			{Variant: blk.FormatFatZstd},
			{Variant: blk.FormatSlim, NameMap: nm},
			{Variant: blk.FormatSlimZstd, NameMap: nm},
			{Variant: blk.FormatSlimZstdDict, NameMap: nm, Dict: dict},
		} {
			data, err := blk.Encode(tree, opts)
			Expect(err).NotTo(HaveOccurred(), "encode %s", opts.Variant)

			decoded, err := blk.Decode(data, &blk.DecodeOptions{NameMap: nm, Dict: dict})
			Expect(err).NotTo(HaveOccurred(), "decode %s", opts.Variant)
			Expect(decoded.Equal(tree)).To(BeTrue(), "tree mismatch for %s", opts.Variant)
		}
	})

	It("should decode values behind shared-map and blob strings alike", func() {
		// "hello" is a field value, not a field name, so it is absent from
		// the shared map and must travel through the data blob.
		nm := seedNameMap(tree)
		_, ok := nm.Index("hello")
		Expect(ok).To(BeFalse())

		data, err := blk.Encode(tree, &blk.WriterOptions{Variant: blk.FormatSlim, NameMap: nm})
		Expect(err).NotTo(HaveOccurred())

		decoded, err := blk.Decode(data, &blk.DecodeOptions{NameMap: nm})
		Expect(err).NotTo(HaveOccurred())
		v, ok := decoded.Get("alpha/str")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(blk.Str("hello")))

		// With the value in the map it must still round-trip.
		nm2, err := blk.NewNameMap(append(treeNames(tree), "hello"))
		Expect(err).NotTo(HaveOccurred())
		data, err = blk.Encode(tree, &blk.WriterOptions{Variant: blk.FormatSlim, NameMap: nm2})
		Expect(err).NotTo(HaveOccurred())
		decoded, err = blk.Decode(data, &blk.DecodeOptions{NameMap: nm2})
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded.Equal(tree)).To(BeTrue())
	})

	It("should require a name map for slim files", func() {
		nm := seedNameMap(tree)
		data, err := blk.Encode(tree, &blk.WriterOptions{Variant: blk.FormatSlim, NameMap: nm})
		Expect(err).NotTo(HaveOccurred())

		_, err = blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrMissingNameMap))
	})

	It("should report declared-length mismatches", func() {
		data, err := blk.Encode(tree, &blk.WriterOptions{Variant: blk.FormatFatZstd})
		Expect(err).NotTo(HaveOccurred())

		// Bump the declared uncompressed size. The varint's low byte is
		// right after the magic.
		data[1]++
		_, err = blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrLengthMismatch))
	})

	It("should report corrupt compressed bodies", func() {
		data, err := blk.Encode(tree, &blk.WriterOptions{Variant: blk.FormatFatZstd})
		Expect(err).NotTo(HaveOccurred())

		for i := len(data) / 2; i < len(data); i++ {
			data[i] ^= 0xA5
		}
		_, err = blk.Decode(data, nil)
		Expect(err).To(HaveOccurred())
	})

	It("should never panic on truncated input", func() {
		data, err := blk.Encode(tree, nil)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < len(data); i++ {
			tree, err := blk.Decode(data[:i], nil)
			Expect(err).To(HaveOccurred(), "at %d bytes", i)
			Expect(tree).To(BeNil(), "at %d bytes", i)
		}
	})

	It("should never panic on corrupted record bytes", func() {
		data, err := blk.Encode(tree, nil)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < len(data); i++ {
			for _, junk := range []byte{0x00, 0x7F, 0xFF} {
				mutated := append([]byte(nil), data...)
				mutated[i] = junk
				Expect(func() { _, _ = blk.Decode(mutated, nil) }).NotTo(Panic(), "byte %d = 0x%02X", i, junk)
			}
		}
	})

	It("should reject field name indices outside the table", func() {
		// One name, one field record whose 3-byte name index is 7.
		data := cat(
			[]byte{0x01},             // fat
			uv(1, 2), []byte{1, 'x'}, // name table: "x"
			uv(1, 1, 0),                  // 1 block, 1 field, empty blob
			[]byte{7, 0, 0, 2, 5, 0, 0, 0}, // field: name 7, Int 5
			uv(0, 1, 0),                  // root claims the field
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrIndexOutOfBounds))
	})

	It("should reject overlapping child ranges", func() {
		// Root claims blocks 1..2, block 1 claims block 2 again.
		data := cat(
			[]byte{0x01},
			uv(2, 4), []byte{1, 'a', 1, 'b'},
			uv(3, 0, 0), // 3 blocks, no fields, empty blob
			uv(0, 0, 2, 1), // root: children 1..2
			uv(1, 0, 1, 2), // "a": child 2 (already claimed)
			uv(2, 0, 0),    // "b"
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrOverlappingBlockRange))
	})

	It("should reject unreachable block records", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'a'},
			uv(2, 0, 0),
			uv(0, 0, 0), // root with no children
			uv(1, 0, 0), // "a" claimed by nobody
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrOverlappingBlockRange))
	})

	It("should reject backward child references", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'a'},
			uv(2, 0, 0),
			uv(0, 0, 2, 1), // root claims 1..2 of 2 blocks
			uv(1, 0, 0),
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrIndexOutOfBounds))

		data = cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'a'},
			uv(2, 0, 0),
			uv(0, 0, 0),
			uv(1, 0, 1, 1), // "a" claims itself
		)
		_, err = blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrOverlappingBlockRange))
	})

	It("should reject unclaimed field records", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'x'},
			uv(1, 1, 0),
			[]byte{0, 0, 0, 2, 5, 0, 0, 0},
			uv(0, 0, 0), // root claims no fields
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrOverlappingBlockRange))
	})

	It("should reject name counts exceeding the region", func() {
		// The count alone must never size an allocation: 2^31-1 declared
		// entries against an empty region.
		data := cat([]byte{0x01}, uv(0x7FFFFFFF, 0), uv(1, 0, 0), uv(0, 0, 0))
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrMalformedName))
	})

	It("should reject a named root record", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'a'},
			uv(1, 0, 0),
			uv(1, 0, 0), // root record names itself "a"
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrIndexOutOfBounds))

		nm, err := blk.NewNameMap([]string{"a"})
		Expect(err).NotTo(HaveOccurred())
		slim := cat(
			[]byte{0x03},
			uv(1, 0, 0),
			[]byte{0x80}, // name stream: presence bit set on block 0
			uv(0, 0),
		)
		_, err = blk.Decode(slim, &blk.DecodeOptions{NameMap: nm})
		Expect(err).To(MatchError(blk.ErrIndexOutOfBounds))
	})

	It("should stop inflating at the declared bound", func() {
		root := blk.NewBlock("")
		root.Add("x", blk.Str(strings.Repeat("a", 4<<20)))

		data, err := blk.Encode(root, &blk.WriterOptions{Variant: blk.FormatFatZstd})
		Expect(err).NotTo(HaveOccurred())

		// Re-declare the body as one byte; the frame must be refused
		// without inflating its multi-megabyte content.
		_, n := binary.Uvarint(data[1:])
		bomb := cat([]byte{0x02}, uv(1), data[1+n:])
		_, err = blk.Decode(bomb, nil)
		Expect(err).To(MatchError(blk.ErrDecompression))
	})

	It("should reject invalid name table text", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 3), []byte{2, 0xFF, 0xFE}, // not UTF-8
			uv(1, 0, 0),
			uv(0, 0, 0),
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrMalformedName))
	})

	It("should reject name lengths that leave the region", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{9, 'x'}, // declares 9 bytes, region holds 1
			uv(1, 0, 0),
			uv(0, 0, 0),
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrMalformedName))
	})

	It("should reject string offsets outside the blob", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 's'},
			uv(1, 1, 1), []byte{0}, // blob of one byte
			[]byte{0, 0, 0, 1, 9, 0, 0, 0}, // Str at offset 9
			uv(0, 1, 0),
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrBlobRange))
	})

	It("should reject unknown value tags", func() {
		data := cat(
			[]byte{0x01},
			uv(1, 2), []byte{1, 'x'},
			uv(1, 1, 0),
			[]byte{0, 0, 0, 0x7F, 0, 0, 0, 0},
			uv(0, 1, 0),
		)
		_, err := blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrUnsupportedType))
	})

	It("should cap the nesting depth", func() {
		root := blk.NewBlock("")
		cur := root
		for i := 0; i < 600; i++ {
			cur = cur.AddBlock("n")
		}

		data, err := blk.Encode(root, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = blk.Decode(data, nil)
		Expect(err).To(MatchError(blk.ErrMaxDepthExceeded))
	})

	It("should reject trailing bytes", func() {
		data, err := blk.Encode(tree, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = blk.Decode(append(data, 0xAA), nil)
		Expect(err).To(MatchError(blk.ErrIndexOutOfBounds))
	})
})
