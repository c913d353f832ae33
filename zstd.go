package blk

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compression level for pooled encoders. Level 3 balances speed and ratio
// for the small bodies typical of block files.
const compressionLevel = 3

// encoderPool reuses dictionary-less zstd encoders across Encode calls.
var encoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			panic("blk: zstd encoder options rejected: " + err.Error())
		}
		return enc
	},
}

// zstdCompress compresses src into a single zstd frame. dict is an
// optional raw-content dictionary and may be nil.
func zstdCompress(src, dict []byte) ([]byte, error) {
	if dict == nil {
		enc := encoderPool.Get().(*zstd.Encoder)
		defer func() {
			enc.Reset(nil)
			encoderPool.Put(enc)
		}()
		return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)),
		zstd.WithEncoderDictRaw(0, dict))
	if err != nil {
		return nil, fmt.Errorf("blk: zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

// zstdDecompressAll inflates a whole zstd frame. maxSize caps the inflated
// output, so a bomb frame fails at the bound instead of after full
// inflation; 0 leaves the decoder default. Failures of the decompression
// collaborator surface as ErrDecompression.
func zstdDecompressAll(src, dict []byte, maxSize uint64) ([]byte, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if maxSize > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(maxSize))
	}
	if dict != nil {
		opts = append(opts, zstd.WithDecoderDictRaw(0, dict))
	}

	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return out, nil
}
