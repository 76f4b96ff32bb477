package ledgercrypt

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// Export payloads smaller than this are sealed as-is.
	defaultCompressionThreshold = 1024
	// Compressed output must be at least 10% smaller to be used.
	minCompressionSavings = 0.10
	// maxDecompressedSize bounds decompressed exports (64MB) so a small
	// payload cannot expand to consume all available memory.
	maxDecompressedSize = 64 << 20

	compressionAlgorithmZstd = "zstd"
)

// zstdCodec holds a reusable encoder/decoder pair; both are safe for
// concurrent EncodeAll/DecodeAll calls.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var loadZstd = sync.OnceValues(func() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
})

// maybeCompress compresses data with algorithm if it is at least threshold
// bytes and compression saves at least 10%. It returns the payload to seal
// and the algorithm actually applied ("" when left uncompressed).
func maybeCompress(data []byte, threshold int, algorithm string) ([]byte, string) {
	if algorithm != compressionAlgorithmZstd || len(data) < threshold {
		return data, ""
	}

	codec, err := loadZstd()
	if err != nil {
		return data, ""
	}
	compressed := codec.enc.EncodeAll(data, nil)

	savings := float64(len(data)-len(compressed)) / float64(len(data))
	if savings < minCompressionSavings {
		return data, ""
	}
	return compressed, compressionAlgorithmZstd
}

// decompress reverses maybeCompress for the algorithm named in an envelope.
func decompress(data []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case "":
		return data, nil
	case compressionAlgorithmZstd:
		codec, err := loadZstd()
		if err != nil {
			return nil, err
		}
		result, err := codec.dec.DecodeAll(data, nil)
		if err != nil || len(result) > maxDecompressedSize {
			return nil, ErrDecompressionFailed
		}
		return result, nil
	default:
		return nil, ErrUnsupportedCompression
	}
}
