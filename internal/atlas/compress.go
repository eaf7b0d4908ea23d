package atlas

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Shared codecs. Both are safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd encoder init: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("zstd decoder init: %v", err))
	}
}

// compressBytes compresses src with Zstandard
func compressBytes(src []byte) []byte {
	return zstdEncoder.EncodeAll(src, make([]byte, 0, len(src)/2))
}

// decompressBytes decompresses a Zstandard frame
func decompressBytes(src []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(src, nil)
}

// decompressFile reads and decompresses one .zst file
func decompressFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decompressBytes(data)
}

// decompressReader decompresses everything from r
func decompressReader(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decompressBytes(data)
}
