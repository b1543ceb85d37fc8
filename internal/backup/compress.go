package backup

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// The encoder and decoder are safe for concurrent use and expensive to
// build, so one of each is shared.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func initZstd() error {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdErr
}

func compress(data []byte) ([]byte, error) {
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return zstdEncoder.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	if err := initZstd(); err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
