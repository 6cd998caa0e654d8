package compress

import (
	"errors"
	"fmt"
)

var ErrUnknownCodec = errors.New("unknown compression codec")

// Compress encodes and decodes version snapshots.
type Compress interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
	// Name is stored next to the encoded data so it can be decoded later.
	Name() string
}

// Get returns the codec registered under name. An empty name is nop.
func Get(name string) (Compress, error) {
	switch name {
	case "", "nop":
		return NewNop(), nil
	case "gzip":
		return NewGZip(), nil
	case "brotli":
		return NewBrotli(), nil
	case "lz4":
		return NewLZ4(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
}
