package wire

import "encoding/binary"

const (
	DefaultDataKey   = "data_dict"
	DefaultBlocksKey = "data_blocks"
	DefaultEncoding  = "utf-8"

	// DefaultMaxBlockSize is the ceiling any single declared block size must
	// fit under: the descriptor size field is a 32-bit quantity on the wire.
	DefaultMaxBlockSize uint64 = 1<<32 - 1

	// DefaultMaxHeaderBytes bounds header allocation on the read path.
	DefaultMaxHeaderBytes uint64 = 8 * 1024 * 1024

	// DefaultMaxBodyBytes bounds the summed declared block sizes of one
	// frame. Without it a small hostile header could declare a body far
	// larger than the process can allocate.
	DefaultMaxBodyBytes uint64 = 1 << 30
)

// Options is the immutable codec configuration. Both peers of a connection
// must agree on every field; it is passed into codec and endpoint
// construction and never mutated afterwards.
type Options struct {
	// DataKey is the reserved header key carrying the application payload.
	DataKey string
	// BlocksKey is the reserved header key carrying block descriptors.
	BlocksKey string
	// DefaultEncoding names the text encoding assumed by helpers that build
	// text blocks.
	DefaultEncoding string
	// ByteOrder of the 4-byte header length prefix. Big-endian on both
	// serialize and parse unless overridden.
	ByteOrder binary.ByteOrder
	// MaxBlockSize caps any single block's byte length.
	MaxBlockSize uint64
	// MaxHeaderBytes caps the header length accepted from the stream.
	MaxHeaderBytes uint64
	// MaxBodyBytes caps the total declared body size of one frame.
	MaxBodyBytes uint64
}

// DefaultOptions returns the protocol defaults.
func DefaultOptions() Options {
	return Options{
		DataKey:         DefaultDataKey,
		BlocksKey:       DefaultBlocksKey,
		DefaultEncoding: DefaultEncoding,
		ByteOrder:       binary.BigEndian,
		MaxBlockSize:    DefaultMaxBlockSize,
		MaxHeaderBytes:  DefaultMaxHeaderBytes,
		MaxBodyBytes:    DefaultMaxBodyBytes,
	}
}

// WithDefaults fills zero-valued fields with protocol defaults.
func (o Options) WithDefaults() Options {
	if o.DataKey == "" {
		o.DataKey = DefaultDataKey
	}
	if o.BlocksKey == "" {
		o.BlocksKey = DefaultBlocksKey
	}
	if o.DefaultEncoding == "" {
		o.DefaultEncoding = DefaultEncoding
	}
	if o.ByteOrder == nil {
		o.ByteOrder = binary.BigEndian
	}
	if o.MaxBlockSize == 0 || o.MaxBlockSize > DefaultMaxBlockSize {
		o.MaxBlockSize = DefaultMaxBlockSize
	}
	if o.MaxHeaderBytes == 0 {
		o.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if o.MaxBodyBytes == 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return o
}
