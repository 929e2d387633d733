package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"unicode/utf8"
)

// ReadFrame reads exactly one complete frame from r, blocking until enough
// bytes arrive. The read is two-phase: the 4-byte length prefix, then the
// header, then - after scanning the header for declared block sizes - the
// body. The returned bytes are ready for Parse.
//
// ErrConnectionClosed is returned when the source ends cleanly at a frame
// boundary; a source that ends inside a frame returns ErrTruncated instead.
// A partial frame is never returned, and frame reassembly is independent of
// how the underlying bytes are chunked across reads.
func ReadFrame(r io.Reader, opts Options) ([]byte, error) {
	opts = opts.WithDefaults()

	var prefix [lenPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		// A clean EOF before any prefix byte is an orderly close; a
		// partial prefix is a torn frame like any other short read.
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return nil, closedOr(err)
	}
	headerLen := uint64(opts.ByteOrder.Uint32(prefix[:]))
	if headerLen > opts.MaxHeaderBytes {
		return nil, fmt.Errorf("%w: header length %d exceeds limit %d", ErrProtocol, headerLen, opts.MaxHeaderBytes)
	}

	frame := make([]byte, lenPrefixSize+headerLen)
	copy(frame, prefix[:])
	if _, err := io.ReadFull(r, frame[lenPrefixSize:]); err != nil {
		return nil, closedOr(err)
	}

	bodyLen, err := declaredBodySize(frame[lenPrefixSize:], opts)
	if err != nil {
		return nil, err
	}
	if bodyLen == 0 {
		return frame, nil
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, closedOr(err)
	}
	return append(frame, body...), nil
}

// declaredBodySize scans just enough of the header to learn how many body
// bytes complete the frame.
func declaredBodySize(headerBytes []byte, opts Options) (uint64, error) {
	if !utf8.Valid(headerBytes) {
		return 0, fmt.Errorf("%w: header is not valid UTF-8", ErrProtocol)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return 0, fmt.Errorf("%w: header JSON: %v", ErrProtocol, err)
	}
	metas, err := decodeBlockMetas(header[opts.BlocksKey], opts)
	if err != nil {
		return 0, err
	}
	total := uint64(0)
	for _, meta := range metas {
		total += meta.size
	}
	return total, nil
}

// closedOr maps end-of-stream conditions inside a frame. A locally closed
// socket stays a plain closure; an EOF here means the frame was torn.
func closedOr(err error) error {
	switch {
	case errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return err
}
