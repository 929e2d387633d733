package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Wire layout of one frame:
//
//	[4 bytes: header length, Options.ByteOrder]
//	[header length bytes: UTF-8 JSON object]
//	[remaining bytes: block payloads concatenated in descriptor order]
const lenPrefixSize = 4

var (
	ErrProtocol         = errors.New("wire: malformed frame")
	ErrEncoding         = errors.New("wire: data not JSON-representable")
	ErrDecode           = errors.New("wire: block text decode failed")
	ErrBlockTooLarge    = errors.New("wire: block exceeds size ceiling")
	ErrBlockName        = errors.New("wire: invalid block name")
	ErrHeaderTooLarge   = errors.New("wire: header exceeds length prefix capacity")
	ErrConnectionClosed = errors.New("wire: connection closed")

	// ErrTruncated is a connection that ended inside a frame. It matches
	// ErrConnectionClosed under errors.Is, but lets callers tell a torn
	// stream from a clean close at a frame boundary.
	ErrTruncated = fmt.Errorf("%w mid-frame", ErrConnectionClosed)
)

// blockMeta is the serialize-side JSON shape of one block descriptor.
// Encoding is omitted entirely for raw blocks, matching the descriptor shape
// produced by prior implementations of this protocol.
type blockMeta struct {
	Name     string `json:"name"`
	Size     uint64 `json:"size"`
	Encoding string `json:"encoding,omitempty"`
}

// Message is the result of parsing one frame.
type Message struct {
	// Data is the application payload, untouched JSON. Nil when the sender
	// attached none.
	Data json.RawMessage
	// Blocks maps block name to its decoded payload.
	Blocks map[string]BlockData
	// Extra carries non-reserved header keys through unchanged.
	Extra map[string]json.RawMessage
}

// DecodeData unmarshals the application payload into v.
func (m Message) DecodeData(v any) error {
	if m.Data == nil {
		return fmt.Errorf("%w: message has no data payload", ErrDecode)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Serialize packages data and blocks into one complete frame.
//
// The header object embeds data under Options.DataKey and the descriptor
// array under Options.BlocksKey, in block input order. Block names must be
// non-empty and unique; each block must fit under Options.MaxBlockSize.
func Serialize(data any, blocks []Block, opts Options) ([]byte, error) {
	opts = opts.WithDefaults()

	header := make(map[string]any, 2)
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		header[opts.DataKey] = json.RawMessage(raw)
	}

	bodyLen := 0
	if len(blocks) > 0 {
		metas := make([]blockMeta, 0, len(blocks))
		seen := make(map[string]struct{}, len(blocks))
		for _, b := range blocks {
			if b.Name == "" {
				return nil, fmt.Errorf("%w: empty name", ErrBlockName)
			}
			if _, dup := seen[b.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate name %q", ErrBlockName, b.Name)
			}
			seen[b.Name] = struct{}{}
			if uint64(len(b.Data)) > opts.MaxBlockSize {
				return nil, fmt.Errorf("%w: block %q is %d bytes", ErrBlockTooLarge, b.Name, len(b.Data))
			}
			metas = append(metas, blockMeta{Name: b.Name, Size: uint64(len(b.Data)), Encoding: b.Encoding})
			bodyLen += len(b.Data)
		}
		header[opts.BlocksKey] = metas
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if uint64(len(headerBytes)) > 1<<32-1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(headerBytes))
	}

	out := make([]byte, 0, lenPrefixSize+len(headerBytes)+bodyLen)
	var prefix [lenPrefixSize]byte
	opts.ByteOrder.PutUint32(prefix[:], uint32(len(headerBytes)))
	out = append(out, prefix[:]...)
	out = append(out, headerBytes...)
	for _, b := range blocks {
		out = append(out, b.Data...)
	}
	return out, nil
}

// Parse unpacks one complete frame produced by Serialize.
//
// Body bytes beyond the sum of declared block sizes are ignored: trailing
// data is forward-compatible, not an error. A body shorter than the declared
// sizes, a malformed header, or a malformed descriptor is ErrProtocol; block
// bytes invalid under their declared encoding is ErrDecode.
func Parse(raw []byte, opts Options) (Message, error) {
	opts = opts.WithDefaults()

	if len(raw) < lenPrefixSize {
		return Message{}, fmt.Errorf("%w: short length prefix", ErrProtocol)
	}
	headerLen := uint64(opts.ByteOrder.Uint32(raw[:lenPrefixSize]))
	rest := raw[lenPrefixSize:]
	if uint64(len(rest)) < headerLen {
		return Message{}, fmt.Errorf("%w: header declares %d bytes, %d available", ErrProtocol, headerLen, len(rest))
	}
	headerBytes := rest[:headerLen]
	body := rest[headerLen:]

	if !utf8.Valid(headerBytes) {
		return Message{}, fmt.Errorf("%w: header is not valid UTF-8", ErrProtocol)
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return Message{}, fmt.Errorf("%w: header JSON: %v", ErrProtocol, err)
	}

	msg := Message{
		Blocks: make(map[string]BlockData),
		Extra:  make(map[string]json.RawMessage),
	}
	if data, ok := header[opts.DataKey]; ok {
		msg.Data = data
	}
	for key, value := range header {
		if key == opts.DataKey || key == opts.BlocksKey {
			continue
		}
		msg.Extra[key] = value
	}

	metas, err := decodeBlockMetas(header[opts.BlocksKey], opts)
	if err != nil {
		return Message{}, err
	}

	offset := uint64(0)
	for _, meta := range metas {
		if _, dup := msg.Blocks[meta.name]; dup {
			return Message{}, fmt.Errorf("%w: duplicate block name %q", ErrProtocol, meta.name)
		}
		if offset+meta.size > uint64(len(body)) {
			return Message{}, fmt.Errorf("%w: body short of declared block %q", ErrProtocol, meta.name)
		}
		slice := body[offset : offset+meta.size]
		offset += meta.size

		bd := BlockData{Name: meta.name, Raw: slice, Encoding: meta.encoding}
		if meta.encoding != "" {
			text, err := decodeText(slice, meta.encoding)
			if err != nil {
				return Message{}, fmt.Errorf("%w: block %q as %s: %v", ErrDecode, meta.name, meta.encoding, err)
			}
			bd.Text = text
		}
		msg.Blocks[meta.name] = bd
	}
	return msg, nil
}

// parsedMeta is one validated descriptor from the header's block list.
type parsedMeta struct {
	name     string
	size     uint64
	encoding string
}

func decodeBlockMetas(raw json.RawMessage, opts Options) ([]parsedMeta, error) {
	if raw == nil {
		return nil, nil
	}
	// Sizes pass through json.Number so that negative, fractional, and
	// exponent forms are rejected instead of silently truncated.
	var entries []struct {
		Name     *string     `json:"name"`
		Size     json.Number `json:"size"`
		Encoding *string     `json:"encoding"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: block descriptors: %v", ErrProtocol, err)
	}
	out := make([]parsedMeta, 0, len(entries))
	total := uint64(0)
	for i, e := range entries {
		if e.Name == nil || *e.Name == "" {
			return nil, fmt.Errorf("%w: descriptor %d missing name", ErrProtocol, i)
		}
		size, err := strconv.ParseUint(e.Size.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: descriptor %q size %q", ErrProtocol, *e.Name, e.Size.String())
		}
		if size > opts.MaxBlockSize {
			return nil, fmt.Errorf("%w: descriptor %q declares %d bytes", ErrProtocol, *e.Name, size)
		}
		// The aggregate ceiling is checked per descriptor so a hostile
		// header is rejected before any body allocation is sized from it.
		total += size
		if total > opts.MaxBodyBytes {
			return nil, fmt.Errorf("%w: declared body exceeds %d bytes", ErrProtocol, opts.MaxBodyBytes)
		}
		meta := parsedMeta{name: *e.Name, size: size}
		if e.Encoding != nil {
			meta.encoding = *e.Encoding
		}
		out = append(out, meta)
	}
	return out, nil
}
