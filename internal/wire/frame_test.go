package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
)

func TestSerializeParseRoundTrip(t *testing.T) {
	data := map[string]any{"cmd": "deploy", "attempt": float64(3)}
	blocks := []Block{
		RawBlock("archive", []byte{0x00, 0x01, 0xfe, 0xff}),
		TextBlock("notes", "release candidate"),
	}
	raw, err := Serialize(data, blocks, DefaultOptions())
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var got map[string]any
	if err := msg.DecodeData(&got); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if got["cmd"] != "deploy" || got["attempt"] != float64(3) {
		t.Fatalf("data mismatch: %+v", got)
	}
	if len(msg.Blocks) != 2 {
		t.Fatalf("unexpected block count: %d", len(msg.Blocks))
	}
	if !bytes.Equal(msg.Blocks["archive"].Raw, []byte{0x00, 0x01, 0xfe, 0xff}) {
		t.Fatalf("archive bytes mismatch: %v", msg.Blocks["archive"].Raw)
	}
	if msg.Blocks["archive"].Text != "" {
		t.Fatalf("raw block should have no text: %q", msg.Blocks["archive"].Text)
	}
	if msg.Blocks["notes"].Text != "release candidate" {
		t.Fatalf("notes text mismatch: %q", msg.Blocks["notes"].Text)
	}
}

func TestSerializeWireLayoutPingExample(t *testing.T) {
	raw, err := Serialize(map[string]string{"cmd": "ping"}, []Block{RawBlock("payload", []byte("hello"))}, DefaultOptions())
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	headerLen := binary.BigEndian.Uint32(raw[:4])
	headerBytes := raw[4 : 4+headerLen]
	if uint32(len(headerBytes)) != headerLen {
		t.Fatalf("prefix %d does not match header length %d", headerLen, len(headerBytes))
	}
	var header map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		t.Fatalf("header is not valid JSON: %v", err)
	}
	if _, ok := header["data_dict"]; !ok {
		t.Fatalf("header missing data_dict: %s", headerBytes)
	}
	if _, ok := header["data_blocks"]; !ok {
		t.Fatalf("header missing data_blocks: %s", headerBytes)
	}
	if body := raw[4+headerLen:]; string(body) != "hello" {
		t.Fatalf("body mismatch: %q", body)
	}

	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var dict map[string]string
	if err := msg.DecodeData(&dict); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if dict["cmd"] != "ping" {
		t.Fatalf("cmd mismatch: %q", dict["cmd"])
	}
	if string(msg.Blocks["payload"].Raw) != "hello" {
		t.Fatalf("payload mismatch: %q", msg.Blocks["payload"].Raw)
	}
}

func TestSerializeRejectsUnrepresentableData(t *testing.T) {
	_, err := Serialize(make(chan int), nil, DefaultOptions())
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}

func TestSerializeRejectsDuplicateBlockNames(t *testing.T) {
	blocks := []Block{RawBlock("a", []byte("x")), RawBlock("a", []byte("y"))}
	_, err := Serialize(nil, blocks, DefaultOptions())
	if !errors.Is(err, ErrBlockName) {
		t.Fatalf("expected ErrBlockName, got %v", err)
	}
}

func TestSerializeRejectsEmptyBlockName(t *testing.T) {
	_, err := Serialize(nil, []Block{RawBlock("", []byte("x"))}, DefaultOptions())
	if !errors.Is(err, ErrBlockName) {
		t.Fatalf("expected ErrBlockName, got %v", err)
	}
}

func TestSerializeEnforcesBlockSizeCeiling(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBlockSize = 8
	_, err := Serialize(nil, []Block{RawBlock("big", make([]byte, 9))}, opts)
	if !errors.Is(err, ErrBlockTooLarge) {
		t.Fatalf("expected ErrBlockTooLarge, got %v", err)
	}
}

func TestParseShortPrefixIsProtocolError(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3}, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseShortHeaderIsProtocolError(t *testing.T) {
	raw := []byte{0, 0, 0, 50, '{', '}'}
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseInvalidHeaderJSONIsProtocolError(t *testing.T) {
	header := []byte("not json at all!")
	raw := make([]byte, 4, 4+len(header))
	binary.BigEndian.PutUint32(raw, uint32(len(header)))
	raw = append(raw, header...)
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseInvalidHeaderUTF8IsProtocolError(t *testing.T) {
	header := []byte{'{', 0xff, 0xfe, '}'}
	raw := make([]byte, 4, 4+len(header))
	binary.BigEndian.PutUint32(raw, uint32(len(header)))
	raw = append(raw, header...)
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseShortBodyIsProtocolError(t *testing.T) {
	raw, err := Serialize(nil, []Block{RawBlock("payload", []byte("hello"))}, DefaultOptions())
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	_, err = Parse(raw[:len(raw)-2], DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseIgnoresTrailingBodyBytes(t *testing.T) {
	raw, err := Serialize(nil, []Block{RawBlock("payload", []byte("hello"))}, DefaultOptions())
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	raw = append(raw, []byte("future-extension")...)
	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse with trailing bytes: %v", err)
	}
	if string(msg.Blocks["payload"].Raw) != "hello" {
		t.Fatalf("payload mismatch: %q", msg.Blocks["payload"].Raw)
	}
}

func TestParseNegativeDescriptorSizeIsProtocolError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":-1}]}`, nil)
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseFractionalDescriptorSizeIsProtocolError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":2.5}]}`, []byte("abc"))
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseDuplicateDescriptorNameIsProtocolError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":1},{"name":"a","size":1}]}`, []byte("xy"))
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseMissingDescriptorNameIsProtocolError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"size":1}]}`, []byte("x"))
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestParseInvalidTextEncodingBytesIsDecodeError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":2,"encoding":"utf-8"}]}`, []byte{0xff, 0xfe})
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestParseUnknownEncodingIsDecodeError(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":1,"encoding":"no-such-charset"}]}`, []byte("x"))
	_, err := Parse(raw, DefaultOptions())
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestParseLatin1EncodedBlock(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":1,"encoding":"ISO-8859-1"}]}`, []byte{0xe9})
	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Blocks["a"].Text != "é" {
		t.Fatalf("latin-1 decode mismatch: %q", msg.Blocks["a"].Text)
	}
}

func TestParseNullEncodingKeepsRawBytes(t *testing.T) {
	raw := frameWithHeader(t, `{"data_blocks":[{"name":"a","size":2,"encoding":null}]}`, []byte{0xff, 0xfe})
	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Blocks["a"].Text != "" {
		t.Fatalf("expected no text decode: %q", msg.Blocks["a"].Text)
	}
	if !bytes.Equal(msg.Blocks["a"].Raw, []byte{0xff, 0xfe}) {
		t.Fatalf("raw bytes mismatch: %v", msg.Blocks["a"].Raw)
	}
}

func TestParsePassesExtraHeaderKeysThrough(t *testing.T) {
	raw := frameWithHeader(t, `{"data_dict":{"v":1},"trace_id":"abc-123"}`, nil)
	msg, err := Parse(raw, DefaultOptions())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var traceID string
	if err := json.Unmarshal(msg.Extra["trace_id"], &traceID); err != nil {
		t.Fatalf("decode extra key: %v", err)
	}
	if traceID != "abc-123" {
		t.Fatalf("trace id mismatch: %q", traceID)
	}
}

func TestConfiguredKeysAndByteOrderRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	opts.DataKey = "payload"
	opts.BlocksKey = "attachments"
	opts.ByteOrder = binary.LittleEndian

	raw, err := Serialize(map[string]string{"k": "v"}, []Block{RawBlock("b", []byte("data"))}, opts)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if _, err := Parse(raw, DefaultOptions()); err == nil {
		t.Fatalf("default options should not parse a little-endian frame")
	}
	msg, err := Parse(raw, opts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var dict map[string]string
	if err := msg.DecodeData(&dict); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if dict["k"] != "v" || string(msg.Blocks["b"].Raw) != "data" {
		t.Fatalf("round trip mismatch: %+v", msg)
	}
}

// frameWithHeader builds a frame from a literal header and body, bypassing
// Serialize so malformed descriptors can be exercised.
func frameWithHeader(t *testing.T, header string, body []byte) []byte {
	t.Helper()
	raw := make([]byte, 4, 4+len(header)+len(body))
	binary.BigEndian.PutUint32(raw, uint32(len(header)))
	raw = append(raw, header...)
	return append(raw, body...)
}
