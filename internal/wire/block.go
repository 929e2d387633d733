package wire

import (
	"fmt"
	"io"
)

// Block is one named binary payload queued for transmission. Encoding names
// the text encoding of Data when the receiver should interpret it as text;
// empty means raw bytes.
type Block struct {
	Name     string
	Data     []byte
	Encoding string
}

// RawBlock builds a binary block with no text interpretation.
func RawBlock(name string, data []byte) Block {
	return Block{Name: name, Data: data}
}

// TextBlock builds a UTF-8 text block.
func TextBlock(name, text string) Block {
	return Block{Name: name, Data: []byte(text), Encoding: DefaultEncoding}
}

// TextBlock builds a text block in the options' default encoding, converting
// the string's bytes into that charset.
func (o Options) TextBlock(name, text string) (Block, error) {
	o = o.WithDefaults()
	data, err := encodeText(text, o.DefaultEncoding)
	if err != nil {
		return Block{}, fmt.Errorf("%w: block %q as %s: %v", ErrEncoding, name, o.DefaultEncoding, err)
	}
	return Block{Name: name, Data: data, Encoding: o.DefaultEncoding}, nil
}

// BlockFromReader drains r into a block. Pass an empty encoding for raw
// binary sources.
func BlockFromReader(name string, r io.Reader, encoding string) (Block, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Block{}, fmt.Errorf("wire: read block %q: %w", name, err)
	}
	return Block{Name: name, Data: data, Encoding: encoding}, nil
}

// BlockData is one decoded block from a parsed frame. Raw always holds the
// body slice; Text is set only when the descriptor declared an encoding.
type BlockData struct {
	Name     string
	Raw      []byte
	Text     string
	Encoding string
}
