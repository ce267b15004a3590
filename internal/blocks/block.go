// Package blocks converts between HTML-ish paragraph text, rich-text block
// records, and plain strings.
//
// A block is one paragraph holding a single span. Conversion back to text is
// lossy: only span text survives, marks and styles are dropped.
package blocks

const (
	BlockType   = "block"
	SpanType    = "span"
	StyleNormal = "normal"
)

// Span is one inline run of text inside a block.
type Span struct {
	Key   string   `json:"_key"`
	Type  string   `json:"_type"`
	Marks []string `json:"marks"`
	Text  string   `json:"text"`
}

// Block is one rich-text paragraph.
type Block struct {
	Key      string           `json:"_key"`
	Type     string           `json:"_type"`
	Children []Span           `json:"children"`
	MarkDefs []map[string]any `json:"markDefs"`
	Style    string           `json:"style"`
}

// Text returns the concatenated span text of the block.
func (b Block) Text() string {
	return joinSpanText(b)
}

// Codec builds blocks with keys drawn from a KeyGenerator.
type Codec struct {
	keys KeyGenerator
}

// NewCodec returns a codec using src for block and span keys. A nil src
// selects random numeric keys.
func NewCodec(src KeyGenerator) *Codec {
	if src == nil {
		src = RandomKeys{}
	}
	return &Codec{keys: src}
}

var defaultCodec = NewCodec(nil)

// MakeBlock wraps text verbatim in exactly one block holding one span.
func MakeBlock(text string) Block {
	return defaultCodec.MakeBlock(text)
}

// MakeBlock wraps text verbatim in exactly one block holding one span.
func (c *Codec) MakeBlock(text string) Block {
	return c.makeBlock(newKeySet(c.keys), text, StyleNormal)
}

func (c *Codec) makeBlock(keys *keySet, text, style string) Block {
	return Block{
		Key:  keys.next(),
		Type: BlockType,
		Children: []Span{{
			Key:   keys.next(),
			Type:  SpanType,
			Marks: []string{},
			Text:  text,
		}},
		MarkDefs: []map[string]any{},
		Style:    style,
	}
}
