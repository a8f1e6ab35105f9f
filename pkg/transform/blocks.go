// Package transform implements the Transform Pipeline (spec.md §4.4):
// fetch-or-cache-hit orchestration, HTML→Markdown/JSONL conversion with a
// quality gate, link extraction, and inline/by-reference delivery.
package transform

import "encoding/json"

// Block is a tagged-union ContentBlock. Only the fields relevant to Type are
// populated; the "type" discriminator is preserved verbatim in JSONL output
// per the design notes.
type Block struct {
	Type string `json:"type"`

	// metadata
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`

	// heading
	Level int    `json:"level,omitempty"`
	Text  string `json:"text,omitempty"`

	// list
	Ordered bool     `json:"ordered,omitempty"`
	Items   []string `json:"items,omitempty"`

	// code
	Language string `json:"language,omitempty"`

	// table
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`

	// image
	Src string `json:"src,omitempty"`
	Alt string `json:"alt,omitempty"`
}

const (
	BlockMetadata   = "metadata"
	BlockHeading    = "heading"
	BlockParagraph  = "paragraph"
	BlockList       = "list"
	BlockCode       = "code"
	BlockTable      = "table"
	BlockImage      = "image"
	BlockBlockquote = "blockquote"
)

// EncodeJSONL serializes blocks as newline-delimited JSON. A block that
// fails to marshal is dropped silently; the overall emission never fails,
// per spec.md §4.4.
func EncodeJSONL(blocks []Block) string {
	var out []byte
	for _, b := range blocks {
		line, err := json.Marshal(b)
		if err != nil {
			continue
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return string(out)
}

// TruncateBlockText truncates text to maxLen runes, appending an ellipsis
// when truncated.
func TruncateBlockText(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	return string(r[:maxLen]) + "..."
}
