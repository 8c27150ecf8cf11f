// Package render projects a note document into markup. Documents are
// schemaless JSON; only the block types the renderer understands produce
// output, everything else is stored losslessly and skipped here.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Doc decodes a stored document payload into a generic tree. A payload that
// is missing, empty, or not a JSON object decodes to nil.
func Doc(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc
}

// HTML renders the heading and text blocks of a document, in stored order.
// Unknown block types produce no output; a missing or empty elements sequence
// renders to the empty string. Content is emitted verbatim; escaping policy
// belongs to whatever embeds the markup.
func HTML(doc map[string]any) string {
	elements, ok := doc["elements"].([]any)
	if !ok {
		return ""
	}

	var b strings.Builder
	for _, element := range elements {
		block, ok := element.(map[string]any)
		if !ok {
			continue
		}
		blockType, _ := block["type"].(string)
		content, _ := block["content"].(string)

		switch blockType {
		case "heading":
			fmt.Fprintf(&b, "<h2>%s</h2>", content)
		case "text":
			fmt.Fprintf(&b, "<p>%s</p>", content)
		}
	}
	return b.String()
}

// PlainText joins the content of every block, regardless of type, separated
// by newlines. Used to build the search index body for a note.
func PlainText(doc map[string]any) string {
	elements, ok := doc["elements"].([]any)
	if !ok {
		return ""
	}

	var parts []string
	for _, element := range elements {
		block, ok := element.(map[string]any)
		if !ok {
			continue
		}
		if content, _ := block["content"].(string); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}
