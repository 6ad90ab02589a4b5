package protocol

import (
	"encoding/json"
	"strings"
)

// chatComponent is the subset of the text component format needed for plain text.
type chatComponent struct {
	Text      string            `json:"text"`
	Translate string            `json:"translate"`
	Extra     []json.RawMessage `json:"extra"`
}

// FlattenChat converts a text component (string, object or array) into plain text
// with legacy formatting codes removed. Translation keys stand in for missing text.
func FlattenChat(raw json.RawMessage) string {
	var sb strings.Builder
	flattenInto(&sb, raw, 0)

	return stripFormatting(strings.TrimSpace(sb.String()))
}

func flattenInto(sb *strings.Builder, raw json.RawMessage, depth int) {
	if len(raw) == 0 || depth > 32 {
		return
	}

	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			sb.WriteString(s)
		}
	case '[':
		var parts []json.RawMessage
		if json.Unmarshal(raw, &parts) == nil {
			for _, p := range parts {
				flattenInto(sb, p, depth+1)
			}
		}
	case '{':
		var c chatComponent
		if json.Unmarshal(raw, &c) != nil {
			return
		}
		if c.Text != "" {
			sb.WriteString(c.Text)
		} else if c.Translate != "" {
			sb.WriteString(c.Translate)
		}
		for _, e := range c.Extra {
			flattenInto(sb, e, depth+1)
		}
	}
}

// stripFormatting drops section sign codes such as "§a".
func stripFormatting(s string) string {
	if !strings.ContainsRune(s, '§') {
		return s
	}

	var sb strings.Builder
	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == '§':
			skip = true
		default:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
