package autoreply

import (
	"encoding/json"
	"strings"
)

// QuickReplyMarker separates human-readable copy from the serialized
// quick-reply options carried in the same content field. Clients split on
// the marker; plain-text surfaces just render the whole string.
const QuickReplyMarker = "::options::"

// withOptions appends quick-reply options to a reply behind the marker.
func withOptions(text string, options []string) string {
	if len(options) == 0 {
		return text
	}
	data, err := json.Marshal(options)
	if err != nil {
		return text
	}
	return text + "\n" + QuickReplyMarker + string(data)
}

// SplitOptions separates a message's copy from its quick-reply options.
func SplitOptions(content string) (text string, options []string) {
	idx := strings.Index(content, QuickReplyMarker)
	if idx < 0 {
		return content, nil
	}
	text = strings.TrimRight(content[:idx], "\n")
	if err := json.Unmarshal([]byte(content[idx+len(QuickReplyMarker):]), &options); err != nil {
		return text, nil
	}
	return text, options
}
