package ingest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const agentMarker = `data-bs-agent="1"`

var closingHeadPattern = regexp.MustCompile(`(?i)</head\s*>`)

// injectAgent appends the control-agent bootstrap immediately before the
// closing head marker. Append-only and idempotent per stored document; a
// document without a head gets the tag appended at the end instead of being
// rejected (the creative may still be controllable).
func injectAgent(doc []byte, scriptURL, creativeID, groupID string) []byte {
	if strings.Contains(string(doc), agentMarker) {
		return doc
	}

	q := url.Values{}
	q.Set("bannerId", creativeID)
	if groupID != "" {
		q.Set("groupId", groupID)
	}
	tag := fmt.Sprintf(`<script %s src="%s?%s"></script>`, agentMarker, scriptURL, q.Encode())

	loc := closingHeadPattern.FindIndex(doc)
	if loc == nil {
		return append(doc, []byte("\n"+tag+"\n")...)
	}

	out := make([]byte, 0, len(doc)+len(tag)+1)
	out = append(out, doc[:loc[0]]...)
	out = append(out, []byte(tag+"\n")...)
	out = append(out, doc[loc[0]:]...)
	return out
}
