package gateway

import "strings"

// fenceOpeners are tried in order; the bare fence goes last so a labelled
// fence is stripped with its label.
var fenceOpeners = []string{"```hcl", "```terraform", "```"}

// CleanCode strips a markdown code fence from model output and trims
// surrounding whitespace. Text outside the first fenced block is dropped.
// An unterminated fence keeps everything after the opener.
func CleanCode(text string) string {
	for _, opener := range fenceOpeners {
		start := strings.Index(text, opener)
		if start < 0 {
			continue
		}
		body := text[start+len(opener):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}
