package extraction

import (
	"regexp"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// CleanJSONOutput strips markdown code fences the model sometimes wraps its
// reply in and normalizes typographic quotes to plain ASCII.
func CleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")
	replacer := strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)
	return strings.TrimSpace(replacer.Replace(text))
}
