package notes

import "strings"

// ContentPreview returns at most maxChars characters of the first lines of
// content, appending "..." when anything was cut.
func ContentPreview(content string, maxChars int) string {
	content = strings.TrimSpace(content)
	if content == "" || maxChars <= 0 {
		return ""
	}

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return strings.TrimRight(string(runes[:maxChars-3]), " \n") + "..."
}
