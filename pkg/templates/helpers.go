package templates

import "strings"

// Telegram legacy Markdown only treats these as entity markers
var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes text for Telegram's legacy Markdown parse mode
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

// CodeSpan makes text safe inside a `code` span, where escapes are not honoured
func CodeSpan(text string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(text, ""), "`", "'")
}
