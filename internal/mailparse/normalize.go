package mailparse

import (
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
)

var (
	// 仅包含链接的行，例如 "https://x.example/a" 或 "( https://x.example/a )"
	linkOnlyLine = regexp.MustCompile(`^[\s(<\[]*(https?://|mailto:)\S*[\s)>\]]*$`)
	blankRun     = regexp.MustCompile(`\n{3,}`)
)

// Normalize picks the plain-text body verbatim when present; otherwise the HTML
// body is converted to text with link-only lines dropped and blank-line runs
// collapsed. It never fails and yields "" when there is no body.
func Normalize(text, html string) string {
	if strings.TrimSpace(text) != "" {
		return text
	}
	if strings.TrimSpace(html) == "" {
		return ""
	}

	converted, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		converted = html
	}

	lines := strings.Split(strings.ReplaceAll(converted, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if linkOnlyLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}

	out := blankRun.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

// Body is Normalize applied to a parsed message.
func (m *Message) Body() string {
	return Normalize(m.Text, m.HTML)
}
