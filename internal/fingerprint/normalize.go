package fingerprint

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize collapses incidental formatting so that two renditions of
// the same content hash identically: tags stripped, whitespace runs
// collapsed, leading/trailing space removed.
func Normalize(text string) string {
	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeMarkdown renders markdown to HTML first so that markup
// punctuation (emphasis markers, link syntax) does not leak into the
// fingerprint, then normalizes like any other HTML content.
func NormalizeMarkdown(text string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		// Fall back to treating the raw text as plain content.
		return Normalize(text)
	}
	return Normalize(buf.String())
}

// htmlBlockReplacer maps block-level close tags to line breaks before
// tag stripping, preserving word boundaries.
var htmlBlockReplacer = strings.NewReplacer(
	"<br>", "\n",
	"<br/>", "\n",
	"</p>", "\n",
	"</div>", "\n",
	"</li>", "\n",
)

// HTMLToText does a basic HTML-to-text conversion for snippet and
// embedding input. Unlike Normalize it keeps single newlines between
// blocks.
func HTMLToText(html string) string {
	text := htmlBlockReplacer.Replace(html)
	text = htmlTagRegex.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRegex.ReplaceAllString(line, " "))
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
