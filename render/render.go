// Package render turns the lightweight Markdown of dialogue messages into
// HTML for web clients and ANSI text for the console.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

// HTML converts message Markdown into the small HTML subset chat clients
// render reliably: headings become bold paragraphs and lists become
// bullet paragraphs.
func HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return normalize(buf.String()), nil
}

var (
	headingRe = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	olRe      = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe      = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe      = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
)

func normalize(s string) string {
	s = headingRe.ReplaceAllString(s, "<p><strong>$1</strong></p>")
	s = flattenLists(s)
	return strings.TrimSpace(s)
}

func flattenLists(s string) string {
	s = olRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			fmt.Fprintf(&b, "<p>%d. %s</p>", i+1, strings.TrimSpace(item[1]))
		}
		return b.String()
	})
	return ulRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for _, item := range items {
			b.WriteString("<p>• " + strings.TrimSpace(item[1]) + "</p>")
		}
		return b.String()
	})
}

// Terminal renders Markdown for an ANSI terminal.
type Terminal struct {
	r *glamour.TermRenderer
}

// NewTerminal builds a renderer with the given glamour style ("dark",
// "light", "notty", ...) wrapping at width columns.
func NewTerminal(style string, width int) (*Terminal, error) {
	if style == "" {
		style = "dark"
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return nil, fmt.Errorf("terminal renderer: %w", err)
	}
	return &Terminal{r: r}, nil
}

// Render returns text styled for the terminal, or text unchanged if
// rendering fails.
func (t *Terminal) Render(text string) string {
	out, err := t.r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
