package connector

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// stripHTML extracts readable text from an HTML fragment, skipping
// script and style subtrees and collapsing runs of blank lines.
func stripHTML(fragment string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))

	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			text := strings.TrimSpace(b.String())
			return blankLines.ReplaceAllString(text, "\n\n")

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				skipDepth++
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				if skipDepth == 0 {
					b.WriteByte('\n')
				}
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				if skipDepth == 0 {
					b.WriteByte('\n')
				}
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}
