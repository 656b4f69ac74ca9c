package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Ellipsis is appended to truncated descriptions.
const Ellipsis = "..."

var entityPattern = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)

// blockTags separate words when stripped; inline tags are removed in place.
var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "td": true, "th": true, "table": true, "blockquote": true, "hr": true,
}

// CleanDescription strips markup and entity escapes, collapses whitespace and
// bounds the result to max runes, cutting at a word boundary.
func CleanDescription(s string, max int) string {
	text := stripTags(s)
	text = entityPattern.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	return truncateWords(text, max)
}

func stripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skipDepth == 0 {
				// Raw keeps entities escaped so they can be dropped afterwards.
				b.Write(z.Raw())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skipDepth++
			default:
				if blockTags[string(name)] {
					b.WriteByte(' ')
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skipDepth > 0 {
					skipDepth--
				}
			default:
				if blockTags[string(name)] {
					b.WriteByte(' ')
				}
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte(' ')
			}
		}
	}
}

func truncateWords(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}

	cut := string(runes[:max])
	if runes[max] != ' ' {
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " ") + Ellipsis
}
