package response

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

const doctype = "<!DOCTYPE html>"

var (
	doctypeRe  = regexp.MustCompile(`(?i)^\s*<!doctype[^>]*>`)
	htmlRootRe = regexp.MustCompile(`(?i)<html[\s>]`)
	bodyOpenRe = regexp.MustCompile(`(?i)<body[\s>]`)
	bodyEndRe  = regexp.MustCompile(`(?i)</body\s*>`)
)

// unclosable lists raw-text elements a truncated stream can leave open,
// innermost first.
var unclosable = []struct {
	open, close *regexp.Regexp
	tag         string
}{
	{regexp.MustCompile(`(?i)<script[\s>]`), regexp.MustCompile(`(?i)</script\s*>`), "</script>"},
	{regexp.MustCompile(`(?i)<style[\s>]`), regexp.MustCompile(`(?i)</style\s*>`), "</style>"},
}

// Repair makes doc a complete document: a doctype, a root element, and
// closing tags for anything a truncated stream left open.
func Repair(doc string) string {
	doc = strings.TrimSpace(doc)

	if !htmlRootRe.MatchString(doc) {
		body := doctypeRe.ReplaceAllString(doc, "")
		return doctype + "\n" + shell(closeRawText(strings.TrimSpace(body)))
	}

	if !htmlCloseRe.MatchString(doc) {
		doc = closeRawText(doc)
		if bodyOpenRe.MatchString(doc) && !bodyEndRe.MatchString(doc) {
			doc += "\n</body>"
		}
		doc += "\n</html>"
	}

	if !doctypeRe.MatchString(doc) {
		doc = doctype + "\n" + doc
	}
	return doc
}

// closeRawText appends closing tags for unbalanced script and style elements.
func closeRawText(doc string) string {
	for _, el := range unclosable {
		opens := len(el.open.FindAllStringIndex(doc, -1))
		closes := len(el.close.FindAllStringIndex(doc, -1))
		if opens > closes {
			doc += "\n" + el.tag
		}
	}
	return doc
}

func shell(body string) string {
	return `<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Game</title>
</head>
<body>
` + body + `
</body>
</html>`
}

// hasGameFragments reports whether text contains a canvas or script tag.
func hasGameFragments(text string) bool {
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "canvas" || tag == "script" {
				return true
			}
		}
	}
}

// Complete reports whether doc has a doctype and an opened and closed root
// element.
func Complete(doc string) bool {
	return doctypeRe.MatchString(doc) && htmlRootRe.MatchString(doc) && htmlCloseRe.MatchString(doc)
}
