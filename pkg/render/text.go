package render

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// skipTextTags hold no user-visible text
var skipTextTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true,
}

// blockTags start a new line of text, as a browser lays them out
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "option": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

var sourceWhitespace = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// visibleText approximates innerText: inline content runs together, so
// info@<span>x.org</span> stays one token, while block elements break lines.
// Lines are whitespace-collapsed and blank lines dropped.
func visibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipTextTags[n.Data] {
				return
			}
			if blockTags[n.Data] {
				sb.WriteByte('\n')
				defer sb.WriteByte('\n')
			}
		case html.TextNode:
			sb.WriteString(sourceWhitespace.Replace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
		sb.WriteByte('\n')
	}

	lines := strings.Split(sb.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// nodeText is like visibleText but joins lines with single spaces, for one element's label
func nodeText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(visibleText(sel)), " ")
}
