package message

import (
	"html"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, table"

// htmlToText flattens an HTML body into plain text. Block elements end
// lines and link targets follow their anchor text.
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("head, script, style").Remove()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.HasPrefix(href, "http") && strings.TrimSpace(s.Text()) != href {
			s.AppendHtml(" " + html.EscapeString(href))
		}
	})
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})
	return normalizeText(doc.Text()), nil
}
