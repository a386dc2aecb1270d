package shopify

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reSpaces = regexp.MustCompile(`[ \t]+`)

// DescriptionText reduces a product's HTML body to plain sentences suitable
// for speech synthesis. Markup the voice channel cannot render (images,
// scripts, styles) is discarded.
func DescriptionText(bodyHTML string) string {
	if strings.TrimSpace(bodyHTML) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(bodyHTML))
	if err != nil {
		// Fall back to the raw text with tags crudely removed.
		return strings.TrimSpace(reSpaces.ReplaceAllString(stripTags(bodyHTML), " "))
	}

	doc.Find("script,style,img").Remove()

	var out []string
	doc.Find("h1,h2,h3,h4,p,li").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			out = append(out, text)
		}
	})
	if len(out) == 0 {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			out = append(out, text)
		}
	}

	var b strings.Builder
	for i, fragment := range out {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(fragment)
		if !strings.HasSuffix(fragment, ".") && !strings.HasSuffix(fragment, "!") && !strings.HasSuffix(fragment, "?") {
			b.WriteString(".")
		}
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(b.String(), " "))
}

var reTag = regexp.MustCompile(`<[^>]*>`)

func stripTags(html string) string {
	return reTag.ReplaceAllString(html, " ")
}
