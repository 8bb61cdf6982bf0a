package news

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// CleanText strips markup from feed text, decodes entities and collapses
// whitespace.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
			}
			break
		}
		if tt == html.TextToken {
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeTitle folds case and whitespace so trivially different headlines
// compare equal. Only used when title normalization is enabled.
func NormalizeTitle(s string) string {
	return strings.ToLower(CleanText(s))
}
