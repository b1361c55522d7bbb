package embed

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*(\s[^>]*)?/?>`)
	spaceRe      = regexp.MustCompile(`\s+`)
	disallowedRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)

	markdown = goldmark.New()
)

// PrepareText builds the string sent to the embedding model: markup is
// stripped, whitespace collapsed, symbols other than basic punctuation
// dropped, and the result cut to maxLen runes at the last full stop inside
// the limit when there is one.
func PrepareText(title, content string, maxLen int) string {
	body := content
	if htmlTagRe.MatchString(body) {
		body = stripHTML(body)
	}
	body = stripMarkdown(body)

	s := strings.TrimSpace(title) + "\n" + body
	s = spaceRe.ReplaceAllString(s, " ")
	s = disallowedRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		cut := string([]rune(s)[:maxLen])
		if i := strings.LastIndexByte(cut, '.'); i > 0 {
			cut = cut[:i+1]
		}
		s = strings.TrimSpace(cut)
	}
	return s
}

var blockSelectors = "p, div, br, li, tr, td, th, h1, h2, h3, h4, h5, h6, blockquote, section, article"

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return htmlTagRe.ReplaceAllString(s, " ")
	}
	doc.Find("script, style, noscript, iframe").Remove()
	doc.Find(blockSelectors).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}

func stripMarkdown(s string) string {
	source := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
		case *ast.AutoLink:
			b.Write(node.Label(source))
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return s
	}
	return b.String()
}
