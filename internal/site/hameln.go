package site

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

var hamelnChapterHref = regexp.MustCompile(`^\./\d+\.html$`)

// Hameln parses syosetu.org novels.
type Hameln struct{}

// NewHameln returns the syosetu.org extractor.
func NewHameln() *Hameln {
	return &Hameln{}
}

// Variant implements novel.Extractor.
func (h *Hameln) Variant() novel.Variant {
	return novel.VariantHameln
}

// ParseTableOfContents reads the title from the first anchor inside div.ss and
// counts relative "./<n>.html" chapter links.
func (h *Hameln) ParseTableOfContents(page []byte) (novel.TOC, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return novel.TOC{}, fmt.Errorf("%w: %v", novel.ErrMalformedToc, err)
	}
	title := strings.TrimSpace(doc.Find("div.ss a").First().Text())
	if title == "" {
		return novel.TOC{}, fmt.Errorf("%w: title not found", novel.ErrMalformedToc)
	}
	count := doc.Find(`a[href^="./"]`).FilterFunction(func(_ int, a *goquery.Selection) bool {
		return hamelnChapterHref.MatchString(a.AttrOr("href", ""))
	}).Length()
	if count == 0 {
		return novel.TOC{}, fmt.Errorf("%w: no chapter links", novel.ErrMalformedToc)
	}
	return novel.TOC{Title: title, ChapterCount: count}, nil
}

// ParseChapter joins the #honbun paragraphs with newlines. A body without
// paragraphs yields "".
func (h *Hameln) ParseChapter(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: %v", novel.ErrMalformedChapter, err)
	}
	return joinParagraphs(doc.Find("#honbun"))
}

// ChapterURL implements novel.Extractor.
func (h *Hameln) ChapterURL(src novel.SourceRef, index int) string {
	return fmt.Sprintf("%s%d.html", canonicalTOC(src.TOCURL), index+1)
}

// joinParagraphs requires the body container; only its absence is malformed.
func joinParagraphs(body *goquery.Selection) (string, error) {
	if body.Length() == 0 {
		return "", fmt.Errorf("%w: no body container", novel.ErrMalformedChapter)
	}
	sel := body.Find("p")
	lines := make([]string, 0, sel.Length())
	sel.Each(func(_ int, p *goquery.Selection) {
		lines = append(lines, p.Text())
	})
	return strings.Join(lines, "\n"), nil
}
