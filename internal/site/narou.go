package site

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

const (
	narouTitleSelector   = ".p-novel__title, .novel_title"
	narouEpisodeSelector = "a.p-eplist__subtitle, dl.novel_sublist2 dd.subtitle a"
	narouBodySelector    = ".p-novel__body .js-novel-text:not(.p-novel__text--preface):not(.p-novel__text--afterword)"
	narouLegacyBody      = "#novel_honbun"
)

// Narou parses ncode.syosetu.com novels. Both the current markup and the
// pre-2024 layout are recognised.
type Narou struct{}

// NewNarou returns the ncode.syosetu.com extractor.
func NewNarou() *Narou {
	return &Narou{}
}

// Variant implements novel.Extractor.
func (n *Narou) Variant() novel.Variant {
	return novel.VariantNarou
}

// ParseTableOfContents implements novel.Extractor.
// TODO: follow the ?p= pager so tables of contents beyond the first 100 episodes are counted.
func (n *Narou) ParseTableOfContents(page []byte) (novel.TOC, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return novel.TOC{}, fmt.Errorf("%w: %v", novel.ErrMalformedToc, err)
	}
	title := strings.TrimSpace(doc.Find(narouTitleSelector).First().Text())
	if title == "" {
		return novel.TOC{}, fmt.Errorf("%w: title not found", novel.ErrMalformedToc)
	}
	count := doc.Find(narouEpisodeSelector).Length()
	if count == 0 {
		return novel.TOC{}, fmt.Errorf("%w: no episode links", novel.ErrMalformedToc)
	}
	return novel.TOC{Title: title, ChapterCount: count}, nil
}

// ParseChapter implements novel.Extractor. Preface and afterword blocks are skipped.
func (n *Narou) ParseChapter(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: %v", novel.ErrMalformedChapter, err)
	}
	body := doc.Find(narouBodySelector)
	if body.Length() == 0 {
		body = doc.Find(narouLegacyBody)
	}
	return joinParagraphs(body)
}

// ChapterURL implements novel.Extractor.
func (n *Narou) ChapterURL(src novel.SourceRef, index int) string {
	return fmt.Sprintf("%s%d/", canonicalTOC(src.TOCURL), index+1)
}
