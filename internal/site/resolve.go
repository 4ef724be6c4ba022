// Package site resolves user references to source variants and parses the
// pages of each supported site.
package site

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

var (
	hamelnURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?syosetu\.org/novel/(\d+)(?:[/?#]|$)`)
	narouURLPattern  = regexp.MustCompile(`^(?:https?://)?ncode\.syosetu\.com/(n[0-9]+[a-z]+)(?:[/?#]|$)`)
	hamelnIDPattern  = regexp.MustCompile(`^\d+$`)
	narouIDPattern   = regexp.MustCompile(`^n[0-9]+[a-z]+$`)
)

const (
	hamelnTOCFormat = "https://syosetu.org/novel/%s/"
	narouTOCFormat  = "https://ncode.syosetu.com/%s/"
)

// Resolve maps a URL or bare identifier to a SourceRef. The job id is the
// site's own identifier, so the same novel always resolves to the same id.
func Resolve(input string) (novel.SourceRef, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return novel.SourceRef{}, fmt.Errorf("%w: empty reference", novel.ErrInvalidReference)
	}
	lower := strings.ToLower(raw)

	switch {
	case hamelnIDPattern.MatchString(lower):
		return hamelnRef(lower, raw), nil
	case narouIDPattern.MatchString(lower):
		return narouRef(lower, raw), nil
	}
	if m := hamelnURLPattern.FindStringSubmatch(lower); m != nil {
		return hamelnRef(m[1], raw), nil
	}
	if m := narouURLPattern.FindStringSubmatch(lower); m != nil {
		return narouRef(m[1], raw), nil
	}
	return novel.SourceRef{}, fmt.Errorf("%w: %q", novel.ErrInvalidReference, raw)
}

func hamelnRef(id, input string) novel.SourceRef {
	return novel.SourceRef{
		ID:      id,
		Variant: novel.VariantHameln,
		TOCURL:  fmt.Sprintf(hamelnTOCFormat, id),
		Input:   input,
	}
}

func narouRef(id, input string) novel.SourceRef {
	return novel.SourceRef{
		ID:      id,
		Variant: novel.VariantNarou,
		TOCURL:  fmt.Sprintf(narouTOCFormat, id),
		Input:   input,
	}
}

// canonicalTOC guarantees exactly one trailing slash so chapter paths can be
// appended directly.
func canonicalTOC(tocURL string) string {
	return strings.TrimRight(tocURL, "/") + "/"
}
