package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// ChapterSeparator sits between consecutive chapters in an assembled document.
const ChapterSeparator = "\n\n"

// Assembler joins chapter results into a stored document.
type Assembler struct {
	hasher novel.Hasher
	clock  novel.Clock
}

// NewAssembler returns an Assembler that checksums with hasher.
func NewAssembler(hasher novel.Hasher, clock novel.Clock) *Assembler {
	return &Assembler{hasher: hasher, clock: clock}
}

// Assemble concatenates present chapters in ascending index order. Missing
// chapters are skipped and listed (one-based) in MissingChapters.
func (a *Assembler) Assemble(src novel.SourceRef, title string, results []novel.ChapterResult) (novel.Document, error) {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(x, y novel.ChapterResult) int {
		return x.Index - y.Index
	})

	parts := make([]string, 0, len(ordered))
	var missing []int
	for _, res := range ordered {
		if res.Missing() {
			missing = append(missing, res.Index+1)
			continue
		}
		parts = append(parts, res.Text)
	}
	text := strings.Join(parts, ChapterSeparator)

	sum, err := a.hasher.Hash([]byte(text))
	if err != nil {
		return novel.Document{}, fmt.Errorf("checksum document: %w", err)
	}
	return novel.Document{
		JobID:           src.ID,
		Title:           title,
		Text:            text,
		Variant:         src.Variant,
		SourceURL:       src.TOCURL,
		ChapterCount:    len(results),
		MissingChapters: missing,
		Checksum:        sum,
		CreatedAt:       a.clock.Now(),
	}, nil
}
