package site

import (
	"fmt"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// Registry maps a variant tag to its extractor.
type Registry struct {
	extractors map[novel.Variant]novel.Extractor
}

// NewRegistry indexes the given extractors by their variant. Later entries
// replace earlier ones with the same variant.
func NewRegistry(extractors ...novel.Extractor) *Registry {
	m := make(map[novel.Variant]novel.Extractor, len(extractors))
	for _, ex := range extractors {
		m[ex.Variant()] = ex
	}
	return &Registry{extractors: m}
}

// DefaultRegistry knows every built-in variant.
func DefaultRegistry() *Registry {
	return NewRegistry(NewHameln(), NewNarou())
}

// Lookup returns the extractor registered for variant.
func (r *Registry) Lookup(variant novel.Variant) (novel.Extractor, error) {
	ex, ok := r.extractors[variant]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported variant %q", novel.ErrInvalidReference, variant)
	}
	return ex, nil
}
