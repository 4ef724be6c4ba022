package site

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		id      string
		variant novel.Variant
		toc     string
	}{
		{"bare digits", "12345", "12345", novel.VariantHameln, "https://syosetu.org/novel/12345/"},
		{"hameln url", "https://syosetu.org/novel/12345/", "12345", novel.VariantHameln, "https://syosetu.org/novel/12345/"},
		{"hameln chapter url", "https://syosetu.org/novel/12345/3.html", "12345", novel.VariantHameln, "https://syosetu.org/novel/12345/"},
		{"hameln no scheme", "syosetu.org/novel/987", "987", novel.VariantHameln, "https://syosetu.org/novel/987/"},
		{"narou url", "https://ncode.syosetu.com/N1234AB/", "n1234ab", novel.VariantNarou, "https://ncode.syosetu.com/n1234ab/"},
		{"narou episode url", "https://ncode.syosetu.com/n1234ab/7/", "n1234ab", novel.VariantNarou, "https://ncode.syosetu.com/n1234ab/"},
		{"bare ncode", " n9669bk ", "n9669bk", novel.VariantNarou, "https://ncode.syosetu.com/n9669bk/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ref, err := Resolve(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.id, ref.ID)
			require.Equal(t, tc.variant, ref.Variant)
			require.Equal(t, tc.toc, ref.TOCURL)
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "https://example.com/novel/1", "syosetu.org/novel/abc", "nope"} {
		_, err := Resolve(input)
		require.ErrorIs(t, err, novel.ErrInvalidReference, input)
	}
}

const hamelnTOC = `<html><body>
<div class="ss"><span><a href="./">  My Novel  </a></span></div>
<table>
<tr><td><a href="./1.html">One</a></td></tr>
<tr><td><a href="./2.html">Two</a></td></tr>
<tr><td><a href="./3.html">Three</a></td></tr>
</table>
<a href="/other">elsewhere</a>
</body></html>`

func TestHameln_ParseTableOfContents(t *testing.T) {
	t.Parallel()

	toc, err := NewHameln().ParseTableOfContents([]byte(hamelnTOC))
	require.NoError(t, err)
	require.Equal(t, "My Novel", toc.Title)
	require.Equal(t, 3, toc.ChapterCount)
}

func TestHameln_ParseTableOfContents_Malformed(t *testing.T) {
	t.Parallel()

	h := NewHameln()
	_, err := h.ParseTableOfContents([]byte(`<html><body><p>nothing</p></body></html>`))
	require.ErrorIs(t, err, novel.ErrMalformedToc)

	_, err = h.ParseTableOfContents([]byte(`<div class="ss"><a href="/x">T</a></div>`))
	require.ErrorIs(t, err, novel.ErrMalformedToc)
}

func TestHameln_ParseChapter(t *testing.T) {
	t.Parallel()

	page := `<div id="honbun"><p id="1">first</p><p id="2"></p><p id="3">third</p></div><p>footer</p>`
	text, err := NewHameln().ParseChapter([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "first\n\nthird", text)

	_, err = NewHameln().ParseChapter([]byte(`<div id="maind"></div>`))
	require.ErrorIs(t, err, novel.ErrMalformedChapter)
}

func TestHameln_ParseChapterWithoutParagraphs(t *testing.T) {
	t.Parallel()

	text, err := NewHameln().ParseChapter([]byte(`<div id="honbun">挿絵のみ</div>`))
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestHameln_ChapterURL(t *testing.T) {
	t.Parallel()

	ref := novel.SourceRef{TOCURL: "https://syosetu.org/novel/12345"}
	require.Equal(t, "https://syosetu.org/novel/12345/1.html", NewHameln().ChapterURL(ref, 0))
	require.Equal(t, "https://syosetu.org/novel/12345/10.html", NewHameln().ChapterURL(ref, 9))
}

func TestNarou_ParseTableOfContents(t *testing.T) {
	t.Parallel()

	current := `<h1 class="p-novel__title">Current Title</h1>
<div class="p-eplist">
<div class="p-eplist__sublist"><a href="/n1234ab/1/" class="p-eplist__subtitle">Ep 1</a></div>
<div class="p-eplist__sublist"><a href="/n1234ab/2/" class="p-eplist__subtitle">Ep 2</a></div>
</div>`
	toc, err := NewNarou().ParseTableOfContents([]byte(current))
	require.NoError(t, err)
	require.Equal(t, novel.TOC{Title: "Current Title", ChapterCount: 2}, toc)

	legacy := `<p class="novel_title">Legacy</p>
<dl class="novel_sublist2"><dd class="subtitle"><a href="/n1234ab/1/">a</a></dd></dl>
<dl class="novel_sublist2"><dd class="subtitle"><a href="/n1234ab/2/">b</a></dd></dl>
<dl class="novel_sublist2"><dd class="subtitle"><a href="/n1234ab/3/">c</a></dd></dl>`
	toc, err = NewNarou().ParseTableOfContents([]byte(legacy))
	require.NoError(t, err)
	require.Equal(t, novel.TOC{Title: "Legacy", ChapterCount: 3}, toc)

	_, err = NewNarou().ParseTableOfContents([]byte(`<h1 class="p-novel__title">Short</h1>`))
	require.ErrorIs(t, err, novel.ErrMalformedToc)
}

func TestNarou_ParseChapter(t *testing.T) {
	t.Parallel()

	page := `<div class="p-novel__body">
<div class="js-novel-text p-novel__text p-novel__text--preface"><p>preface</p></div>
<div class="js-novel-text p-novel__text"><p>line one</p><p>line two</p></div>
<div class="js-novel-text p-novel__text p-novel__text--afterword"><p>afterword</p></div>
</div>`
	text, err := NewNarou().ParseChapter([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", text)

	legacy := `<div id="novel_honbun"><p>old</p><p>style</p></div>`
	text, err = NewNarou().ParseChapter([]byte(legacy))
	require.NoError(t, err)
	require.Equal(t, "old\nstyle", text)

	text, err = NewNarou().ParseChapter([]byte(`<div id="novel_honbun"></div>`))
	require.NoError(t, err)
	require.Empty(t, text)

	_, err = NewNarou().ParseChapter([]byte(`<div class="p-novel__body"></div>`))
	require.ErrorIs(t, err, novel.ErrMalformedChapter)
}

func TestNarou_ChapterURL(t *testing.T) {
	t.Parallel()

	ref := novel.SourceRef{TOCURL: "https://ncode.syosetu.com/n1234ab/"}
	require.Equal(t, "https://ncode.syosetu.com/n1234ab/3/", NewNarou().ChapterURL(ref, 2))
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	ex, err := reg.Lookup(novel.VariantHameln)
	require.NoError(t, err)
	require.Equal(t, novel.VariantHameln, ex.Variant())

	ex, err = reg.Lookup(novel.VariantNarou)
	require.NoError(t, err)
	require.Equal(t, novel.VariantNarou, ex.Variant())

	_, err = reg.Lookup("kakuyomu")
	require.ErrorIs(t, err, novel.ErrInvalidReference)
}
