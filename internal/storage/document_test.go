package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/hash/sha256"
	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func TestValidateJobID(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"12345", "n1234ab"} {
		require.NoError(t, ValidateJobID(ok))
	}
	for _, bad := range []string{"", "../etc", "a/b", "N1234AB", "12 34"} {
		require.Error(t, ValidateJobID(bad), bad)
	}
}

func TestValidateDocument(t *testing.T) {
	t.Parallel()

	require.Error(t, ValidateDocument(novel.Document{JobID: "1"}))
	require.NoError(t, ValidateDocument(novel.Document{JobID: "1", Title: "T"}))
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "documents/12345.json", ObjectName("documents", "12345"))
	require.Equal(t, "12345.json", ObjectName("", "12345"))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	doc := novel.Document{
		JobID:           "12345",
		Title:           "タイトル",
		Text:            "A\n\nC",
		Variant:         novel.VariantHameln,
		ChapterCount:    3,
		MissingChapters: []int{2},
		CreatedAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := Encode(doc)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, doc, got)

	_, err = Decode([]byte("{"))
	require.Error(t, err)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	t.Parallel()

	doc := novel.Document{JobID: "12345", Title: "T", Text: "A\n\nB", Checksum: sha256.Sum([]byte("A\n\nB"))}
	data, err := Encode(doc)
	require.NoError(t, err)
	_, err = Decode(data)
	require.NoError(t, err)

	doc.Text = "A"
	data, err = Encode(doc)
	require.NoError(t, err)
	_, err = Decode(data)
	require.ErrorContains(t, err, "checksum mismatch")
}
