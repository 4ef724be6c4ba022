package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func openInMemory(t *testing.T) *ResultStore {
	t.Helper()
	store, err := Open(Config{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openInMemory(t)

	_, err := store.Get(ctx, "12345")
	require.ErrorIs(t, err, novel.ErrNotFound)

	doc := novel.Document{JobID: "12345", Title: "My Novel", Text: "A\n\nB\n\nC", MissingChapters: []int{4}}
	require.NoError(t, store.Put(ctx, doc))

	got, err := store.Get(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, doc.Text, got.Text)
	require.Equal(t, []int{4}, got.MissingChapters)
}

func TestPutKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openInMemory(t)
	require.NoError(t, store.Put(ctx, novel.Document{JobID: "n1234ab", Title: "first"}))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, store.Put(ctx, novel.Document{JobID: "n1234ab", Title: "later"}))
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "n1234ab")
	require.NoError(t, err)
	require.Equal(t, "first", got.Title)
}

func TestOpenOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, novel.Document{JobID: "1", Title: "persisted"}))
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir}, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "persisted", got.Title)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(Config{}, nil)
	require.Error(t, err)
}
