package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "novel-complete", novel.Completion{JobID: "12345"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.Equal(t, "novel-complete", pub.Messages()[0].Topic)

	completions := pub.Completions("novel-complete")
	require.Len(t, completions, 1)
	require.Equal(t, "12345", completions[0].JobID)
	require.Empty(t, pub.Completions("other"))
}
