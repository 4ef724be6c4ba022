package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func TestNewMessageCompletionAttributes(t *testing.T) {
	completion := novel.Completion{
		JobID:           "n1234ab",
		Title:           "Title",
		Variant:         novel.VariantNarou,
		ChapterCount:    4,
		MissingChapters: []int{2, 3},
		CompletedAt:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	msg, err := newMessage(context.Background(), completion)
	require.NoError(t, err)
	require.Equal(t, "n1234ab", msg.Attributes[AttrJobID])
	require.Equal(t, "narou", msg.Attributes[AttrVariant])
	require.Equal(t, "2", msg.Attributes[AttrMissing])

	var decoded novel.Completion
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	require.Equal(t, completion.JobID, decoded.JobID)
	require.Equal(t, []int{2, 3}, decoded.MissingChapters)
}

func TestNewMessageUnmarshalable(t *testing.T) {
	_, err := newMessage(context.Background(), make(chan int))
	require.Error(t, err)
}

func TestNewMessageWithoutSpanHasNoTraceParent(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	msg, err := newMessage(context.Background(), map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotContains(t, msg.Attributes, AttrJobID)
	require.NotContains(t, msg.Attributes, "traceparent")
}

func TestPublishWithoutPublisher(t *testing.T) {
	_, err := New(nil).Publish(context.Background(), "topic", "payload")
	require.Error(t, err)
}

func TestCarrierKeys(t *testing.T) {
	c := &carrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
