package progress

import (
	"context"
	"fmt"
	"time"
)

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit totals chapter bytes from CHAPTER_DONE events.
func ExampleHub_Emit() {
	var bytes int64
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second}, sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			bytes += evt.Bytes
		}
		return nil
	}))

	for i := range 3 {
		hub.Emit(Event{
			JobID:     "12345",
			TS:        time.Unix(0, 0),
			Stage:     StageChapterDone,
			Chapter:   i,
			Completed: i + 1,
			Total:     3,
			Bytes:     100,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("chapter bytes: %d\n", bytes)
	// Output:
	// chapter bytes: 300
}
