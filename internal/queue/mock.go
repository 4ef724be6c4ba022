// Package queue holds test doubles for novel.Queue; concrete queues live in
// subpackages.
package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// MockQueue is a testify mock of novel.Queue.
type MockQueue struct {
	mock.Mock
}

// Enqueue records the call and returns the configured error.
func (m *MockQueue) Enqueue(ctx context.Context, item novel.QueueItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

// Dequeue returns the configured item and error.
func (m *MockQueue) Dequeue(ctx context.Context) (novel.QueueItem, error) {
	args := m.Called(ctx)
	item, _ := args.Get(0).(novel.QueueItem)
	return item, args.Error(1)
}
