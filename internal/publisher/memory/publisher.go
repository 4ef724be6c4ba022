// Package memory records completion announcements in process memory when no
// Pub/Sub topic is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// Message captures one publish call.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the message and returns a sequential id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.messages)
}

// Completions returns the published completion announcements for topic.
func (p *Publisher) Completions(topic string) []novel.Completion {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []novel.Completion
	for _, m := range p.messages {
		if c, ok := m.Payload.(novel.Completion); ok && m.Topic == topic {
			out = append(out, c)
		}
	}
	return out
}
