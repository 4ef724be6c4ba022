package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/progress"
)

// fakeExtractor treats pages as plain text: the table of contents is
// "title|count" and a chapter page is its own text.
type fakeExtractor struct{}

func (fakeExtractor) Variant() novel.Variant { return novel.VariantHameln }

func (fakeExtractor) ParseTableOfContents(page []byte) (novel.TOC, error) {
	title, count, ok := strings.Cut(string(page), "|")
	if !ok {
		return novel.TOC{}, novel.ErrMalformedToc
	}
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return novel.TOC{}, novel.ErrMalformedToc
	}
	return novel.TOC{Title: title, ChapterCount: n}, nil
}

func (fakeExtractor) ParseChapter(page []byte) (string, error) {
	if string(page) == "<garbled>" {
		return "", novel.ErrMalformedChapter
	}
	return string(page), nil
}

func (fakeExtractor) ChapterURL(src novel.SourceRef, index int) string {
	return fmt.Sprintf("%s%d.html", src.TOCURL, index+1)
}

type fakeExtractors struct{}

func (fakeExtractors) Lookup(novel.Variant) (novel.Extractor, error) {
	return fakeExtractor{}, nil
}

// scriptedPages serves pages by URL. failures[url] requests fail before the
// page is served; delays[url] is slept before answering.
type scriptedPages struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	delays   map[string]time.Duration
	calls    map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScriptedPages() *scriptedPages {
	return &scriptedPages{
		pages:    make(map[string]string),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
}

func (s *scriptedPages) Fetch(ctx context.Context, req novel.FetchRequest) (novel.FetchResponse, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	s.mu.Lock()
	s.calls[req.URL]++
	delay := s.delays[req.URL]
	fail := s.failures[req.URL] > 0
	if fail {
		s.failures[req.URL]--
	}
	page, ok := s.pages[req.URL]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return novel.FetchResponse{}, ctx.Err()
		}
	}
	if fail {
		return novel.FetchResponse{}, errors.New("connection reset by peer")
	}
	if !ok {
		return novel.FetchResponse{}, fmt.Errorf("unexpected status 404 for %s", req.URL)
	}
	return novel.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(page)}, nil
}

func (s *scriptedPages) Calls(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func fastConfig(attempts int) FetchConfig {
	return FetchConfig{
		MaxAttempts:    attempts,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

const testTOC = "https://syosetu.org/novel/12345/"

func testSource() novel.SourceRef {
	return novel.SourceRef{ID: "12345", Variant: novel.VariantHameln, TOCURL: testTOC}
}

func chapterURL(n int) string {
	return fmt.Sprintf("%s%d.html", testTOC, n)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(evt.Stage))
}

func (r *recordingEmitter) Stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
