package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/progress"
	"github.com/JakeFAU/novel-crawler/internal/store"
)

// TestStoreSinkPersistsEvents ensures chapter counters are collapsed per job before persisting.
func TestStoreSinkPersistsEvents(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{}
	sink := NewStoreSink(repo, nil)
	now := time.Now()

	batch := []progress.Event{
		{JobID: "12345", Stage: progress.StageJobStart, Variant: "hameln", TS: now},
		{JobID: "12345", Stage: progress.StageChapterDone, Chapter: 0, Total: 3, TS: now.Add(time.Second)},
		{JobID: "12345", Stage: progress.StageChapterDone, Chapter: 2, Total: 3, Missing: true, TS: now.Add(3 * time.Second)},
		{JobID: "12345", Stage: progress.StageChapterDone, Chapter: 1, Total: 3, TS: now.Add(2 * time.Second)},
		{JobID: "n9999zz", Stage: progress.StageJobError, Note: "malformed table of contents", TS: now},
		{JobID: "12345", Stage: progress.StageJobDone, TS: now.Add(4 * time.Second)},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, []string{"12345"}, repo.starts)
	require.Equal(t, []completeCall{
		{jobID: "n9999zz", status: store.RunError, errMsg: "malformed table of contents"},
		{jobID: "12345", status: store.RunSuccess},
	}, repo.completes)
	require.Equal(t, []chapterCall{{jobID: "12345", done: 3, missing: 1, at: now.Add(3 * time.Second)}}, repo.chapters)
}

// TestStoreSinkHandlesErrors surfaces repository failures back to the caller.
func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	repo := &fakeRunRepo{fail: true}
	sink := NewStoreSink(repo, nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "12345", Stage: progress.StageJobStart, TS: time.Now()},
	})
	require.ErrorContains(t, err, "upsert job start")

	err = sink.Consume(context.Background(), []progress.Event{
		{JobID: "12345", Stage: progress.StageChapterDone, Total: 1, TS: time.Now()},
	})
	require.ErrorContains(t, err, "add chapters")
}

func TestStoreSinkNilRepository(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewStoreSink(nil, nil).Consume(context.Background(), []progress.Event{{JobID: "1"}}))
}

type completeCall struct {
	jobID  string
	status store.RunStatus
	errMsg string
}

type chapterCall struct {
	jobID         string
	done, missing int
	at            time.Time
}

type fakeRunRepo struct {
	fail      bool
	starts    []string
	completes []completeCall
	chapters  []chapterCall
}

func (f *fakeRunRepo) UpsertJobStart(_ context.Context, jobID, _ string, _ time.Time) error {
	if f.fail {
		return assertErr("start")
	}
	f.starts = append(f.starts, jobID)
	return nil
}

func (f *fakeRunRepo) AddChapters(_ context.Context, jobID string, done, missing int, at time.Time) error {
	if f.fail {
		return assertErr("chapters")
	}
	f.chapters = append(f.chapters, chapterCall{jobID: jobID, done: done, missing: missing, at: at})
	return nil
}

func (f *fakeRunRepo) CompleteJob(_ context.Context, jobID string, _ time.Time, status store.RunStatus, errMsg *string) error {
	if f.fail {
		return assertErr("complete")
	}
	call := completeCall{jobID: jobID, status: status}
	if errMsg != nil {
		call.errMsg = *errMsg
	}
	f.completes = append(f.completes, call)
	return nil
}

func (f *fakeRunRepo) GetJob(context.Context, string) (store.JobRun, error) {
	return store.JobRun{}, store.ErrNotFound
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
