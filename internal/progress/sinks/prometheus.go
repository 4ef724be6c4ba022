package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/novel-crawler/internal/progress"
)

// PrometheusSink exports job lifecycle and chapter latency metrics derived
// from progress events.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	chapterBytes    *prometheus.CounterVec
	chapterDuration *prometheus.HistogramVec
	chapterAttempts prometheus.Histogram

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novel_progress_jobs_started_total",
			Help: "Jobs that have started, by variant.",
		}, []string{"variant"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novel_progress_jobs_completed_total",
			Help: "Jobs that have ended, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "novel_progress_jobs_running",
			Help: "Jobs between JOB_START and JOB_DONE or JOB_ERROR.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novel_progress_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		chapterBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "novel_progress_chapter_bytes_total",
			Help: "Chapter text bytes assembled, by variant.",
		}, []string{"variant"}),
		chapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "novel_progress_chapter_duration_seconds",
			Help:    "Time to fetch one chapter including retries and politeness delays.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"variant"}),
		chapterAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "novel_progress_chapter_attempts",
			Help:    "Attempts used per chapter.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
		running: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.chapterBytes,
		s.chapterDuration,
		s.chapterAttempts,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.WithLabelValues(variantLabel(evt)).Inc()
			if s.markRunning(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finishJob(evt, "success")
		case progress.StageJobError:
			s.finishJob(evt, "error")
		case progress.StageChapterDone:
			s.observeChapter(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finishJob(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.clearRunning(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

func (s *PrometheusSink) observeChapter(evt progress.Event) {
	variant := variantLabel(evt)
	if evt.Bytes > 0 {
		s.chapterBytes.WithLabelValues(variant).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.chapterDuration.WithLabelValues(variant).Observe(evt.Dur.Seconds())
	}
	if evt.Attempts > 0 {
		s.chapterAttempts.Observe(float64(evt.Attempts))
	}
}

func (s *PrometheusSink) markRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; ok {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *PrometheusSink) clearRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[id]; !ok {
		return false
	}
	delete(s.running, id)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func variantLabel(evt progress.Event) string {
	if evt.Variant == "" {
		return "unknown"
	}
	return evt.Variant
}
