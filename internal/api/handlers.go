package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/dispatcher"
	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/tracker"
)

const maxStartBody = 1 << 16

type startRequest struct {
	URL string `json:"url"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	ref, err := readReference(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.dispatcher.Dispatch(r.Context(), ref)
	if err != nil {
		status := dispatchStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("dispatch failed", zap.String("reference", ref), zap.Error(err))
		}
		s.writeError(w, status, err.Error())
		return
	}
	status := http.StatusAccepted
	if out.Status == dispatcher.StatusReady {
		status = http.StatusOK
	}
	s.writeJSON(w, status, out)
}

// readReference accepts {"url": ...} JSON or form values url / nid.
func readReference(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxStartBody)
	var ref string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", errors.New("invalid JSON")
		}
		ref = req.URL
	} else {
		if err := r.ParseForm(); err != nil {
			return "", errors.New("invalid form body")
		}
		ref = r.FormValue("url")
		if ref == "" {
			ref = r.FormValue("nid")
		}
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("url is required")
	}
	return ref, nil
}

func dispatchStatus(err error) int {
	switch {
	case errors.Is(err, novel.ErrInvalidReference):
		return http.StatusBadRequest
	case errors.Is(err, dispatcher.ErrQueueFull), errors.Is(err, novel.ErrQueueClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pct := s.progress.Query(id)
	if pct == 0 {
		if _, err := s.store.Get(r.Context(), id); err == nil {
			pct = tracker.Complete
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"progress": pct})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, novel.ErrNotFound) {
			s.logger.Error("load document failed", zap.String("job_id", id), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(doc))
	if doc.Checksum != "" {
		w.Header().Set("ETag", `"`+doc.Checksum+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc.Text)); err != nil {
		s.logger.Warn("write document failed", zap.String("job_id", id), zap.Error(err))
	}
}

// contentDisposition names the attachment after the title. Non-ASCII titles
// are encoded as an RFC 2231 filename* parameter.
func contentDisposition(doc novel.Document) string {
	name := sanitizeFilename(doc.Title)
	if name == "" {
		name = doc.JobID
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name + ".txt"}); v != "" {
		return v
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": doc.JobID + ".txt"})
}

func sanitizeFilename(title string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		default:
			return r
		}
	}, title))
}

func (s *Server) jobState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.dispatcher.Status(r.Context(), id)
	if err != nil {
		s.logger.Error("job state lookup failed", zap.String("job_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}
