// Package storage holds helpers shared by the result store backends.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"

	"github.com/JakeFAU/novel-crawler/internal/hash/sha256"
	"github.com/JakeFAU/novel-crawler/internal/novel"
)

// jobIDPattern admits the ids site.Resolve produces and nothing that could
// escape a directory or object prefix.
var jobIDPattern = regexp.MustCompile(`^[0-9a-z]{1,64}$`)

// ValidateJobID rejects ids that are not safe to use as keys.
func ValidateJobID(id string) error {
	if !jobIDPattern.MatchString(id) {
		return fmt.Errorf("invalid job id %q", id)
	}
	return nil
}

// ValidateDocument checks the fields every backend requires.
func ValidateDocument(doc novel.Document) error {
	if err := ValidateJobID(doc.JobID); err != nil {
		return err
	}
	if doc.Title == "" {
		return errors.New("document title is required")
	}
	return nil
}

// ObjectName joins prefix and the document key for the job.
func ObjectName(prefix, jobID string) string {
	return path.Join(prefix, jobID+".json")
}

// Encode serializes doc for byte-oriented backends.
func Encode(doc novel.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode parses a document written by Encode. A recorded checksum must match
// the text.
func Decode(data []byte) (novel.Document, error) {
	var doc novel.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return novel.Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.Checksum != "" && !sha256.Verify([]byte(doc.Text), doc.Checksum) {
		return novel.Document{}, fmt.Errorf("decode document %s: checksum mismatch", doc.JobID)
	}
	return doc, nil
}
