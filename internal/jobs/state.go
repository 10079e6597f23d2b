package jobs

import (
	"errors"
	"fmt"

	"sheetrelay/gateway/models"
)

var errEmptyCompletion = errors.New("completion carries neither a result locator nor a local artifact")

// Completion describes where the produced artifact can be retrieved from.
// Exactly one of ResultLocator and LocalArtifactPath is set.
type Completion struct {
	ResultLocator     string
	LocalArtifactPath string
	MIMEType          string
	Ext               string
}

// MarkProcessing moves a PENDING job to PROCESSING once its artifact has been
// handed to the workflow engine.
func (s *Store) MarkProcessing(id string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("mark %s processing: %w", id, ErrNotFound)
	}
	if job.Status != models.StatusPending {
		return *job, fmt.Errorf("mark %s processing from %s: %w", id, job.Status, ErrInvalidState)
	}

	status := models.StatusProcessing
	s.apply(job, Patch{Status: &status})
	return *job, nil
}

// TryComplete moves a non-terminal job to COMPLETED. Both the synchronous
// webhook response and the completion callback land here, so whichever
// arrives first wins and the other observes ErrInvalidState.
func (s *Store) TryComplete(id string, c Completion) (models.Job, error) {
	if (c.ResultLocator == "") == (c.LocalArtifactPath == "") {
		return models.Job{}, fmt.Errorf("complete %s: %w", id, errEmptyCompletion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("complete %s: %w", id, ErrNotFound)
	}
	if job.Status.Terminal() {
		return *job, fmt.Errorf("complete %s: already %s: %w", id, job.Status, ErrInvalidState)
	}

	status := models.StatusCompleted
	now := s.now().UTC()
	patch := Patch{Status: &status, CompletedAt: &now}
	if c.ResultLocator != "" {
		patch.ResultLocator = &c.ResultLocator
	} else {
		patch.LocalArtifactPath = &c.LocalArtifactPath
		patch.ArtifactMIMEType = &c.MIMEType
		patch.ArtifactExt = &c.Ext
	}
	s.apply(job, patch)
	return *job, nil
}

// TryFail moves a PROCESSING job to FAILED with the given message. A job that
// already reached a terminal state is left untouched.
func (s *Store) TryFail(id, message string) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("fail %s: %w", id, ErrNotFound)
	}
	if job.Status != models.StatusProcessing {
		return *job, fmt.Errorf("fail %s from %s: %w", id, job.Status, ErrInvalidState)
	}

	status := models.StatusFailed
	s.apply(job, Patch{Status: &status, ErrorMessage: &message})
	return *job, nil
}
