package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"sheetrelay/gateway/models"
)

// maxIDAttempts bounds retries when the generator returns an id already in use.
const maxIDAttempts = 3

// Observer is notified of every change to the store. Callbacks run while the
// store lock is held and must not block or call back into the store.
type Observer interface {
	JobChanged(job models.Job)
	JobRemoved(id string)
}

// Patch lists the fields an update replaces. Nil fields are left untouched.
type Patch struct {
	Status            *models.JobStatus
	CompletedAt       *time.Time
	ErrorMessage      *string
	ResultLocator     *string
	LocalArtifactPath *string
	ArtifactMIMEType  *string
	ArtifactExt       *string
}

// Store is the process-lifetime job table. It is safe for concurrent use and
// hands out copies, so callers never observe a partially applied update.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*models.Job
	newID     IDGenerator
	now       func() time.Time
	observers []Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces NewJobID.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithObserver registers an observer for job changes.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:  make(map[string]*models.Job),
		newID: NewJobID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Create allocates a new PENDING job.
func (s *Store) Create(fileName, clientName string) (models.Job, error) {
	token, err := NewCallbackToken()
	if err != nil {
		return models.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return models.Job{}, fmt.Errorf("failed to allocate a unique job id after %d attempts", maxIDAttempts)
		}
		id, err = s.newID()
		if err != nil {
			return models.Job{}, err
		}
		if _, taken := s.jobs[id]; !taken {
			break
		}
	}

	job := &models.Job{
		ID:            id,
		FileName:      fileName,
		ClientName:    clientName,
		Status:        models.StatusPending,
		UploadedAt:    s.now().UTC(),
		CallbackToken: token,
	}
	s.jobs[id] = job
	s.notifyChanged(*job)
	return *job, nil
}

// Get returns a copy of the job, or false when the id is unknown.
func (s *Store) Get(id string) (models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	return *job, true
}

// Update merges the patch into the job. It returns false when the id is unknown.
func (s *Store) Update(id string, patch Patch) (models.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	s.apply(job, patch)
	return *job, true
}

// List returns every job, most recently uploaded first.
func (s *Store) List() []models.Job {
	s.mu.RLock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out
}

// Delete removes the job. Deleting an unknown id returns false.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.notifyRemoved(id)
	return true
}

// Sweep removes every job uploaded before cutoff, whatever its status, and
// returns the removed records.
func (s *Store) Sweep(cutoff time.Time) []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.Job
	for id, job := range s.jobs {
		if job.UploadedAt.Before(cutoff) {
			removed = append(removed, *job)
			delete(s.jobs, id)
			s.notifyRemoved(id)
		}
	}
	return removed
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) apply(job *models.Job, patch Patch) {
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		job.CompletedAt = &t
	}
	if patch.ErrorMessage != nil {
		msg := *patch.ErrorMessage
		job.ErrorMessage = &msg
	}
	if patch.ResultLocator != nil {
		loc := *patch.ResultLocator
		job.ResultLocator = &loc
	}
	if patch.LocalArtifactPath != nil {
		p := *patch.LocalArtifactPath
		job.LocalArtifactPath = &p
	}
	if patch.ArtifactMIMEType != nil {
		job.ArtifactMIMEType = *patch.ArtifactMIMEType
	}
	if patch.ArtifactExt != nil {
		job.ArtifactExt = *patch.ArtifactExt
	}
	s.notifyChanged(*job)
}

func (s *Store) notifyChanged(job models.Job) {
	for _, o := range s.observers {
		o.JobChanged(job)
	}
}

func (s *Store) notifyRemoved(id string) {
	for _, o := range s.observers {
		o.JobRemoved(id)
	}
}
