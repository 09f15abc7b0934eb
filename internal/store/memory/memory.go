// Package memory is a process-local store used by tests and single-shot CLI runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/screening"
)

// Store keeps every record in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]*screening.Job
	jobOrder    []string
	resumes     map[string]*screening.Resume
	resumeOrder []string
	evaluations []*screening.Evaluation
	audit       []*audit.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*screening.Job),
		resumes: make(map[string]*screening.Resume),
	}
}

func (s *Store) CreateJob(_ context.Context, job *screening.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.MustHaveSkills = append([]string(nil), job.MustHaveSkills...)
	s.jobs[job.ID] = &cp
	s.jobOrder = append(s.jobOrder, job.ID)
	return nil
}

func (s *Store) FindJob(_ context.Context, ownerID, id string) (*screening.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return nil, screening.ErrNotFound
	}
	cp := *job
	cp.MustHaveSkills = append([]string(nil), job.MustHaveSkills...)
	return &cp, nil
}

func (s *Store) CreateResume(_ context.Context, resume *screening.Resume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *resume
	s.resumes[resume.ID] = &cp
	s.resumeOrder = append(s.resumeOrder, resume.ID)
	return nil
}

func (s *Store) FindResume(_ context.Context, ownerID, id string) (*screening.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resume, ok := s.resumes[id]
	if !ok || resume.OwnerID != ownerID {
		return nil, screening.ErrNotFound
	}
	cp := *resume
	return &cp, nil
}

func (s *Store) ListJobs(_ context.Context, ownerID string) ([]*screening.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*screening.Job, 0)
	for i := len(s.jobOrder) - 1; i >= 0; i-- {
		job := s.jobs[s.jobOrder[i]]
		if job.OwnerID != ownerID {
			continue
		}
		cp := *job
		cp.MustHaveSkills = append([]string(nil), job.MustHaveSkills...)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ListResumes(_ context.Context, ownerID string) ([]*screening.Resume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*screening.Resume, 0)
	for i := len(s.resumeOrder) - 1; i >= 0; i-- {
		resume := s.resumes[s.resumeOrder[i]]
		if resume.OwnerID != ownerID {
			continue
		}
		cp := *resume
		cp.Text = ""
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CreateEvaluation(_ context.Context, e *screening.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fp := e.Fingerprint()
	for _, existing := range s.evaluations {
		if existing.Fingerprint() == fp {
			return screening.ErrDuplicate
		}
	}
	s.evaluations = append(s.evaluations, e.Clone())
	return nil
}

func (s *Store) DeleteEvaluation(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.evaluations {
		if e.OwnerID == ownerID && e.ID == id {
			s.evaluations = append(s.evaluations[:i], s.evaluations[i+1:]...)
			return nil
		}
	}
	return screening.ErrNotFound
}

func (s *Store) FindEvaluation(_ context.Context, ownerID, id string) (*screening.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.find(ownerID, id); e != nil {
		return e.Clone(), nil
	}
	return nil, screening.ErrNotFound
}

func (s *Store) FindEvaluationByFingerprint(_ context.Context, fp screening.Fingerprint) (*screening.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.evaluations {
		if e.Fingerprint() == fp {
			return e.Clone(), nil
		}
	}
	return nil, screening.ErrNotFound
}

func (s *Store) ListEvaluations(_ context.Context, ownerID string, filter screening.ListFilter) ([]*screening.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*screening.Evaluation, 0)
	for i := len(s.evaluations) - 1; i >= 0; i-- {
		e := s.evaluations[i]
		if e.OwnerID != ownerID {
			continue
		}
		if filter.JobID != "" && e.JobID != filter.JobID {
			continue
		}
		out = append(out, e.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) UpdateStatusAndNotes(_ context.Context, ownerID, id string, patch screening.Patch, at time.Time) (*screening.Evaluation, *screening.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(ownerID, id)
	if e == nil {
		return nil, nil, screening.ErrNotFound
	}
	before := e.Clone()
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	if patch.Notes != nil {
		e.Notes = *patch.Notes
	}
	if !patch.Empty() {
		e.UpdatedAt = at
	}
	return before, e.Clone(), nil
}

func (s *Store) AppendAudit(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.audit = append(s.audit, &cp)
	return nil
}

func (s *Store) ListAudit(_ context.Context, ownerID string, filter audit.Filter) ([]*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*audit.Event, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		event := s.audit[i]
		if event.OwnerID != ownerID {
			continue
		}
		if filter.EntityType != "" && event.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && event.EntityID != filter.EntityID {
			continue
		}
		cp := *event
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) find(ownerID, id string) *screening.Evaluation {
	for _, e := range s.evaluations {
		if e.ID == id && e.OwnerID == ownerID {
			return e
		}
	}
	return nil
}
