// Package screening evaluates resumes against job descriptions with a
// generative model and keeps the results reviewable and audited.
package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/events"
	"github.com/spigell/resume-screener/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	entityEvaluation = "evaluation"

	actionCreated = "evaluation.created"
	actionUpdated = "evaluation.updated"

	maxNotesLength = 5000

	minJobTitle       = 2
	minJobDescription = 20
	minResumeText     = 200
)

// Config tunes the pipeline.
type Config struct {
	MaxSnippets     int
	ResumeRuneLimit int
	BatchDefault    int
}

// Deps are the collaborators of a Service. Store, Gateway and Audit are required.
type Deps struct {
	Store     Store
	Catalog   Catalog
	Gateway   ai.Gateway
	Audit     *audit.Logger
	Publisher events.Publisher
	Logger    *zap.Logger
}

// Service runs evaluations and recruiter review.
type Service struct {
	store     Store
	catalog   Catalog
	gateway   ai.Gateway
	audit     *audit.Logger
	publisher events.Publisher
	prompts   PromptBuilder
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService validates deps. A missing gateway is a configuration error and is
// reported as ai.ErrMissingCredentials so startup fails before any request.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Gateway == nil {
		return nil, ai.NewError(ai.KindMissingCredentials, "", errors.New("no ai gateway configured"))
	}
	if deps.Store == nil {
		return nil, errors.New("evaluation store is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("audit logger is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = DefaultMaxSnippets
	}
	if cfg.BatchDefault <= 0 || cfg.BatchDefault > MaxBatchCap {
		cfg.BatchDefault = DefaultBatchCap
	}

	return &Service{
		store:     deps.Store,
		catalog:   deps.Catalog,
		gateway:   deps.Gateway,
		audit:     deps.Audit,
		publisher: deps.Publisher,
		prompts:   NewPromptBuilder(cfg.ResumeRuneLimit),
		cfg:       cfg,
		logger:    logger.ForProvider(deps.Logger, deps.Gateway.Provider(), deps.Gateway.Model()),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}, nil
}

// EvaluateOne screens a resume against a job. An existing evaluation for the
// same (owner, job, resume) is returned as is without calling the model.
func (s *Service) EvaluateOne(ctx context.Context, p Principal, jobID, resumeID string) (*Evaluation, error) {
	if err := requireIDs(p, jobID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resumeID) == "" {
		return nil, invalid("resumeId", "is required")
	}

	job, err := s.store.FindJob(ctx, p.OwnerID, jobID)
	if err != nil {
		return nil, storeErr("find job", err)
	}

	eval, _, err := s.evaluate(ctx, p, job, resumeID)
	return eval, err
}

// evaluate runs the pipeline for one resume. The bool reports reuse of an
// existing record.
func (s *Service) evaluate(ctx context.Context, p Principal, job *Job, resumeID string) (*Evaluation, bool, error) {
	log := logger.ForEvaluation(s.logger, p.OwnerID, job.ID, resumeID)

	resume, err := s.store.FindResume(ctx, p.OwnerID, resumeID)
	if err != nil {
		return nil, false, storeErr("find resume", err)
	}

	fp := Fingerprint{OwnerID: p.OwnerID, JobID: job.ID, ResumeID: resume.ID}
	existing, err := s.store.FindEvaluationByFingerprint(ctx, fp)
	switch {
	case err == nil:
		log.Debug("reusing existing evaluation", zap.String(logger.FieldEvalID, existing.ID))
		return existing, true, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, storeErr("find evaluation", err)
	}

	resp, err := s.gateway.Generate(ctx, s.prompts.Build(job, resume.Text))
	if err != nil {
		log.Warn("model call failed", zap.String("kind", string(ai.KindOf(err))), zap.Error(err))
		return nil, false, fmt.Errorf("generate evaluation: %w", err)
	}

	normalized := Normalize(resp.Text)
	if normalized.Malformed {
		log.Warn("model answer could not be parsed, storing fallback", zap.Error(normalized.Cause))
	}

	now := s.now()
	eval := &Evaluation{
		ID:                 s.newID(),
		OwnerID:            p.OwnerID,
		JobID:              job.ID,
		ResumeID:           resume.ID,
		Score:              normalized.Score,
		Seniority:          normalized.Seniority,
		Summary:            normalized.Summary,
		MatchedSkills:      normalized.MatchedSkills,
		MissingSkills:      normalized.MissingSkills,
		SkillScores:        normalized.SkillScores,
		Evidence:           GroundEvidence(resume.Text, normalized.MatchedSkills, s.cfg.MaxSnippets),
		Strengths:          normalized.Strengths,
		Risks:              normalized.Risks,
		Improvements:       normalized.Improvements,
		InterviewQuestions: normalized.InterviewQuestions,
		Status:             StatusNew,
		Provider:           resp.Provider,
		Model:              resp.Model,
		Raw:                resp.Raw,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.CreateEvaluation(ctx, eval); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, storeErr("create evaluation", err)
		}
		// Another request stored the same fingerprint first.
		winner, findErr := s.store.FindEvaluationByFingerprint(ctx, fp)
		if findErr != nil {
			return nil, false, storeErr("find evaluation", findErr)
		}
		return winner, true, nil
	}

	if _, err := s.audit.Record(ctx, audit.Entry{
		OwnerID:    p.OwnerID,
		Actor:      p.actor(),
		EntityType: entityEvaluation,
		EntityID:   eval.ID,
		Action:     actionCreated,
		Message:    "Evaluation created",
		Before:     map[string]any{},
		After:      map[string]any{"score": eval.Score, "status": string(eval.Status)},
		IP:         p.IP,
		UserAgent:  p.UserAgent,
	}); err != nil {
		// No evaluation is kept without its created event.
		if delErr := s.store.DeleteEvaluation(context.WithoutCancel(ctx), p.OwnerID, eval.ID); delErr != nil {
			log.Error("rollback of unaudited evaluation failed",
				zap.String(logger.FieldEvalID, eval.ID), zap.Error(delErr))
		}
		return nil, false, storeErr("audit evaluation", err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EvaluationCreated,
		OwnerID:  p.OwnerID,
		EntityID: eval.ID,
		Payload:  map[string]any{"jobId": eval.JobID, "resumeId": eval.ResumeID, "score": eval.Score},
	})

	log.Info("evaluation created",
		zap.String(logger.FieldEvalID, eval.ID),
		zap.Int("score", eval.Score),
		zap.Bool("malformed_answer", normalized.Malformed),
	)

	return eval, false, nil
}

// ListEvaluations returns the owner's evaluations newest first.
func (s *Service) ListEvaluations(ctx context.Context, p Principal, filter ListFilter) ([]*Evaluation, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	filter.Limit = audit.ClampLimit(filter.Limit)

	items, err := s.store.ListEvaluations(ctx, p.OwnerID, filter)
	if err != nil {
		return nil, storeErr("list evaluations", err)
	}
	return items, nil
}

// GetEvaluation returns one evaluation of the owner.
func (s *Service) GetEvaluation(ctx context.Context, p Principal, id string) (*Evaluation, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	eval, err := s.store.FindEvaluation(ctx, p.OwnerID, id)
	if err != nil {
		return nil, storeErr("find evaluation", err)
	}
	return eval, nil
}

// PatchEvaluation updates status and/or notes. An audit event is written only
// when a value actually changed.
func (s *Service) PatchEvaluation(ctx context.Context, p Principal, id string, patch Patch) (*Evaluation, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, invalid("status", "must be one of %v", Statuses)
	}
	if patch.Notes != nil && utf8.RuneCountInString(*patch.Notes) > maxNotesLength {
		return nil, invalid("notes", "must be at most %d characters", maxNotesLength)
	}

	before, after, err := s.store.UpdateStatusAndNotes(ctx, p.OwnerID, id, patch, s.now())
	if err != nil {
		return nil, storeErr("update evaluation", err)
	}

	statusChanged := before.Status != after.Status
	notesChanged := before.Notes != after.Notes
	if !statusChanged && !notesChanged {
		return after, nil
	}

	message := "Notes updated"
	if statusChanged {
		message = fmt.Sprintf("Status changed: %s → %s", before.Status, after.Status)
	}

	if _, err := s.audit.Record(ctx, audit.Entry{
		OwnerID:    p.OwnerID,
		Actor:      p.actor(),
		EntityType: entityEvaluation,
		EntityID:   after.ID,
		Action:     actionUpdated,
		Message:    message,
		Before:     map[string]any{"status": string(before.Status), "notes": before.Notes},
		After:      map[string]any{"status": string(after.Status), "notes": after.Notes},
		IP:         p.IP,
		UserAgent:  p.UserAgent,
	}); err != nil {
		return nil, storeErr("audit evaluation", err)
	}

	s.publish(ctx, events.Event{
		Type:     events.EvaluationUpdated,
		OwnerID:  p.OwnerID,
		EntityID: after.ID,
		Payload:  map[string]any{"status": string(after.Status), "message": message},
	})

	s.logger.Info("evaluation updated",
		zap.String(logger.FieldEvalID, after.ID),
		zap.String("message", message),
		zap.String(logger.FieldActorRole, p.Role),
	)

	return after, nil
}

// ListAuditEvents returns the owner's audit trail newest first.
func (s *Service) ListAuditEvents(ctx context.Context, p Principal, filter audit.Filter) ([]*audit.Event, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	items, err := s.audit.List(ctx, p.OwnerID, filter)
	if err != nil {
		return nil, storeErr("list audit events", err)
	}
	return items, nil
}

// JobInput is the data needed to register a job.
type JobInput struct {
	Title          string   `json:"title"`
	Company        string   `json:"company"`
	Location       string   `json:"location"`
	Description    string   `json:"description"`
	MustHaveSkills []string `json:"mustHaveSkills"`
}

// CreateJob validates and stores a job.
func (s *Service) CreateJob(ctx context.Context, p Principal, in JobInput) (*Job, error) {
	if s.catalog == nil {
		return nil, errors.New("job catalog is not configured")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) < minJobTitle {
		return nil, invalid("title", "must be at least %d characters", minJobTitle)
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) < minJobDescription {
		return nil, invalid("description", "must be at least %d characters", minJobDescription)
	}

	skills := make([]string, 0, len(in.MustHaveSkills))
	for _, skill := range in.MustHaveSkills {
		if skill = strings.TrimSpace(skill); skill != "" {
			skills = append(skills, skill)
		}
	}

	job := &Job{
		ID:             s.newID(),
		OwnerID:        p.OwnerID,
		Title:          title,
		Company:        strings.TrimSpace(in.Company),
		Location:       strings.TrimSpace(in.Location),
		Description:    description,
		MustHaveSkills: skills,
		CreatedAt:      s.now(),
	}
	if err := s.catalog.CreateJob(ctx, job); err != nil {
		return nil, storeErr("create job", err)
	}
	return job, nil
}

// ResumeInput is an uploaded resume with its already extracted text.
type ResumeInput struct {
	Filename string
	MimeType string
	Size     int64
	Text     string
}

// CreateResume stores a resume. Text too short to screen is rejected.
func (s *Service) CreateResume(ctx context.Context, p Principal, in ResumeInput) (*Resume, error) {
	if s.catalog == nil {
		return nil, errors.New("resume catalog is not configured")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) < minResumeText {
		return nil, invalid("text", "could not extract enough text from resume (need at least %d characters)", minResumeText)
	}

	resume := &Resume{
		ID:        s.newID(),
		OwnerID:   p.OwnerID,
		Filename:  strings.TrimSpace(in.Filename),
		MimeType:  in.MimeType,
		Size:      in.Size,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.catalog.CreateResume(ctx, resume); err != nil {
		return nil, storeErr("create resume", err)
	}
	return resume, nil
}

// GetJob returns one job of the owner.
func (s *Service) GetJob(ctx context.Context, p Principal, id string) (*Job, error) {
	if err := requireIDs(p, id); err != nil {
		return nil, err
	}
	job, err := s.store.FindJob(ctx, p.OwnerID, id)
	if err != nil {
		return nil, storeErr("find job", err)
	}
	return job, nil
}

// ListJobs returns the owner's jobs newest first.
func (s *Service) ListJobs(ctx context.Context, p Principal) ([]*Job, error) {
	if s.catalog == nil {
		return nil, errors.New("job catalog is not configured")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	jobs, err := s.catalog.ListJobs(ctx, p.OwnerID)
	if err != nil {
		return nil, storeErr("list jobs", err)
	}
	return jobs, nil
}

// ListResumes returns the owner's resumes newest first, without their text.
func (s *Service) ListResumes(ctx context.Context, p Principal) ([]*Resume, error) {
	if s.catalog == nil {
		return nil, errors.New("resume catalog is not configured")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return nil, invalid("ownerId", "is required")
	}
	resumes, err := s.catalog.ListResumes(ctx, p.OwnerID)
	if err != nil {
		return nil, storeErr("list resumes", err)
	}
	return resumes, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing event", zap.String("type", event.Type), zap.Error(err))
	}
}

func requireIDs(p Principal, jobID string) error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return invalid("ownerId", "is required")
	}
	if strings.TrimSpace(jobID) == "" {
		return invalid("jobId", "is required")
	}
	return nil
}
