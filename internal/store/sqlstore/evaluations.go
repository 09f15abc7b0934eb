package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/resume-screener/internal/screening"
)

const evaluationColumns = `id, owner_id, job_id, resume_id, score, seniority, summary,
  matched_skills, missing_skills, skills_match, evidence, strengths, risks,
  improvements, interview_questions, status, notes, provider, model, raw,
  created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateJob(ctx context.Context, job *screening.Job) error {
	skills, err := json.Marshal(nonNil(job.MustHaveSkills))
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO jobs (id, owner_id, title, company, location, description, must_have_skills, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		job.ID, job.OwnerID, job.Title, job.Company, job.Location, job.Description, string(skills), micros(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) FindJob(ctx context.Context, ownerID, id string) (*screening.Job, error) {
	var (
		job     screening.Job
		skills  string
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, owner_id, title, company, location, description, must_have_skills, created_at
FROM jobs WHERE id = ? AND owner_id = ?`), id, ownerID).Scan(
		&job.ID, &job.OwnerID, &job.Title, &job.Company, &job.Location, &job.Description, &skills, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, screening.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	if err := json.Unmarshal([]byte(skills), &job.MustHaveSkills); err != nil {
		return nil, fmt.Errorf("decode job skills: %w", err)
	}
	job.CreatedAt = fromMicros(created)
	return &job, nil
}

func (s *Store) CreateResume(ctx context.Context, resume *screening.Resume) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO resumes (id, owner_id, filename, mime_type, size, text, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		resume.ID, resume.OwnerID, resume.Filename, resume.MimeType, resume.Size, resume.Text, micros(resume.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	return nil
}

func (s *Store) FindResume(ctx context.Context, ownerID, id string) (*screening.Resume, error) {
	var (
		resume  screening.Resume
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
SELECT id, owner_id, filename, mime_type, size, text, created_at
FROM resumes WHERE id = ? AND owner_id = ?`), id, ownerID).Scan(
		&resume.ID, &resume.OwnerID, &resume.Filename, &resume.MimeType, &resume.Size, &resume.Text, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, screening.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select resume: %w", err)
	}
	resume.CreatedAt = fromMicros(created)
	return &resume, nil
}

func (s *Store) ListJobs(ctx context.Context, ownerID string) ([]*screening.Job, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, owner_id, title, company, location, description, must_have_skills, created_at
FROM jobs WHERE owner_id = ? ORDER BY created_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*screening.Job, 0)
	for rows.Next() {
		var (
			job     screening.Job
			skills  string
			created int64
		)
		if err := rows.Scan(&job.ID, &job.OwnerID, &job.Title, &job.Company, &job.Location, &job.Description, &skills, &created); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if err := json.Unmarshal([]byte(skills), &job.MustHaveSkills); err != nil {
			return nil, fmt.Errorf("decode job skills: %w", err)
		}
		job.CreatedAt = fromMicros(created)
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *Store) ListResumes(ctx context.Context, ownerID string) ([]*screening.Resume, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, owner_id, filename, mime_type, size, created_at
FROM resumes WHERE owner_id = ? ORDER BY created_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	defer rows.Close()

	out := make([]*screening.Resume, 0)
	for rows.Next() {
		var (
			resume  screening.Resume
			created int64
		)
		if err := rows.Scan(&resume.ID, &resume.OwnerID, &resume.Filename, &resume.MimeType, &resume.Size, &created); err != nil {
			return nil, fmt.Errorf("scan resume: %w", err)
		}
		resume.CreatedAt = fromMicros(created)
		out = append(out, &resume)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	return out, nil
}

func (s *Store) CreateEvaluation(ctx context.Context, e *screening.Evaluation) error {
	cols, err := encodeEvaluation(e)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
INSERT INTO evaluations (`+evaluationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.OwnerID, e.JobID, e.ResumeID, e.Score, e.Seniority, e.Summary,
		cols.matched, cols.missing, cols.skillsMatch, cols.evidence, cols.strengths, cols.risks,
		cols.improvements, cols.questions, string(e.Status), e.Notes, e.Provider, e.Model, string(e.Raw),
		micros(e.CreatedAt), micros(e.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return screening.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *Store) DeleteEvaluation(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM evaluations WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return screening.ErrNotFound
	}
	return nil
}

func (s *Store) FindEvaluation(ctx context.Context, ownerID, id string) (*screening.Evaluation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
SELECT `+evaluationColumns+` FROM evaluations WHERE id = ? AND owner_id = ?`), id, ownerID)
	return scanEvaluation(row)
}

func (s *Store) FindEvaluationByFingerprint(ctx context.Context, fp screening.Fingerprint) (*screening.Evaluation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
SELECT `+evaluationColumns+` FROM evaluations WHERE owner_id = ? AND job_id = ? AND resume_id = ?`),
		fp.OwnerID, fp.JobID, fp.ResumeID)
	return scanEvaluation(row)
}

func (s *Store) ListEvaluations(ctx context.Context, ownerID string, filter screening.ListFilter) ([]*screening.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE owner_id = ?`
	args := []any{ownerID}
	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]*screening.Evaluation, 0)
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateStatusAndNotes(ctx context.Context, ownerID, id string, patch screening.Patch, at time.Time) (*screening.Evaluation, *screening.Evaluation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before, err := scanEvaluation(tx.QueryRowContext(ctx, s.rebind(`
SELECT `+evaluationColumns+` FROM evaluations WHERE id = ? AND owner_id = ?`+s.forUpdate()), id, ownerID))
	if err != nil {
		return nil, nil, err
	}

	after := before.Clone()
	if patch.Status != nil {
		after.Status = *patch.Status
	}
	if patch.Notes != nil {
		after.Notes = *patch.Notes
	}
	if patch.Empty() {
		return before, after, tx.Commit()
	}
	after.UpdatedAt = at.UTC()

	if _, err := tx.ExecContext(ctx, s.rebind(`
UPDATE evaluations SET status = ?, notes = ?, updated_at = ? WHERE id = ? AND owner_id = ?`),
		string(after.Status), after.Notes, micros(after.UpdatedAt), id, ownerID,
	); err != nil {
		return nil, nil, fmt.Errorf("update evaluation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit update: %w", err)
	}
	return before, after, nil
}

type encodedEvaluation struct {
	matched, missing, skillsMatch, evidence   string
	strengths, risks, improvements, questions string
}

func encodeEvaluation(e *screening.Evaluation) (*encodedEvaluation, error) {
	var out encodedEvaluation
	fields := []struct {
		dst *string
		v   any
	}{
		{&out.matched, nonNil(e.MatchedSkills)},
		{&out.missing, nonNil(e.MissingSkills)},
		{&out.skillsMatch, nonNilScores(e.SkillScores)},
		{&out.evidence, nonNilEvidence(e.Evidence)},
		{&out.strengths, nonNil(e.Strengths)},
		{&out.risks, nonNil(e.Risks)},
		{&out.improvements, nonNil(e.Improvements)},
		{&out.questions, nonNil(e.InterviewQuestions)},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("encode evaluation: %w", err)
		}
		*f.dst = string(b)
	}
	return &out, nil
}

func scanEvaluation(row rowScanner) (*screening.Evaluation, error) {
	var (
		e                screening.Evaluation
		cols             encodedEvaluation
		status, raw      string
		created, updated int64
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.JobID, &e.ResumeID, &e.Score, &e.Seniority, &e.Summary,
		&cols.matched, &cols.missing, &cols.skillsMatch, &cols.evidence, &cols.strengths, &cols.risks,
		&cols.improvements, &cols.questions, &status, &e.Notes, &e.Provider, &e.Model, &raw,
		&created, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, screening.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan evaluation: %w", err)
	}

	targets := []struct {
		src string
		dst any
	}{
		{cols.matched, &e.MatchedSkills},
		{cols.missing, &e.MissingSkills},
		{cols.skillsMatch, &e.SkillScores},
		{cols.evidence, &e.Evidence},
		{cols.strengths, &e.Strengths},
		{cols.risks, &e.Risks},
		{cols.improvements, &e.Improvements},
		{cols.questions, &e.InterviewQuestions},
	}
	for _, t := range targets {
		if err := json.Unmarshal([]byte(t.src), t.dst); err != nil {
			return nil, fmt.Errorf("decode evaluation %s: %w", e.ID, err)
		}
	}

	e.Status = screening.Status(status)
	if raw != "" {
		e.Raw = json.RawMessage(raw)
	}
	e.CreatedAt = fromMicros(created)
	e.UpdatedAt = fromMicros(updated)
	return &e, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func nonNilScores(items screening.SkillScores) screening.SkillScores {
	if items == nil {
		return screening.SkillScores{}
	}
	return items
}

func nonNilEvidence(items []screening.Evidence) []screening.Evidence {
	if items == nil {
		return []screening.Evidence{}
	}
	return items
}
