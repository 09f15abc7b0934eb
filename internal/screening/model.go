package screening

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/resume-screener/internal/audit"
)

// Status is the recruiter-controlled pipeline stage of an evaluation.
type Status string

const (
	StatusNew         Status = "new"
	StatusShortlisted Status = "shortlisted"
	StatusInterview   Status = "interview"
	StatusRejected    Status = "rejected"
	StatusHired       Status = "hired"
)

// Statuses lists every accepted status in pipeline order.
var Statuses = []Status{StatusNew, StatusShortlisted, StatusInterview, StatusRejected, StatusHired}

// Valid reports whether s is one of Statuses. Any status may move to any other.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus converts user input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", raw)}
	}
	return s, nil
}

// Job is a position resumes are screened against.
type Job struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	Title          string    `json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	MustHaveSkills []string  `json:"mustHaveSkills"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Resume is a candidate document with its extracted plain text.
type Resume struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Evidence lists resume snippets that mention a matched skill.
type Evidence struct {
	Skill    string   `json:"skill"`
	Snippets []string `json:"snippets"`
}

// SkillScore is a per-skill match score in [0, 100].
type SkillScore struct {
	Skill string `json:"skill"`
	Score int    `json:"score"`
}

// SkillScores keeps the model's ordering. Skills are unique case-insensitively.
type SkillScores []SkillScore

// Lookup returns the score for skill.
func (s SkillScores) Lookup(skill string) (int, bool) {
	skill = strings.ToLower(strings.TrimSpace(skill))
	for _, entry := range s {
		if entry.Skill == skill {
			return entry.Score, true
		}
	}
	return 0, false
}

// Fingerprint identifies the (owner, job, resume) triple. At most one
// evaluation exists per fingerprint.
type Fingerprint struct {
	OwnerID  string
	JobID    string
	ResumeID string
}

// Evaluation is the persisted result of screening one resume against one job.
type Evaluation struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"ownerId"`
	JobID              string          `json:"jobId"`
	ResumeID           string          `json:"resumeId"`
	Score              int             `json:"score"`
	Seniority          string          `json:"seniority"`
	Summary            string          `json:"summary"`
	MatchedSkills      []string        `json:"matchedSkills"`
	MissingSkills      []string        `json:"missingSkills"`
	SkillScores        SkillScores     `json:"skillsMatch"`
	Evidence           []Evidence      `json:"evidence"`
	Strengths          []string        `json:"strengths"`
	Risks              []string        `json:"risks"`
	Improvements       []string        `json:"improvements"`
	InterviewQuestions []string        `json:"interviewQuestions"`
	Status             Status          `json:"status"`
	Notes              string          `json:"notes"`
	Provider           string          `json:"provider"`
	Model              string          `json:"model"`
	Raw                json.RawMessage `json:"raw,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Fingerprint returns the dedup key of e.
func (e *Evaluation) Fingerprint() Fingerprint {
	return Fingerprint{OwnerID: e.OwnerID, JobID: e.JobID, ResumeID: e.ResumeID}
}

// Clone returns a deep copy so stores can hand out records without sharing slices.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	out := *e
	out.MatchedSkills = append([]string(nil), e.MatchedSkills...)
	out.MissingSkills = append([]string(nil), e.MissingSkills...)
	out.SkillScores = append(SkillScores(nil), e.SkillScores...)
	out.Strengths = append([]string(nil), e.Strengths...)
	out.Risks = append([]string(nil), e.Risks...)
	out.Improvements = append([]string(nil), e.Improvements...)
	out.InterviewQuestions = append([]string(nil), e.InterviewQuestions...)
	out.Raw = append(json.RawMessage(nil), e.Raw...)
	out.Evidence = make([]Evidence, len(e.Evidence))
	for i, ev := range e.Evidence {
		out.Evidence[i] = Evidence{Skill: ev.Skill, Snippets: append([]string(nil), ev.Snippets...)}
	}
	return &out
}

// Patch carries the recruiter-editable fields. Nil fields are left untouched.
type Patch struct {
	Status *Status `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.Notes == nil
}

// ListFilter narrows an evaluation listing. Limit follows audit.ClampLimit
// bounds with a zero value meaning the default.
type ListFilter struct {
	JobID string
	Limit int
}

// Principal is the caller on whose behalf an operation runs.
type Principal struct {
	OwnerID   string
	Email     string
	Role      string
	IP        string
	UserAgent string
}

func (p Principal) actor() audit.Actor {
	return audit.Actor{UserID: p.OwnerID, Email: p.Email, Role: p.Role}
}
