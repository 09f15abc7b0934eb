package screening

import (
	_ "embed"
	"strings"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/utils"
)

// DefaultResumeRuneLimit bounds the resume text placed into a prompt.
const DefaultResumeRuneLimit = 200_000

const notAvailable = "N/A"

var (
	//go:embed prompts/system.md
	systemTemplate string
	//go:embed prompts/user.md
	userTemplate string
)

// PromptBuilder renders the instruction pair for a (job, resume) pair. It is
// pure: the same inputs always produce the same prompt.
type PromptBuilder struct {
	resumeLimit int
}

// NewPromptBuilder returns a builder truncating resumes at limit runes.
// Non-positive limits use DefaultResumeRuneLimit.
func NewPromptBuilder(limit int) PromptBuilder {
	if limit <= 0 {
		limit = DefaultResumeRuneLimit
	}
	return PromptBuilder{resumeLimit: limit}
}

// Build renders the prompt. Optional job fields render as "N/A".
func (b PromptBuilder) Build(job *Job, resumeText string) ai.Prompt {
	limit := b.resumeLimit
	if limit <= 0 {
		limit = DefaultResumeRuneLimit
	}

	var title, company, location, description string
	var skills []string
	if job != nil {
		title = job.Title
		company = job.Company
		location = job.Location
		description = job.Description
		skills = job.MustHaveSkills
	}

	// A single-pass replacer keeps placeholders that appear inside the
	// substituted text untouched.
	user := strings.NewReplacer(
		"{{JOB_TITLE}}", strings.TrimSpace(title),
		"{{COMPANY}}", orNA(company),
		"{{LOCATION}}", orNA(location),
		"{{JOB_DESCRIPTION}}", strings.TrimSpace(description),
		"{{MUST_HAVE_SKILLS}}", joinSkills(skills),
		"{{RESUME_TEXT}}", utils.TruncateRunes(resumeText, limit, ""),
	).Replace(userTemplate)

	return ai.Prompt{
		System: strings.TrimSpace(systemTemplate),
		User:   user,
	}
}

func orNA(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return notAvailable
	}
	return s
}

func joinSkills(skills []string) string {
	cleaned := make([]string, 0, len(skills))
	for _, skill := range skills {
		if skill = strings.TrimSpace(skill); skill != "" {
			cleaned = append(cleaned, skill)
		}
	}
	if len(cleaned) == 0 {
		return notAvailable
	}
	return strings.Join(cleaned, ", ")
}
