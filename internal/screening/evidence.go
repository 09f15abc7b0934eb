package screening

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxSnippets is the per-skill snippet cap.
	DefaultMaxSnippets = 3

	minSentenceLength = 20
)

var lineBreak = regexp.MustCompile(`\r?\n`)

// GroundEvidence finds verbatim resume snippets for each matched skill. Lines
// are preferred since resumes are mostly bullet points; sentences of at least
// 20 characters fill the remaining slots. Matching is a case-insensitive
// substring test. Every non-blank skill gets an entry, possibly with no
// snippets, in input order and original casing.
func GroundEvidence(resumeText string, skills []string, maxPerSkill int) []Evidence {
	if maxPerSkill <= 0 {
		maxPerSkill = DefaultMaxSnippets
	}

	lines := splitLines(resumeText)
	sentences := splitSentences(resumeText)

	lowerLines := lowerAll(lines)
	lowerSentences := lowerAll(sentences)

	evidence := make([]Evidence, 0, len(skills))
	for _, skill := range skills {
		needle := strings.ToLower(strings.TrimSpace(skill))
		if needle == "" {
			continue
		}

		snippets := make([]string, 0, maxPerSkill)
		seen := make(map[string]struct{}, maxPerSkill)
		collect := func(candidates, lowered []string) {
			for i, candidate := range candidates {
				if len(snippets) >= maxPerSkill {
					return
				}
				if !strings.Contains(lowered[i], needle) {
					continue
				}
				if _, dup := seen[candidate]; dup {
					continue
				}
				seen[candidate] = struct{}{}
				snippets = append(snippets, candidate)
			}
		}

		collect(lines, lowerLines)
		collect(sentences, lowerSentences)

		evidence = append(evidence, Evidence{Skill: skill, Snippets: snippets})
	}

	return evidence
}

func splitLines(text string) []string {
	parts := lineBreak.Split(text, -1)
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			lines = append(lines, part)
		}
	}
	return lines
}

// splitSentences cuts after '.', '!' or '?' when whitespace follows. Each
// sentence is a trimmed span of text, so line breaks inside it are kept and
// the result stays a substring of the resume.
func splitSentences(text string) []string {
	var sentences []string
	keep := func(s string) {
		if s = strings.TrimSpace(s); utf8.RuneCountInString(s) >= minSentenceLength {
			sentences = append(sentences, s)
		}
	}

	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?':
		default:
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+1:])
		if !unicode.IsSpace(next) {
			continue
		}
		keep(text[start : i+1])
		start = i + 1
	}
	if start < len(text) {
		keep(text[start:])
	}

	return sentences
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
}
