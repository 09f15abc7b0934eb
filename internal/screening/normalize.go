package screening

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	maxSkills = 20

	fallbackSeniority = "unclear"
	fallbackSummary   = "AI output could not be parsed."
)

// Payload is the normalized content of a model answer.
type Payload struct {
	Score              int
	Seniority          string
	Summary            string
	MatchedSkills      []string
	MissingSkills      []string
	SkillScores        SkillScores
	Strengths          []string
	Risks              []string
	Improvements       []string
	InterviewQuestions []string
}

// Normalized is either a parsed payload or, when Malformed is set, the
// fallback payload together with the parse failure.
type Normalized struct {
	Payload
	Malformed bool
	Cause     error
}

type looseAnswer struct {
	Score              any `mapstructure:"score"`
	Seniority          any `mapstructure:"seniority"`
	Summary            any `mapstructure:"summary"`
	MatchedSkills      any `mapstructure:"matchedSkills"`
	MissingSkills      any `mapstructure:"missingSkills"`
	Strengths          any `mapstructure:"strengths"`
	Risks              any `mapstructure:"risks"`
	Improvements       any `mapstructure:"improvements"`
	InterviewQuestions any `mapstructure:"interviewQuestions"`
}

// Normalize turns raw model text into a Payload. It never fails: text that is
// not a JSON object yields the fallback payload with Malformed set.
func Normalize(raw string) Normalized {
	cleaned := extractJSON(raw)

	fields, err := decodeObject(cleaned)
	if err != nil {
		return Normalized{Payload: fallbackPayload(), Malformed: true, Cause: err}
	}

	var answer looseAnswer
	if err := mapstructure.Decode(fields, &answer); err != nil {
		return Normalized{Payload: fallbackPayload(), Malformed: true, Cause: err}
	}

	seniority := coerceString(answer.Seniority)
	if seniority == "" {
		seniority = fallbackSeniority
	}

	var ordered struct {
		SkillsMatch json.RawMessage `json:"skillsMatch"`
	}
	// The object already decoded above, so this cannot fail on syntax.
	_ = json.Unmarshal([]byte(cleaned), &ordered)

	return Normalized{Payload: Payload{
		Score:              coerceScore(answer.Score),
		Seniority:          seniority,
		Summary:            coerceString(answer.Summary),
		MatchedSkills:      normalizeSkills(coerceStrings(answer.MatchedSkills)),
		MissingSkills:      normalizeSkills(coerceStrings(answer.MissingSkills)),
		SkillScores:        decodeSkillScores(ordered.SkillsMatch),
		Strengths:          coerceStrings(answer.Strengths),
		Risks:              coerceStrings(answer.Risks),
		Improvements:       coerceStrings(answer.Improvements),
		InterviewQuestions: coerceStrings(answer.InterviewQuestions),
	}}
}

func fallbackPayload() Payload {
	return Payload{
		Score:              0,
		Seniority:          fallbackSeniority,
		Summary:            fallbackSummary,
		MatchedSkills:      []string{},
		MissingSkills:      []string{},
		SkillScores:        SkillScores{},
		Strengths:          []string{},
		Risks:              []string{},
		Improvements:       []string{},
		InterviewQuestions: []string{},
	}
}

// extractJSON strips markdown code fences some models wrap their answer in.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("model answer is not a json object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after json object")
	}
	return fields, nil
}

// coerceScore converts v into an integer in [0, 100]. Missing, non-numeric
// and non-finite values become 0.
func coerceScore(v any) int {
	var f float64
	switch val := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	f = math.Round(f)
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return int(f)
	}
}

func coerceString(v any) string {
	if v == nil {
		return ""
	}
	var s string
	if err := mapstructure.WeakDecode(v, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// coerceStrings accepts a list or a single scalar. Elements that are not
// scalars are dropped, as are blank strings.
func coerceStrings(v any) []string {
	out := []string{}
	if v == nil {
		return out
	}

	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}

	for _, item := range items {
		switch item.(type) {
		case map[string]any, []any:
			continue
		}
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		if len(out) == maxSkills {
			break
		}
		out = append(out, strings.ToLower(skill))
	}
	return out
}

// decodeSkillScores reads a {"skill": score} object keeping key order. The
// first occurrence of a skill wins.
func decodeSkillScores(raw json.RawMessage) SkillScores {
	out := SkillScores{}
	if len(raw) == 0 {
		return out
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return out
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return out
	}

	seen := make(map[string]struct{})
	for dec.More() && len(out) < maxSkills {
		keyTok, err := dec.Token()
		if err != nil {
			return out
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return out
		}

		skill := strings.ToLower(strings.TrimSpace(key))
		if skill == "" {
			continue
		}
		if _, dup := seen[skill]; dup {
			continue
		}
		seen[skill] = struct{}{}
		out = append(out, SkillScore{Skill: skill, Score: coerceScore(value)})
	}
	return out
}
