package screening

import (
	"reflect"
	"strings"
	"testing"
)

func TestGroundEvidencePrefersLines(t *testing.T) {
	t.Parallel()

	resume := "- Built ETL in Python\n- Led team of 5"
	got := GroundEvidence(resume, []string{"python"}, 3)

	want := []Evidence{{Skill: "python", Snippets: []string{"- Built ETL in Python"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestGroundEvidenceCapsAndKeepsCasing(t *testing.T) {
	t.Parallel()

	resume := strings.Join([]string{
		"Go services at scale",
		"Wrote Go tooling",
		"Mentored Go juniors",
		"Go code reviews",
	}, "\n")

	got := GroundEvidence(resume, []string{"Go", "Rust"}, 2)
	if len(got) != 2 {
		t.Fatalf("expected an entry per skill, got %d", len(got))
	}
	if got[0].Skill != "Go" || len(got[0].Snippets) != 2 {
		t.Fatalf("expected two Go snippets with original casing, got %+v", got[0])
	}
	if got[0].Snippets[0] != "Go services at scale" || got[0].Snippets[1] != "Wrote Go tooling" {
		t.Fatalf("expected snippets in document order, got %v", got[0].Snippets)
	}
	if got[1].Skill != "Rust" || got[1].Snippets == nil || len(got[1].Snippets) != 0 {
		t.Fatalf("expected empty snippet list for unmatched skill, got %+v", got[1])
	}
}

func TestGroundEvidenceFallsBackToSentences(t *testing.T) {
	t.Parallel()

	resume := "Profile: I shipped Kubernetes operators for payments. Short one. " +
		"Later I migrated clusters to managed kubernetes offerings!\nOther line"

	got := GroundEvidence(resume, []string{"kubernetes"}, 3)
	want := []string{
		"Profile: I shipped Kubernetes operators for payments. Short one. Later I migrated clusters to managed kubernetes offerings!",
		"Profile: I shipped Kubernetes operators for payments.",
		"Later I migrated clusters to managed kubernetes offerings!",
	}
	if !reflect.DeepEqual(got[0].Snippets, want) {
		t.Fatalf("expected %v, got %v", want, got[0].Snippets)
	}
}

func TestGroundEvidenceSkipsDuplicatesAndShortSentences(t *testing.T) {
	t.Parallel()

	resume := "SQL tuning.\nSQL tuning."
	got := GroundEvidence(resume, []string{"sql"}, 3)

	if !reflect.DeepEqual(got[0].Snippets, []string{"SQL tuning."}) {
		t.Fatalf("expected a single deduplicated snippet, got %v", got[0].Snippets)
	}
}

func TestGroundEvidenceEdgeCases(t *testing.T) {
	t.Parallel()

	if got := GroundEvidence("anything", nil, 3); len(got) != 0 {
		t.Fatalf("expected no evidence for no skills, got %v", got)
	}

	got := GroundEvidence("", []string{"go", "  "}, 3)
	if len(got) != 1 || len(got[0].Snippets) != 0 {
		t.Fatalf("expected a single empty entry, got %v", got)
	}
}

func TestGroundEvidenceIsIdempotentAndGrounded(t *testing.T) {
	t.Parallel()

	resume := "Senior engineer.\n- Designed Postgres schemas for billing\n- Tuned postgres replication across regions. Also Redis caching layers were built."
	skills := []string{"postgres", "redis", "Billing"}

	first := GroundEvidence(resume, skills, 3)
	second := GroundEvidence(resume, skills, 3)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical evidence on repeated calls")
	}

	for _, ev := range first {
		for _, snippet := range ev.Snippets {
			if !strings.Contains(resume, snippet) {
				t.Fatalf("snippet %q is not grounded in the resume", snippet)
			}
			if !strings.Contains(strings.ToLower(snippet), strings.ToLower(ev.Skill)) {
				t.Fatalf("snippet %q does not mention %q", snippet, ev.Skill)
			}
		}
	}
}

func TestGroundEvidenceKeepsLineBreaksInsideSentences(t *testing.T) {
	t.Parallel()

	resume := "Senior engineer at Acme building\nPython services for payments. Other things."
	got := GroundEvidence(resume, []string{"python"}, 3)

	want := []string{
		"Python services for payments. Other things.",
		"Senior engineer at Acme building\nPython services for payments.",
	}
	if !reflect.DeepEqual(got[0].Snippets, want) {
		t.Fatalf("expected %q, got %q", want, got[0].Snippets)
	}
	for _, snippet := range got[0].Snippets {
		if !strings.Contains(resume, snippet) {
			t.Fatalf("snippet %q is not a substring of the resume", snippet)
		}
	}
}
