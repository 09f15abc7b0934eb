package utils

import "testing"

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		got    string
		expect string
	}{
		{
			name:   "log preview with zero limit is empty",
			got:    TruncateForLog("model answer", 0),
			expect: "",
		},
		{
			name:   "log preview keeps short text",
			got:    TruncateForLog("  ok  ", 10),
			expect: "ok",
		},
		{
			name:   "log preview cuts and marks",
			got:    TruncateForLog(`{"score": 82, "summary": "strong"}`, 12),
			expect: `{"score": 82...`,
		},
		{
			name:   "log preview counts runes",
			got:    TruncateForLog("Лучший кандидат", 6),
			expect: "Лучший...",
		},
		{
			name:   "runes without suffix",
			got:    TruncateRunes("héllo wörld", 4, ""),
			expect: "héll",
		},
		{
			name:   "runes with suffix",
			got:    TruncateRunes("日本語テキスト", 3, "…"),
			expect: "日本語…",
		},
		{
			name:   "runes under limit untouched",
			got:    TruncateRunes("short", 10, "…"),
			expect: "short",
		},
		{
			name:   "negative limit empties",
			got:    TruncateRunes("resume", -1, ""),
			expect: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, tt.got)
			}
		})
	}
}
