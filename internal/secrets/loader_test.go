package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestLoad(t *testing.T) {
	keyring.MockInit()

	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	if err := os.WriteFile(keyFile, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	emptyFile := filepath.Join(dir, "empty")
	if err := os.WriteFile(emptyFile, []byte("   "), 0o600); err != nil {
		t.Fatalf("write empty file: %v", err)
	}
	if err := Store("gemini", "from-keyring"); err != nil {
		t.Fatalf("store keyring secret: %v", err)
	}

	tests := []struct {
		name    string
		src     Source
		expect  string
		wantErr string
	}{
		{
			name:   "file wins over value",
			src:    Source{Name: "api key", File: keyFile, Value: "inline"},
			expect: "from-file",
		},
		{
			name:   "inline value",
			src:    Source{Name: "api key", Value: " inline "},
			expect: "inline",
		},
		{
			name:   "keyring fallback",
			src:    Source{Name: "api key", KeyringAccount: "gemini"},
			expect: "from-keyring",
		},
		{
			name:    "empty file",
			src:     Source{Name: "api key", File: emptyFile},
			wantErr: "is empty",
		},
		{
			name:    "unknown keyring account",
			src:     Source{Name: "api key", KeyringAccount: "missing"},
			wantErr: "api key is not configured",
		},
		{
			name:    "nothing configured",
			src:     Source{},
			wantErr: "secret is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
