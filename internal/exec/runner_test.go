package exec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecRunner_Run(t *testing.T) {
	r := NewRunner()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "frames.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := r.Run(context.Background(), dir, "ls")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(string(out), "frames.txt") {
		t.Errorf("ls = %q, want frames.txt listed", out)
	}
}

func TestExecRunner_RunFailure(t *testing.T) {
	r := NewRunner()
	if _, err := r.Run(context.Background(), "", "sh", "-c", "exit 3"); err == nil {
		t.Error("expected error for non-zero exit")
	}
}

func TestExecRunner_LookPath(t *testing.T) {
	r := NewRunner()
	if _, err := r.LookPath("sh"); err != nil {
		t.Errorf("LookPath(sh) failed: %v", err)
	}
	if _, err := r.LookPath("definitely-not-a-real-program-xyz"); err == nil {
		t.Error("expected error for missing program")
	}
}
