package envutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAndLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	values := map[string]string{
		"DESK_ADDR":   ":9090",
		"DESK_ROSTER": "rosters/day one.xlsx",
	}
	if err := WriteDotEnv(path, values, false); err != nil {
		t.Fatalf("write env: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat env: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}

	t.Setenv("DESK_ADDR", ":7000")
	os.Unsetenv("DESK_ROSTER")
	t.Cleanup(func() { os.Unsetenv("DESK_ROSTER") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("DESK_ADDR"); got != ":7000" {
		t.Fatalf("existing variable was overridden: %q", got)
	}
	if got := os.Getenv("DESK_ROSTER"); got != "rosters/day one.xlsx" {
		t.Fatalf("unexpected DESK_ROSTER %q", got)
	}
}

func TestWriteDotEnvRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("KEEP=1\n"), 0o600); err != nil {
		t.Fatalf("seed env: %v", err)
	}

	err := WriteDotEnv(path, map[string]string{"DESK_ADDR": ":1"}, false)
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
	if err := WriteDotEnv(path, map[string]string{"DESK_ADDR": ":1"}, true); err != nil {
		t.Fatalf("forced write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "KEEP") {
		t.Fatalf("forced write kept old content: %q", data)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("expected nil for missing file, got %v", err)
	}
}
