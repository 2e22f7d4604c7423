package infra

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestWorkspaceDir_HomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv(HomeEnv, home)

	if got := WorkspaceDir(); got != home {
		t.Fatalf("WorkspaceDir() = %q, want %q", got, home)
	}
	if got, want := DataDir("devchain"), filepath.Join(home, "data", "devchain"); got != want {
		t.Fatalf("DataDir() = %q, want %q", got, want)
	}
}

func TestCreateLockFile(t *testing.T) {
	dir := t.TempDir()

	unlock, err := CreateLockFile(dir)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := CreateLockFile(dir); err == nil {
		t.Fatal("second lock by a live process should fail")
	}

	unlock()
	if _, err := os.Stat(filepath.Join(dir, lockName)); !os.IsNotExist(err) {
		t.Fatalf("unlock left the file behind: %v", err)
	}
}

func TestCreateLockFile_TakesOverStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead pid", strconv.Itoa(0x7ffffff0)},
		{"garbage", "not-a-pid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, lockName)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			unlock, err := CreateLockFile(dir)
			if err != nil {
				t.Fatalf("stale lock not taken over: %v", err)
			}
			defer unlock()

			raw, _ := os.ReadFile(path)
			if string(raw) != strconv.Itoa(os.Getpid()) {
				t.Errorf("lock holds %q, want our pid", raw)
			}
		})
	}
}

func TestResolveConfigPath_Fallback(t *testing.T) {
	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if got, want := ResolveConfigPath(), filepath.Join("configs", "config.yaml"); got != want {
		t.Fatalf("ResolveConfigPath() = %q, want %q", got, want)
	}
}
