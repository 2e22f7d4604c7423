package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// AppName names the per-user data and config directories.
const AppName = "drealestate"

// HomeEnv points every role at one directory, overriding the lookup below.
const HomeEnv = "DREALESTATE_HOME"

const (
	localWorkspace = "_workspace"
	lockName       = "instance.lock"
)

// WorkspaceDir returns the root for runtime data: $DREALESTATE_HOME, then a
// "_workspace" directory in the working directory, then the per-user
// data directory.
func WorkspaceDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	if st, err := os.Stat(localWorkspace); err == nil && st.IsDir() {
		return localWorkspace
	}
	if dir := userDataDir(); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return localWorkspace
}

// userDataDir follows XDG on Linux and the OS conventions elsewhere.
func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	// UserConfigDir resolves to AppData/Roaming and Library/Application
	// Support, which hold data as well on those systems.
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	if filepath.Base(dir) == ".config" {
		return filepath.Join(filepath.Dir(dir), ".local", "share")
	}
	return dir
}

// DataDir returns the directory holding one role's databases and snapshots,
// e.g. <workspace>/data/devchain.
func DataDir(role string) string {
	return filepath.Join(WorkspaceDir(), "data", role)
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// CreateLockFile claims dir for this process. A lock left behind by a process
// that no longer exists is taken over; a live holder is an error.
func CreateLockFile(dir string) (func(), error) {
	path := filepath.Join(dir, lockName)

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock: %w", err)
		}

		pid, ok := lockOwner(path)
		if ok && processAlive(pid) {
			return nil, fmt.Errorf("another instance (pid %d) holds %s", pid, path)
		}
		if !ok && attempt == 0 {
			// Unreadable lock, possibly mid-write; retry once before taking it.
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("could not acquire %s", path)
}

func lockOwner(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess already failed for a dead pid on Windows.
	if runtime.GOOS == "windows" {
		return true
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, os.ErrPermission)
}

// ResolveConfigPath finds config.yaml in ./configs, then in the per-user
// config directory. The ./configs path is returned when neither exists so
// LoadConfig can report it.
func ResolveConfigPath() string {
	local := filepath.Join("configs", "config.yaml")
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if root, err := os.UserConfigDir(); err == nil {
		user := filepath.Join(root, AppName, "config.yaml")
		if _, err := os.Stat(user); err == nil {
			return user
		}
	}
	return local
}
