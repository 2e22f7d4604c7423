package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"drealestate/internal/infra"
)

// Bootstrap orchestrates the startup sequence shared by both binaries.
type Bootstrap struct {
	Role    string
	Config  *infra.Config
	DataDir string

	unlock func()
}

// NewBootstrap creates a Bootstrap for role ("marketplace" or "devchain").
func NewBootstrap(role string) *Bootstrap {
	return &Bootstrap{Role: role}
}

// Initialize loads the configuration, installs the logger and claims the
// role's data directory.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping DRealEstate...", slog.String("role", b.Role), slog.String("version", cfg.App.Version))
	infra.PrintBanner(cfg, b.Role)

	// 3. Data directory: _workspace/data/{role}
	b.DataDir = infra.DataDir(b.Role)
	if b.Role == RoleDevChain && cfg.DevChain.DataDir != "" {
		b.DataDir = cfg.DevChain.DataDir
	}
	if err := infra.EnsureDir(b.DataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// 3.1 One process per data directory
	unlock, err := infra.CreateLockFile(b.DataDir)
	if err != nil {
		return err
	}
	b.unlock = unlock
	slog.Info("✅ Workspace ready", slog.String("data", filepath.Clean(b.DataDir)))
	return nil
}

// Close releases the instance lock.
func (b *Bootstrap) Close() {
	if b.unlock != nil {
		b.unlock()
		b.unlock = nil
	}
}
