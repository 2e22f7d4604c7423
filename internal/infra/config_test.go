package infra

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baseYAML = `
app:
  name: drealestate
  version: 0.1.0
chain:
  contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
api:
  jwt_secret: test-secret
`

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(baseYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	if cfg.Chain.DevURL != "http://127.0.0.1:7545" {
		t.Errorf("dev url = %s", cfg.Chain.DevURL)
	}
	if cfg.Chain.GasLimit != 3_000_000 {
		t.Errorf("gas limit = %d", cfg.Chain.GasLimit)
	}
	if cfg.DevChain.Accounts != 10 || cfg.DevChain.BalanceEth != "100" {
		t.Errorf("devchain defaults = %d accounts, %s eth", cfg.DevChain.Accounts, cfg.DevChain.BalanceEth)
	}
	if GetUserAgent() != "drealestate/0.1.0" {
		t.Errorf("user agent = %s", GetUserAgent())
	}
}

func TestParseConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DREALESTATE_JWT_SECRET", "from-env")
	t.Setenv("DREALESTATE_PROVIDER_URL", "https://rpc.example.org")
	t.Setenv("DREALESTATE_DEV_URL", "http://10.0.0.2:7545")

	cfg, err := ParseConfig([]byte(baseYAML))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.API.JWTSecret != "from-env" {
		t.Errorf("jwt secret not overridden")
	}
	if cfg.Chain.ProviderURL != "https://rpc.example.org" || cfg.Chain.DevURL != "http://10.0.0.2:7545" {
		t.Errorf("endpoints not overridden: %s %s", cfg.Chain.ProviderURL, cfg.Chain.DevURL)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad contract", strings.Replace(baseYAML, "0x5FbDB2315678afecb367f032d93F642f64180aa3", "nope", 1)},
		{"bad provider", strings.Replace(baseYAML, "chain:\n", "chain:\n  provider_url: ftp://x\n", 1)},
		{"bad level", baseYAML + "logging:\n  level: loud\n"},
		{"bad format", baseYAML + "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestValidateAPI(t *testing.T) {
	t.Setenv("DREALESTATE_JWT_SECRET", "")

	cfg, err := ParseConfig([]byte(strings.Replace(baseYAML, "jwt_secret: test-secret", "", 1)))
	if err != nil {
		t.Fatalf("a node-only config should parse: %v", err)
	}
	if err := cfg.ValidateAPI(); err == nil {
		t.Error("expected missing secret to fail")
	}

	cfg.API.JWTSecret = "s"
	if err := cfg.ValidateAPI(); err != nil {
		t.Errorf("ValidateAPI: %v", err)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(baseYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.App.Name != "drealestate" {
		t.Errorf("name = %s", cfg.App.Name)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewLogger_JSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(baseYAML + "logging:\n  level: warn\n  format: json\n"))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := newLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"app":"drealestate"`) {
		t.Errorf("unexpected json output: %s", out)
	}
}

func TestBanner_ProviderWarning(t *testing.T) {
	cfg, _ := ParseConfig([]byte(baseYAML))
	if strings.Contains(Banner(cfg, "marketplace"), "REAL ETHER") {
		t.Error("dev chain banner must not warn")
	}

	cfg.Chain.ProviderURL = "https://rpc.example.org"
	if !strings.Contains(Banner(cfg, "marketplace"), "REAL ETHER") {
		t.Error("provider banner must warn")
	}
	if !strings.Contains(Banner(cfg, "devchain"), "DEV NODE") {
		t.Error("devchain banner must name the node")
	}
}
