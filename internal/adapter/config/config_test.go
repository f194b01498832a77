package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// ファイルが存在しない場合はデフォルトのみ
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected default Ollama base URL, got '%s'", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.Model != "llama3.1:8b" {
		t.Errorf("Expected default model, got '%s'", cfg.Ollama.Model)
	}
	if cfg.Worker.IntervalSeconds != 120 {
		t.Errorf("Expected default interval 120, got %d", cfg.Worker.IntervalSeconds)
	}
	if cfg.Sandbox.LintCommand != "go vet" {
		t.Errorf("Expected default lint command, got '%s'", cfg.Sandbox.LintCommand)
	}
	if !cfg.AutoApply.Enabled || !cfg.AutoApply.RequireValidation {
		t.Error("Expected auto apply enabled with validation required by default")
	}
	if cfg.AutoApply.MaxFiles != 20 {
		t.Errorf("Expected default max_files 20, got %d", cfg.AutoApply.MaxFiles)
	}
	if len(cfg.AutoApply.DenyPaths) == 0 {
		t.Error("Expected default deny paths")
	}
	// Rootは絶対パスに正規化される
	if !filepath.IsAbs(cfg.Root) {
		t.Errorf("Expected absolute root, got '%s'", cfg.Root)
	}
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
root: ` + tmpDir + `

ollama:
  model: "qwen2.5-coder:7b"
  temperature: 0.5

worker:
  interval_seconds: 30

auto_apply:
  enabled: false
  max_files: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Ollama.Model != "qwen2.5-coder:7b" {
		t.Errorf("Expected model override, got '%s'", cfg.Ollama.Model)
	}
	if cfg.Ollama.Temperature != 0.5 {
		t.Errorf("Expected temperature override, got %v", cfg.Ollama.Temperature)
	}
	if cfg.Worker.IntervalSeconds != 30 {
		t.Errorf("Expected interval override, got %d", cfg.Worker.IntervalSeconds)
	}
	if cfg.AutoApply.Enabled {
		t.Error("Expected auto apply disabled via YAML")
	}
	if cfg.AutoApply.MaxFiles != 5 {
		t.Errorf("Expected max_files override, got %d", cfg.AutoApply.MaxFiles)
	}

	// YAMLに書かなかったキーはデフォルトのまま
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Expected default base URL preserved, got '%s'", cfg.Ollama.BaseURL)
	}
	if cfg.Sandbox.LintCommand != "go vet" {
		t.Errorf("Expected default lint command preserved, got '%s'", cfg.Sandbox.LintCommand)
	}
}

func TestLoadConfig_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
ollama:
  model: "from-yaml"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("KAIZEN_OLLAMA_MODEL", "from-env")
	t.Setenv("KAIZEN_WORKER_INTERVAL_SECONDS", "45")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Ollama.Model != "from-env" {
		t.Errorf("Expected env to override YAML, got '%s'", cfg.Ollama.Model)
	}
	if cfg.Worker.IntervalSeconds != 45 {
		t.Errorf("Expected interval from env, got %d", cfg.Worker.IntervalSeconds)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("worker:\n  interval_seconds: [not an int\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Valid defaults", func(c *Config) {}, false},
		{"Missing Ollama base URL", func(c *Config) { c.Ollama.BaseURL = "" }, true},
		{"Zero interval", func(c *Config) { c.Worker.IntervalSeconds = 0 }, true},
		{"Negative cycle timeout", func(c *Config) { c.Worker.CycleTimeoutSeconds = -1 }, true},
		{"Zero max files", func(c *Config) { c.AutoApply.MaxFiles = 0 }, true},
		{"Zero lint timeout", func(c *Config) { c.Sandbox.LintTimeoutSeconds = 0 }, true},
		{"Zero postcheck timeout", func(c *Config) { c.AutoApply.Postcheck.TimeoutSeconds = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_PathHelpers(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Root = tmpDir

	if got := cfg.DataPath(); got != filepath.Join(tmpDir, "data") {
		t.Errorf("Expected data path under root, got '%s'", got)
	}
	if got := cfg.PatchesDir(); got != filepath.Join(tmpDir, "data", "patches") {
		t.Errorf("Expected patches dir under data, got '%s'", got)
	}
	if got := cfg.BackupDirPath(); got != filepath.Join(tmpDir, "backups") {
		t.Errorf("Expected backup dir under root, got '%s'", got)
	}
	if got := cfg.PIDPath(); got != filepath.Join(tmpDir, "data", "worker.pid") {
		t.Errorf("Expected pid file under data, got '%s'", got)
	}

	// 絶対パスはそのまま
	cfg.DataDir = "/var/lib/kaizen"
	if got := cfg.DataPath(); got != "/var/lib/kaizen" {
		t.Errorf("Expected absolute data dir unchanged, got '%s'", got)
	}

	// ログファイル未設定なら空
	cfg.Log.File = ""
	if got := cfg.LogFilePath(); got != "" {
		t.Errorf("Expected empty log path, got '%s'", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("home directory unavailable")
	}

	if got := expandHome("~/kaizen/data"); got != filepath.Join(home, "kaizen", "data") {
		t.Errorf("Expected home expansion, got '%s'", got)
	}
	if got := expandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("Expected absolute path unchanged, got '%s'", got)
	}
	if got := expandHome("relative/path"); got != "relative/path" {
		t.Errorf("Expected relative path unchanged, got '%s'", got)
	}
}
