package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定
type Config struct {
	Root      string          `yaml:"root" env:"KAIZEN_ROOT"`
	DataDir   string          `yaml:"data_dir" env:"KAIZEN_DATA_DIR"`
	Log       LogConfig       `yaml:"log"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Worker    WorkerConfig    `yaml:"worker"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	AutoEdit  AutoEditConfig  `yaml:"auto_edit"`
	AutoApply AutoApplyConfig `yaml:"auto_apply"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" env:"KAIZEN_LOG_LEVEL"`
	File  string `yaml:"file" env:"KAIZEN_LOG_FILE"`
}

// OllamaConfig はOllama設定
type OllamaConfig struct {
	BaseURL        string  `yaml:"base_url" env:"KAIZEN_OLLAMA_BASE_URL"`
	Model          string  `yaml:"model" env:"KAIZEN_OLLAMA_MODEL"`
	MaxTokens      int     `yaml:"max_tokens" env:"KAIZEN_OLLAMA_MAX_TOKENS"`
	Temperature    float64 `yaml:"temperature" env:"KAIZEN_OLLAMA_TEMPERATURE"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"KAIZEN_OLLAMA_TIMEOUT_SECONDS"`
	CacheSize      int     `yaml:"cache_size" env:"KAIZEN_OLLAMA_CACHE_SIZE"`
}

// WorkerConfig は改善ワーカーの設定
type WorkerConfig struct {
	IntervalSeconds     int      `yaml:"interval_seconds" env:"KAIZEN_WORKER_INTERVAL_SECONDS"`
	Schedule            string   `yaml:"schedule" env:"KAIZEN_WORKER_SCHEDULE"` // cron式。空なら常時稼働
	CycleTimeoutSeconds int      `yaml:"cycle_timeout_seconds" env:"KAIZEN_WORKER_CYCLE_TIMEOUT_SECONDS"`
	MaxSourceBytes      int      `yaml:"max_source_bytes" env:"KAIZEN_WORKER_MAX_SOURCE_BYTES"`
	CandidateExts       []string `yaml:"candidate_exts" env:"KAIZEN_WORKER_CANDIDATE_EXTS"`
	ExcludeDirs         []string `yaml:"exclude_dirs" env:"KAIZEN_WORKER_EXCLUDE_DIRS"`
	MaxCandidates       int      `yaml:"max_candidates" env:"KAIZEN_WORKER_MAX_CANDIDATES"`
	LessonLimit         int      `yaml:"lesson_limit" env:"KAIZEN_WORKER_LESSON_LIMIT"`
	PIDFile             string   `yaml:"pid_file" env:"KAIZEN_WORKER_PID_FILE"`
	StopFile            string   `yaml:"stop_file" env:"KAIZEN_WORKER_STOP_FILE"`
}

// SandboxConfig はサンドボックス検証の設定
type SandboxConfig struct {
	LintCommand        string `yaml:"lint_command" env:"KAIZEN_SANDBOX_LINT_COMMAND"`
	LintTimeoutSeconds int    `yaml:"lint_timeout_seconds" env:"KAIZEN_SANDBOX_LINT_TIMEOUT_SECONDS"`
}

// AutoEditConfig は提案のgit記録設定
type AutoEditConfig struct {
	Dir                   string `yaml:"dir" env:"KAIZEN_AUTO_EDIT_DIR"`
	BranchPrefix          string `yaml:"branch_prefix" env:"KAIZEN_AUTO_EDIT_BRANCH_PREFIX"`
	CommitMessageTemplate string `yaml:"commit_message_template" env:"KAIZEN_AUTO_EDIT_COMMIT_MESSAGE_TEMPLATE"`
}

// AutoApplyConfig は自動適用ポリシーの設定
type AutoApplyConfig struct {
	Enabled           bool            `yaml:"enabled" env:"KAIZEN_AUTO_APPLY_ENABLED"`
	AutoApprove       bool            `yaml:"auto_approve" env:"KAIZEN_AUTO_APPLY_AUTO_APPROVE"`
	RequireValidation bool            `yaml:"require_validation" env:"KAIZEN_AUTO_APPLY_REQUIRE_VALIDATION"`
	MaxFiles          int             `yaml:"max_files" env:"KAIZEN_AUTO_APPLY_MAX_FILES"`
	AllowedPaths      []string        `yaml:"allowed_paths" env:"KAIZEN_AUTO_APPLY_ALLOWED_PATHS"`
	DenyPaths         []string        `yaml:"deny_paths" env:"KAIZEN_AUTO_APPLY_DENY_PATHS"`
	BackupDir         string          `yaml:"backup_dir" env:"KAIZEN_AUTO_APPLY_BACKUP_DIR"`
	Postcheck         PostcheckConfig `yaml:"postcheck"`
}

// PostcheckConfig は適用後チェックの設定
type PostcheckConfig struct {
	Enabled        bool     `yaml:"enabled" env:"KAIZEN_POSTCHECK_ENABLED"`
	TimeoutSeconds int      `yaml:"timeout_seconds" env:"KAIZEN_POSTCHECK_TIMEOUT_SECONDS"`
	TestCommand    string   `yaml:"test_command" env:"KAIZEN_POSTCHECK_TEST_COMMAND"`
	Commands       []string `yaml:"commands" env:"KAIZEN_POSTCHECK_COMMANDS"`
}

// DefaultConfig は全項目にデフォルト値を持つConfigを返す
func DefaultConfig() *Config {
	return &Config{
		Root:    ".",
		DataDir: "data",
		Log: LogConfig{
			Level: "info",
			File:  "",
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "llama3.1:8b",
			MaxTokens:      4096,
			Temperature:    0.2,
			TimeoutSeconds: 120,
			CacheSize:      128,
		},
		Worker: WorkerConfig{
			IntervalSeconds:     120,
			Schedule:            "",
			CycleTimeoutSeconds: 600,
			MaxSourceBytes:      20000,
			CandidateExts:       []string{".go"},
			ExcludeDirs:         []string{".git", "vendor", "data", "models", "logs", "backups", "auto_edits", "testdata"},
			MaxCandidates:       300,
			LessonLimit:         5,
			PIDFile:             "data/worker.pid",
			StopFile:            "data/worker.stop",
		},
		Sandbox: SandboxConfig{
			LintCommand:        "go vet",
			LintTimeoutSeconds: 30,
		},
		AutoEdit: AutoEditConfig{
			Dir:                   "auto_edits",
			BranchPrefix:          "auto/edit",
			CommitMessageTemplate: "Auto-edit: proposed changes by assistant",
		},
		AutoApply: AutoApplyConfig{
			Enabled:           true,
			AutoApprove:       true,
			RequireValidation: true,
			MaxFiles:          20,
			AllowedPaths:      []string{""},
			DenyPaths:         []string{".git/", "vendor/", "data/", "models/", "logs/", "backups/", "auto_edits/"},
			BackupDir:         "backups",
			Postcheck: PostcheckConfig{
				Enabled:        true,
				TimeoutSeconds: 60,
				TestCommand:    "go test ./...",
				Commands:       nil,
			},
		},
	}
}

// LoadConfig は設定を読み込む。
// デフォルト値 → YAMLファイル → 環境変数 の順に上書きされる。
// pathのファイルが存在しない場合、YAML段階はスキップされる。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// YAMLパース（存在するキーのみデフォルトを上書き）
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 環境変数による上書き
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize はパスの展開と正規化を行う。
// Rootは以後のパス包含判定のため必ず絶対パスにする。
func (c *Config) normalize() error {
	c.Root = expandHome(c.Root)
	c.DataDir = expandHome(c.DataDir)
	c.Log.File = expandHome(c.Log.File)
	c.AutoEdit.Dir = expandHome(c.AutoEdit.Dir)
	c.AutoApply.BackupDir = expandHome(c.AutoApply.BackupDir)

	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("failed to resolve root: %w", err)
	}
	c.Root = abs
	return nil
}

// Validate は設定の整合性を検証
func (c *Config) Validate() error {
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("ollama.base_url is required")
	}
	if c.Worker.IntervalSeconds <= 0 {
		return fmt.Errorf("worker.interval_seconds must be positive")
	}
	if c.Worker.CycleTimeoutSeconds <= 0 {
		return fmt.Errorf("worker.cycle_timeout_seconds must be positive")
	}
	if c.AutoApply.MaxFiles <= 0 {
		return fmt.Errorf("auto_apply.max_files must be positive")
	}
	if c.Sandbox.LintTimeoutSeconds <= 0 {
		return fmt.Errorf("sandbox.lint_timeout_seconds must be positive")
	}
	if c.AutoApply.Postcheck.TimeoutSeconds <= 0 {
		return fmt.Errorf("auto_apply.postcheck.timeout_seconds must be positive")
	}
	return nil
}

// DataPath はデータディレクトリの絶対パスを返す
func (c *Config) DataPath() string {
	return c.resolve(c.DataDir)
}

// PatchesDir は提案の保存先ディレクトリを返す
func (c *Config) PatchesDir() string {
	return filepath.Join(c.DataPath(), "patches")
}

// BackupDirPath はバックアップディレクトリの絶対パスを返す
func (c *Config) BackupDirPath() string {
	return c.resolve(c.AutoApply.BackupDir)
}

// AutoEditDir は退避ディレクトリの絶対パスを返す
func (c *Config) AutoEditDir() string {
	return c.resolve(c.AutoEdit.Dir)
}

// PIDPath はワーカーPIDファイルの絶対パスを返す
func (c *Config) PIDPath() string {
	return c.resolve(c.Worker.PIDFile)
}

// StopPath はワーカー停止フラグファイルの絶対パスを返す
func (c *Config) StopPath() string {
	return c.resolve(c.Worker.StopFile)
}

// LogFilePath はログファイルの絶対パスを返す（未設定なら空）
func (c *Config) LogFilePath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

// resolve は相対パスをRoot基準の絶対パスへ解決
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, path)
}

// expandHome は先頭の ~/ をホームディレクトリへ展開
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
