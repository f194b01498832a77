// Package cli はkaizenのコマンドラインインターフェースを提供する
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shuseikawaguchi/kaizen/internal/adapter/config"
	"github.com/shuseikawaguchi/kaizen/internal/application/orchestrator"
	"github.com/shuseikawaguchi/kaizen/internal/infrastructure/gitrepo"
	persistence "github.com/shuseikawaguchi/kaizen/internal/infrastructure/persistence/proposal"
	"github.com/shuseikawaguchi/kaizen/internal/infrastructure/postcheck"
	"github.com/shuseikawaguchi/kaizen/internal/infrastructure/sandbox"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "kaizen",
	Short: "Self-improving patch pipeline for a local AI assistant",
	Long: `kaizen runs a local self-improvement loop: a worker asks an LLM for the
smallest possible improvement to one source file, validates the patch in an
isolated sandbox, records it on a git branch, and (policy permitting) applies
it to the live tree with backups and rollback.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime()
	},
}

// Execute はルートコマンドを実行する
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $KAIZEN_CONFIG or config.yaml)")
}

// initRuntime は設定とロガーを初期化する
func initRuntime() error {
	// .envがあれば読み込む。なくてもよい
	_ = godotenv.Load()

	path := configPath
	if path == "" {
		path = os.Getenv("KAIZEN_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	loaded, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	if err := logger.Init(cfg.Log.Level, cfg.LogFilePath()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// buildPipeline は提案パイプライン一式を構築する
func buildPipeline() *orchestrator.PatchValidator {
	return orchestrator.NewPatchValidator(
		buildSandbox(),
		gitrepo.NewRecorder(cfg.Root, cfg.AutoEditDir()),
		persistence.NewJSONProposalRepository(cfg.PatchesDir()),
		postcheck.NewRunner(
			cfg.Root,
			cfg.AutoApply.Postcheck.TestCommand,
			cfg.AutoApply.Postcheck.Commands,
			time.Duration(cfg.AutoApply.Postcheck.TimeoutSeconds)*time.Second,
		),
		patchPolicy(),
	)
}

func buildSandbox() *sandbox.Validator {
	return sandbox.NewValidator(cfg.Sandbox.LintCommand, time.Duration(cfg.Sandbox.LintTimeoutSeconds)*time.Second)
}

// patchPolicy は設定を適用ポリシーへ写す
func patchPolicy() orchestrator.Policy {
	return orchestrator.Policy{
		AutoApply:             cfg.AutoApply.Enabled,
		AutoApprove:           cfg.AutoApply.AutoApprove,
		RequireValidation:     cfg.AutoApply.RequireValidation,
		MaxFiles:              cfg.AutoApply.MaxFiles,
		AllowedPaths:          cfg.AutoApply.AllowedPaths,
		DenyPaths:             cfg.AutoApply.DenyPaths,
		BranchPrefix:          cfg.AutoEdit.BranchPrefix,
		CommitMessageTemplate: cfg.AutoEdit.CommitMessageTemplate,
		PostcheckEnabled:      cfg.AutoApply.Postcheck.Enabled,
		ProjectRoot:           cfg.Root,
		BackupDir:             cfg.BackupDirPath(),
	}
}
