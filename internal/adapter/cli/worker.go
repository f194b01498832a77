package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuseikawaguchi/kaizen/internal/application/worker"
	"github.com/shuseikawaguchi/kaizen/internal/infrastructure/llm/ollama"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the self-improvement worker loop",
	Long: `Starts the background worker. Each cycle picks one candidate source file,
asks the configured Ollama model for the smallest possible improvement,
validates the result in a sandbox and hands it to the patch pipeline.
The loop stops on SIGINT/SIGTERM or when the stop file appears.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(workerCmd)
}

func runWorker() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := ollama.NewOllamaProvider(
		cfg.Ollama.BaseURL,
		cfg.Ollama.Model,
		time.Duration(cfg.Ollama.TimeoutSeconds)*time.Second,
		cfg.Ollama.CacheSize,
	)
	if err != nil {
		return fmt.Errorf("failed to build ollama provider: %w", err)
	}

	w := worker.New(buildPipeline(), provider, workerOptions())

	if workerOnce {
		cctx, ccancel := context.WithTimeout(ctx, time.Duration(cfg.Worker.CycleTimeoutSeconds)*time.Second)
		defer ccancel()
		return w.RunOnce(cctx)
	}
	return w.Run(ctx)
}

// workerOptions は設定からワーカーの動作条件を組み立てる
func workerOptions() worker.Options {
	return worker.Options{
		Root:           cfg.Root,
		DataDir:        cfg.DataPath(),
		Interval:       time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		CycleTimeout:   time.Duration(cfg.Worker.CycleTimeoutSeconds) * time.Second,
		Schedule:       cfg.Worker.Schedule,
		MaxSourceBytes: cfg.Worker.MaxSourceBytes,
		CandidateExts:  cfg.Worker.CandidateExts,
		ExcludeDirs:    cfg.Worker.ExcludeDirs,
		MaxCandidates:  cfg.Worker.MaxCandidates,
		LessonLimit:    cfg.Worker.LessonLimit,
		MaxPatchFiles:  cfg.AutoApply.MaxFiles,
		PIDFile:        cfg.PIDPath(),
		StopFile:       cfg.StopPath(),
		MaxTokens:      cfg.Ollama.MaxTokens,
		Temperature:    cfg.Ollama.Temperature,
		Checks:         healthChecks(),
	}
}
