package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/shuseikawaguchi/kaizen/internal/domain/llm"
	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/pkg/health"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// PatchPipeline は提案の作成・検証・記録を担当
type PatchPipeline interface {
	CreateAndValidate(ctx context.Context, title, description string, files map[string]string, autoPropose bool) (*proposal.Proposal, error)
	ListProposals(ctx context.Context, status proposal.Status, limit int) ([]*proposal.Proposal, error)
}

// Options はワーカーの動作設定
type Options struct {
	Root           string        // 改善対象ツリーのルート
	DataDir        string        // 教訓・試行記録の保存先
	Interval       time.Duration // サイクル間隔
	CycleTimeout   time.Duration // 1サイクルの上限時間
	Schedule       string        // cron式の稼働ウィンドウ。空なら常時稼働
	MaxSourceBytes int           // 対象ファイルのサイズ上限
	CandidateExts  []string
	ExcludeDirs    []string
	MaxCandidates  int
	LessonLimit    int // プロンプトへ含める直近教訓の数
	MaxPatchFiles  int
	PIDFile        string
	StopFile       string
	MaxTokens      int
	Temperature    float64
	Checks         []health.Check // 起動時ヘルスチェック
}

// Worker は自己改善ループの本体。
// 対象ファイルを選び、LLMへ改善案を依頼し、パイプラインへ流す。
type Worker struct {
	pipeline PatchPipeline
	provider llm.LLMProvider
	opts     Options
	cron     gronx.Gronx
}

// New は新しいWorkerを作成
func New(pipeline PatchPipeline, provider llm.LLMProvider, opts Options) *Worker {
	return &Worker{
		pipeline: pipeline,
		provider: provider,
		opts:     opts,
		cron:     gronx.New(),
	}
}

// Run は改善ループを開始する。
// コンテキストのキャンセルまたは停止フラグファイルの出現で終了する。
func (w *Worker) Run(ctx context.Context) error {
	if err := w.writePID(); err != nil {
		return err
	}
	defer os.Remove(w.opts.PIDFile)

	health.RunAll(w.opts.Checks)
	logger.InfoCF("worker", "loop.start", map[string]interface{}{
		"root":     w.opts.Root,
		"interval": w.opts.Interval.String(),
		"provider": w.provider.Name(),
	})

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if w.stopRequested() {
			logger.InfoCF("worker", "loop.stop_requested", map[string]interface{}{
				"stop_file": w.opts.StopFile,
			})
			return nil
		}
		if w.inActiveWindow() {
			w.cycle(ctx)
		}

		select {
		case <-ctx.Done():
			logger.InfoCF("worker", "loop.stopped", nil)
			return nil
		case <-ticker.C:
		}
	}
}

// cycle は1サイクル分の改善試行をタイムアウト付きで実行
func (w *Worker) cycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, w.opts.CycleTimeout)
	defer cancel()

	if err := w.RunOnce(cctx); err != nil {
		logger.ErrorCF("worker", "cycle.failed", map[string]interface{}{
			"error": err.Error(),
		})
		w.recordLesson("cycle", err.Error())
	}
}

// stopRequested は停止フラグファイルの有無を確認
func (w *Worker) stopRequested() bool {
	if w.opts.StopFile == "" {
		return false
	}
	_, err := os.Stat(w.opts.StopFile)
	return err == nil
}

// inActiveWindow は現在時刻が稼働ウィンドウ内かを判定。
// cron式が不正な場合は稼働側に倒す
func (w *Worker) inActiveWindow() bool {
	if w.opts.Schedule == "" {
		return true
	}
	due, err := w.cron.IsDue(w.opts.Schedule, time.Now())
	if err != nil {
		logger.WarnCF("worker", "schedule.invalid", map[string]interface{}{
			"schedule": w.opts.Schedule,
			"error":    err.Error(),
		})
		return true
	}
	return due
}

func (w *Worker) writePID() error {
	if w.opts.PIDFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.opts.PIDFile), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	if err := os.WriteFile(w.opts.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}
