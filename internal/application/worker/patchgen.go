package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/shuseikawaguchi/kaizen/internal/domain/candidate"
	"github.com/shuseikawaguchi/kaizen/internal/domain/llm"
	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// RunOnce は1回の改善試行を実行する。
// 対象選択 → LLM生成 → 候補抽出 → ガード → パイプライン投入。
// 提案に至らない結果（候補なし、抽出失敗等）は教訓を記録して正常終了する。
func (w *Worker) RunOnce(ctx context.Context) error {
	// 承認待ちが残っている間は新しい提案を作らない
	pending, err := w.pipeline.ListProposals(ctx, proposal.StatusProposed, 1)
	if err != nil {
		return fmt.Errorf("failed to check pending proposals: %w", err)
	}
	if len(pending) > 0 {
		logger.InfoCF("worker", "patch.pending_wait", map[string]interface{}{
			"pending_id": pending[0].ID,
		})
		return nil
	}

	target, ok := w.pickCandidate()
	if !ok {
		logger.InfoCF("worker", "patch.no_candidates", nil)
		return nil
	}

	data, err := os.ReadFile(filepath.Join(w.opts.Root, filepath.FromSlash(target)))
	if err != nil {
		return fmt.Errorf("failed to read candidate %s: %w", target, err)
	}
	source := string(data)

	if w.opts.MaxSourceBytes > 0 && len(source) > w.opts.MaxSourceBytes {
		logger.InfoCF("worker", "patch.source_too_large", map[string]interface{}{
			"target": target,
			"bytes":  len(source),
		})
		return nil
	}

	// 同一内容への再試行を避ける
	hash := xxh3.HashString(source)
	if w.alreadyAttempted(target, hash) {
		logger.InfoCF("worker", "patch.already_attempted", map[string]interface{}{
			"target": target,
		})
		return nil
	}

	resp, err := w.provider.Generate(ctx, llm.GenerateRequest{
		Prompt:       buildPatchPrompt(target, source, w.recentLessons(w.opts.LessonLimit)),
		SystemPrompt: patchSystemPrompt,
		MaxTokens:    w.opts.MaxTokens,
		Temperature:  w.opts.Temperature,
	})
	if err != nil {
		w.recordLesson("llm", err.Error())
		return fmt.Errorf("llm generation failed: %w", err)
	}

	cand, ok := candidate.Extract(resp.Content)
	if !ok {
		w.recordLesson("parse", "no valid patch JSON in response: "+head(resp.Content, 200))
		w.rememberAttempt(target, hash)
		logger.InfoCF("worker", "patch.parse_failed", map[string]interface{}{
			"target": target,
		})
		return nil
	}

	if reason := w.rejectCandidate(cand, target, source); reason != "" {
		w.recordLesson("guard", reason)
		w.rememberAttempt(target, hash)
		logger.InfoCF("worker", "patch.rejected", map[string]interface{}{
			"target": target,
			"reason": reason,
		})
		return nil
	}

	title := cand.Title
	if title == "" {
		title = "Improve " + target
	}
	description := cand.Description
	if description == "" {
		description = "Automated smallest-possible improvement."
	}

	p, err := w.pipeline.CreateAndValidate(ctx, title, description, cand.Files, true)
	w.rememberAttempt(target, hash)
	if err != nil {
		w.recordLesson("pipeline", err.Error())
		return fmt.Errorf("patch pipeline failed: %w", err)
	}

	if p.Status == proposal.StatusFailed && p.Validation != nil {
		w.recordLesson("validation", p.Validation.FailureSummary())
	}

	logger.InfoCF("worker", "patch.cycle_done", map[string]interface{}{
		"proposal_id": p.ID,
		"status":      string(p.Status),
		"target":      target,
	})
	return nil
}

// rejectCandidate は候補を受け入れない理由を返す。空文字は受け入れ可
func (w *Worker) rejectCandidate(cand *candidate.Candidate, target, source string) string {
	if w.opts.MaxPatchFiles > 0 && len(cand.Files) > w.opts.MaxPatchFiles {
		return fmt.Sprintf("too many files (%d > %d)", len(cand.Files), w.opts.MaxPatchFiles)
	}
	content, ok := cand.Files[target]
	if !ok {
		return "target file missing from candidate"
	}
	if content == source {
		return "content unchanged"
	}
	return ""
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
