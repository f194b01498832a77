package worker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

func (w *Worker) attemptsPath() string {
	return filepath.Join(w.opts.DataDir, "patch_attempts.json")
}

// loadAttempts は対象ファイルごとの最終試行ハッシュを読み込む。
// ファイルがない・壊れている場合は空のマップを返す
func (w *Worker) loadAttempts() map[string]string {
	attempts := map[string]string{}
	data, err := os.ReadFile(w.attemptsPath())
	if err != nil {
		return attempts
	}
	if err := json.Unmarshal(data, &attempts); err != nil {
		return map[string]string{}
	}
	return attempts
}

// alreadyAttempted は同一内容のファイルに対して既に試行済みかを判定する
func (w *Worker) alreadyAttempted(target string, hash uint64) bool {
	return w.loadAttempts()[target] == strconv.FormatUint(hash, 16)
}

// rememberAttempt は試行したファイルと内容ハッシュを記録する
func (w *Worker) rememberAttempt(target string, hash uint64) {
	attempts := w.loadAttempts()
	attempts[target] = strconv.FormatUint(hash, 16)

	data, err := json.MarshalIndent(attempts, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(w.opts.DataDir, 0755); err != nil {
		logger.WarnCF("worker", "attempt.record_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := os.WriteFile(w.attemptsPath(), data, 0644); err != nil {
		logger.WarnCF("worker", "attempt.record_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
