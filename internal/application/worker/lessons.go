package worker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// lessonRecord は失敗から得た教訓の1レコード
type lessonRecord struct {
	Timestamp time.Time `json:"ts"`
	Stage     string    `json:"stage"`
	Summary   string    `json:"summary"`
}

func (w *Worker) lessonsPath() string {
	return filepath.Join(w.opts.DataDir, "failure_lessons.jsonl")
}

// recordLesson は教訓をJSONL形式で追記する。
// 記録自体の失敗はワーカーを止めない
func (w *Worker) recordLesson(stage, summary string) {
	rec := lessonRecord{
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		Summary:   summary,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}

	if err := os.MkdirAll(w.opts.DataDir, 0755); err != nil {
		logger.WarnCF("worker", "lesson.record_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	f, err := os.OpenFile(w.lessonsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		logger.WarnCF("worker", "lesson.record_failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	defer f.Close()
	f.Write(append(data, '\n'))
}

// recentLessons は直近n件の教訓を「stage: summary」形式で返す
func (w *Worker) recentLessons(n int) []string {
	if n <= 0 {
		return nil
	}
	data, err := os.ReadFile(w.lessonsPath())
	if err != nil {
		return nil
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		var rec lessonRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec.Stage+": "+rec.Summary)
	}
	return out
}
