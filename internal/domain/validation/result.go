package validation

import (
	"fmt"
	"sort"
	"strings"
)

// FileStatus はファイル単位の検証ステータス
type FileStatus string

const (
	FilePassed FileStatus = "PASSED" // 構文・インポート両方通過（Lintは助言扱い）
	FileFailed FileStatus = "FAILED" // 構文またはインポートで失敗
)

// CheckResult は単一チェック（構文・インポート・Lint）の結果
type CheckResult struct {
	OK      bool   `json:"ok"`
	Skipped bool   `json:"skipped,omitempty"` // ツール不在等でスキップされた場合true
	Error   string `json:"error,omitempty"`
	Output  string `json:"output,omitempty"`
}

// FileResult は1ファイル分の検証結果。
// 前段チェックの失敗で後段が実行されなかった場合、そのフィールドはnilのまま。
type FileResult struct {
	Syntax  *CheckResult `json:"syntax,omitempty"`
	Imports *CheckResult `json:"imports,omitempty"`
	Linting *CheckResult `json:"linting,omitempty"`
	Status  FileStatus   `json:"status"`
}

// Summary は検証全体の集計
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Result はパッチ全体の検証結果を表す値オブジェクト
type Result struct {
	Files     map[string]FileResult `json:"files"`
	Summary   Summary               `json:"summary"`
	OverallOK bool                  `json:"overall_ok"`
}

// NewResult はファイル別結果から集計済みのResultを作成。
// OverallOKは失敗ファイルが1つもないときに限りtrue。
func NewResult(files map[string]FileResult) Result {
	summary := Summary{Total: len(files)}
	for _, fr := range files {
		if fr.Status == FilePassed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return Result{
		Files:     files,
		Summary:   summary,
		OverallOK: summary.Failed == 0,
	}
}

// FailedFiles は失敗したファイルのパスをソート済みで返す
func (r Result) FailedFiles() []string {
	paths := make([]string, 0, r.Summary.Failed)
	for path, fr := range r.Files {
		if fr.Status == FileFailed {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// FailureSummary は失敗理由を1行に要約（失敗教訓の記録用）
func (r Result) FailureSummary() string {
	var parts []string
	for _, path := range r.FailedFiles() {
		fr := r.Files[path]
		switch {
		case fr.Syntax != nil && !fr.Syntax.OK:
			parts = append(parts, fmt.Sprintf("%s: syntax: %s", path, fr.Syntax.Error))
		case fr.Imports != nil && !fr.Imports.OK:
			parts = append(parts, fmt.Sprintf("%s: imports: %s", path, fr.Imports.Error))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed", path))
		}
	}
	return strings.Join(parts, "; ")
}
