package proposal

import "time"

// Git記録ステップの結果ステータス
const (
	GitStatusOK    = "ok"     // ブランチ作成＋コミット成功
	GitStatusNoGit = "no_git" // gitリポジトリ外。退避ディレクトリへ書き出し
	GitStatusError = "error"  // git操作の失敗
)

// GitResult はブランチ記録ステップの結果
type GitResult struct {
	Status  string   `json:"status"`
	Branch  string   `json:"branch,omitempty"`
	Written []string `json:"written,omitempty"` // 書き出したファイルの相対パス
	Patch   string   `json:"patch,omitempty"`   // エクスポートしたパッチファイルのパス
	Error   string   `json:"error,omitempty"`
}

// CommandResult は事後チェックで実行した1コマンドの結果
type CommandResult struct {
	OK       bool   `json:"ok"`
	Cmd      string `json:"cmd"`
	ExitCode int    `json:"returncode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// PostcheckResult は自動適用後の事後チェック結果
type PostcheckResult struct {
	OK      bool            `json:"ok"`
	Skipped bool            `json:"skipped,omitempty"` // 実行対象コマンドなし
	Checks  []CommandResult `json:"checks,omitempty"`
}

// ApplyRecord は自動適用の試行記録。
// 失敗・ロールバックを含め、試行があった事実そのものを永続化する。
type ApplyRecord struct {
	Applied        bool              `json:"applied"`
	RolledBack     bool              `json:"rolled_back,omitempty"`
	AppliedAt      time.Time         `json:"applied_at"`
	Files          []string          `json:"files,omitempty"`
	Backups        map[string]string `json:"backups,omitempty"` // 適用先絶対パス → バックアップ絶対パス
	RollbackErrors map[string]string `json:"rollback_errors,omitempty"`
	Error          string            `json:"error,omitempty"`
	Postcheck      *PostcheckResult  `json:"postcheck,omitempty"`
}
