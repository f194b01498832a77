package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// Recorder は提案をgitブランチとして記録する。
// gitリポジトリ外で動作している場合は退避ディレクトリへの
// 書き出しにフォールバックする。
type Recorder struct {
	root       string // 作業ツリーのルート
	holdingDir string // git不在時の退避先
}

// NewRecorder は新しいRecorderを作成
func NewRecorder(root, holdingDir string) *Recorder {
	return &Recorder{
		root:       root,
		holdingDir: holdingDir,
	}
}

// CreateBranchAndCommit は提案ファイル群を新規ブランチへコミットし、
// パッチファイルを退避ディレクトリへエクスポートする。
// 失敗はGitResultのステータスとして返し、errorは返さない。
func (r *Recorder) CreateBranchAndCommit(ctx context.Context, files map[string]string, branch, message string) proposal.GitResult {
	repoRoot, err := r.repoTopLevel(ctx)
	if err != nil {
		return r.writeToHolding(files)
	}

	if out, err := git(ctx, repoRoot, "checkout", "-b", branch); err != nil {
		logger.WarnCF("gitrepo", "branch.create_failed", map[string]interface{}{
			"branch": branch,
			"error":  out,
		})
		// 既存ブランチの可能性があるため通常のcheckoutを試す
		if out2, err2 := git(ctx, repoRoot, "checkout", branch); err2 != nil {
			return proposal.GitResult{
				Status: proposal.GitStatusError,
				Error:  fmt.Sprintf("checkout failed: %s / %s", out, out2),
			}
		}
	}

	written := make([]string, 0, len(files))
	paths := sortedPaths(files)
	for _, rel := range paths {
		abs := filepath.Join(repoRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return proposal.GitResult{
				Status: proposal.GitStatusError,
				Error:  fmt.Sprintf("failed to create directory for %s: %v", rel, err),
			}
		}
		if err := os.WriteFile(abs, []byte(files[rel]), 0644); err != nil {
			return proposal.GitResult{
				Status: proposal.GitStatusError,
				Error:  fmt.Sprintf("failed to write %s: %v", rel, err),
			}
		}
		written = append(written, rel)
	}

	if out, err := git(ctx, repoRoot, "add", "-A"); err != nil {
		return proposal.GitResult{
			Status: proposal.GitStatusError,
			Error:  fmt.Sprintf("git add failed: %s", out),
		}
	}

	if out, err := git(ctx, repoRoot, "commit", "-m", message); err != nil {
		// コミット失敗（user.email未設定等）でもブランチと書き込みは残る
		logger.WarnCF("gitrepo", "commit.failed", map[string]interface{}{
			"branch": branch,
			"error":  out,
		})
	}

	return proposal.GitResult{
		Status:  proposal.GitStatusOK,
		Branch:  branch,
		Written: written,
		Patch:   r.exportPatch(ctx, repoRoot, branch),
	}
}

// repoTopLevel はrootが属するgit作業ツリーの最上位を返す
func (r *Recorder) repoTopLevel(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel")
	cmd.Dir = r.root
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// writeToHolding はgit不在時のフォールバック。
// 提案ファイルを相対パス構造を保ったまま退避ディレクトリへ書き出す
func (r *Recorder) writeToHolding(files map[string]string) proposal.GitResult {
	written := make([]string, 0, len(files))
	for _, rel := range sortedPaths(files) {
		abs := filepath.Join(r.holdingDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return proposal.GitResult{
				Status: proposal.GitStatusError,
				Error:  fmt.Sprintf("failed to create holding directory: %v", err),
			}
		}
		if err := os.WriteFile(abs, []byte(files[rel]), 0644); err != nil {
			return proposal.GitResult{
				Status: proposal.GitStatusError,
				Error:  fmt.Sprintf("failed to write %s: %v", rel, err),
			}
		}
		written = append(written, rel)
	}

	logger.InfoCF("gitrepo", "no_git.fallback", map[string]interface{}{
		"holding_dir": r.holdingDir,
		"files":       len(written),
	})
	return proposal.GitResult{
		Status:  proposal.GitStatusNoGit,
		Written: written,
	}
}

// exportPatch は直近コミットをパッチファイルとして退避ディレクトリへ保存。
// 失敗しても提案の記録自体は止めない
func (r *Recorder) exportPatch(ctx context.Context, repoRoot, branch string) string {
	cmd := exec.CommandContext(ctx, "git", "format-patch", "-1", "--stdout", "HEAD")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		logger.WarnCF("gitrepo", "patch.export_failed", map[string]interface{}{
			"branch": branch,
			"error":  err.Error(),
		})
		return ""
	}

	if err := os.MkdirAll(r.holdingDir, 0755); err != nil {
		logger.WarnCF("gitrepo", "patch.export_failed", map[string]interface{}{
			"branch": branch,
			"error":  err.Error(),
		})
		return ""
	}
	name := strings.ReplaceAll(branch, "/", "_") + ".patch"
	path := filepath.Join(r.holdingDir, name)
	if err := os.WriteFile(path, out, 0644); err != nil {
		logger.WarnCF("gitrepo", "patch.export_failed", map[string]interface{}{
			"branch": branch,
			"error":  err.Error(),
		})
		return ""
	}
	return path
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func sortedPaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
