package postcheck

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// Runner は自動適用後の事後チェック（テスト等）を実行する
type Runner struct {
	root          string
	testCommand   string
	extraCommands []string
	timeout       time.Duration
}

// NewRunner は新しいRunnerを作成。
// testCommandはプロジェクトがGoモジュールの場合にのみ実行される。
func NewRunner(root, testCommand string, commands []string, timeout time.Duration) *Runner {
	return &Runner{
		root:          root,
		testCommand:   testCommand,
		extraCommands: commands,
		timeout:       timeout,
	}
}

// Run は構成されたチェックコマンドを順に実行する。
// 実行対象がない場合はスキップ扱いで成功を返す。
// いずれかのコマンドが失敗またはタイムアウトした時点で全体を失敗とする。
func (r *Runner) Run(ctx context.Context) proposal.PostcheckResult {
	var commands []string
	if r.testCommand != "" && r.hasGoModule() {
		commands = append(commands, r.testCommand)
	}
	commands = append(commands, r.extraCommands...)

	if len(commands) == 0 {
		return proposal.PostcheckResult{OK: true, Skipped: true}
	}

	result := proposal.PostcheckResult{OK: true}
	for _, command := range commands {
		check := r.runCommand(ctx, command)
		result.Checks = append(result.Checks, check)
		logger.InfoCF("postcheck", "check.done", map[string]interface{}{
			"cmd":        command,
			"ok":         check.OK,
			"returncode": check.ExitCode,
		})
		if !check.OK {
			result.OK = false
			break
		}
	}
	return result
}

func (r *Runner) hasGoModule() bool {
	_, err := os.Stat(filepath.Join(r.root, "go.mod"))
	return err == nil
}

func (r *Runner) runCommand(ctx context.Context, command string) proposal.CommandResult {
	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = r.root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	res := proposal.CommandResult{
		Cmd:    command,
		Stdout: tail(stdout.String(), 2000),
		Stderr: tail(stderr.String(), 2000),
	}

	switch {
	case cmdCtx.Err() == context.DeadlineExceeded:
		res.OK = false
		res.ExitCode = -1
		res.Stderr = "timeout"
	case err == nil:
		res.OK = true
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Stderr = err.Error()
		}
	}
	return res
}

// tail は末尾nバイトを返す（長大な出力の記録用）
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
