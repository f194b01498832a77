package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// Validator はパッチ候補を隔離ディレクトリで静的検証する。
// 本物のソースツリーには一切書き込まない。
type Validator struct {
	lintCommand string
	lintTimeout time.Duration
}

// NewValidator は新しいValidatorを作成。
// lintCommandが空の場合、Lintチェックはスキップ扱いになる。
func NewValidator(lintCommand string, lintTimeout time.Duration) *Validator {
	return &Validator{
		lintCommand: lintCommand,
		lintTimeout: lintTimeout,
	}
}

// Validate はファイル群を一時ディレクトリへ展開し、
// 構文 → インポート → Lint の順に各ファイルをチェックする。
// 前段の失敗で後段は実行しない。Lintの失敗は記録されるが
// ファイルのステータスには影響しない。
func (v *Validator) Validate(ctx context.Context, files map[string]string) (validation.Result, error) {
	root, err := os.MkdirTemp("", "kaizen-sandbox-")
	if err != nil {
		return validation.Result{}, fmt.Errorf("failed to create sandbox: %w", err)
	}
	defer os.RemoveAll(root)

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	results := make(map[string]validation.FileResult, len(files))
	absToRel := make(map[string]string, len(files))

	// サンドボックスへ展開。ルート外へ脱出するパスは検証失敗として扱う
	var materialized []string
	for _, rel := range paths {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			results[rel] = validation.FileResult{
				Syntax: &validation.CheckResult{OK: false, Error: "path escapes sandbox root"},
				Status: validation.FileFailed,
			}
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return validation.Result{}, fmt.Errorf("failed to prepare sandbox dir: %w", err)
		}
		if err := os.WriteFile(abs, []byte(files[rel]), 0644); err != nil {
			return validation.Result{}, fmt.Errorf("failed to write sandbox file: %w", err)
		}
		absToRel[abs] = rel
		materialized = append(materialized, rel)
	}

	// 構文チェック
	fset := token.NewFileSet()
	parsed := make(map[string]*ast.File)
	var syntaxOK []string
	for _, rel := range materialized {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		file, err := parser.ParseFile(fset, abs, nil, parser.AllErrors)
		if err != nil {
			results[rel] = validation.FileResult{
				Syntax: &validation.CheckResult{OK: false, Error: err.Error()},
				Status: validation.FileFailed,
			}
			continue
		}
		parsed[rel] = file
		syntaxOK = append(syntaxOK, rel)
	}

	// インポートチェック（同一ディレクトリ・同一パッケージ単位で型検査）
	importErrs := v.checkImports(root, fset, parsed, absToRel, syntaxOK)

	for _, rel := range syntaxOK {
		fr := validation.FileResult{
			Syntax: &validation.CheckResult{OK: true},
		}
		if msgs := importErrs[rel]; len(msgs) > 0 {
			fr.Imports = &validation.CheckResult{OK: false, Error: strings.Join(msgs, "; ")}
			fr.Status = validation.FileFailed
			results[rel] = fr
			continue
		}
		fr.Imports = &validation.CheckResult{OK: true}

		lint := v.lint(ctx, filepath.Join(root, filepath.FromSlash(rel)))
		fr.Linting = &lint
		fr.Status = validation.FilePassed
		results[rel] = fr
	}

	res := validation.NewResult(results)
	logger.InfoCF("sandbox", "patch.validated", map[string]interface{}{
		"total":      res.Summary.Total,
		"passed":     res.Summary.Passed,
		"failed":     res.Summary.Failed,
		"overall_ok": res.OverallOK,
	})
	return res, nil
}

// checkImports は構文チェック通過ファイルをディレクトリ＋パッケージ名で
// グループ化し、go/typesで型検査する。エラーは発生位置のファイルへ帰属させ、
// 位置が特定できないものはグループ全ファイルへ帰属させる。
func (v *Validator) checkImports(root string, fset *token.FileSet, parsed map[string]*ast.File, absToRel map[string]string, rels []string) map[string][]string {
	groups := make(map[string][]string)
	for _, rel := range rels {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		key := filepath.Dir(abs) + "\x00" + parsed[rel].Name.Name
		groups[key] = append(groups[key], rel)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	errsByRel := make(map[string][]string)
	for _, key := range keys {
		group := groups[key]
		sort.Strings(group)

		fileErrs := make(map[string][]string)
		var groupErrs []string
		collect := func(err error) {
			var terr types.Error
			if errors.As(err, &terr) {
				abs := terr.Fset.Position(terr.Pos).Filename
				if rel, ours := absToRel[abs]; ours {
					fileErrs[rel] = append(fileErrs[rel], terr.Msg)
					return
				}
			}
			groupErrs = append(groupErrs, err.Error())
		}

		conf := types.Config{
			Importer: importer.ForCompiler(fset, "source", nil),
			Error:    collect,
		}
		astFiles := make([]*ast.File, len(group))
		for i, rel := range group {
			astFiles[i] = parsed[rel]
		}
		pkgName := strings.SplitN(key, "\x00", 2)[1]
		_, err := conf.Check(pkgName, fset, astFiles, nil)
		if err != nil && len(fileErrs) == 0 && len(groupErrs) == 0 {
			groupErrs = append(groupErrs, err.Error())
		}

		for _, rel := range group {
			msgs := append([]string{}, fileErrs[rel]...)
			msgs = append(msgs, groupErrs...)
			if len(msgs) > 0 {
				errsByRel[rel] = msgs
			}
		}
	}
	return errsByRel
}

// lint は外部Lintコマンドを対象ファイルに対して実行。
// コマンド未設定またはLinter未インストールの場合はスキップ扱い。
func (v *Validator) lint(ctx context.Context, path string) validation.CheckResult {
	if strings.TrimSpace(v.lintCommand) == "" {
		return validation.CheckResult{OK: true, Skipped: true}
	}

	lintCtx, cancel := context.WithTimeout(ctx, v.lintTimeout)
	defer cancel()

	cmd := exec.CommandContext(lintCtx, "sh", "-c", fmt.Sprintf("%s %q", v.lintCommand, path))
	out, err := cmd.CombinedOutput()
	if err == nil {
		return validation.CheckResult{OK: true}
	}
	if lintCtx.Err() == context.DeadlineExceeded {
		return validation.CheckResult{OK: false, Error: "timeout", Output: tail(string(out), 2000)}
	}
	if isCommandNotFound(err, out) {
		return validation.CheckResult{OK: true, Skipped: true}
	}
	return validation.CheckResult{OK: false, Error: err.Error(), Output: tail(string(out), 2000)}
}

// isCommandNotFound はLinter本体の不在（シェルの127終了や"not found"出力）を判定
func isCommandNotFound(err error, out []byte) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 127 {
		return true
	}
	return strings.Contains(string(out), "not found")
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
