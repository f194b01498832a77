package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// autoApplyIfAllowed はポリシーの許す範囲で提案を実ツリーへ適用する。
// 適用できた場合のみtrue。ポリシー違反・失敗・ロールバックはfalse。
// 試行の顛末は提案のApplyRecordとして永続化される。
func (v *PatchValidator) autoApplyIfAllowed(ctx context.Context, p *proposal.Proposal) bool {
	if len(p.Files) == 0 {
		return false
	}
	if len(p.Files) > v.policy.MaxFiles {
		logger.WarnCF("autoapply", "patch.too_many_files", map[string]interface{}{
			"proposal_id": p.ID,
			"files":       len(p.Files),
			"max_files":   v.policy.MaxFiles,
		})
		return false
	}

	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if !v.isAllowedPath(path) {
			logger.WarnCF("autoapply", "patch.path_denied", map[string]interface{}{
				"proposal_id": p.ID,
				"path":        path,
			})
			return false
		}
	}

	// シンボリックリンク経由の脱出を防ぐため実パスで包含判定する
	rootReal, err := filepath.EvalSymlinks(v.policy.ProjectRoot)
	if err != nil {
		logger.ErrorCF("autoapply", "root.resolve_failed", map[string]interface{}{
			"proposal_id": p.ID,
			"error":       err.Error(),
		})
		return false
	}
	targets := make(map[string]string, len(paths))
	for _, path := range paths {
		abs, err := resolveWithinRoot(rootReal, path)
		if err != nil {
			logger.WarnCF("autoapply", "patch.path_escape", map[string]interface{}{
				"proposal_id": p.ID,
				"path":        path,
			})
			return false
		}
		targets[path] = abs
	}

	now := time.Now().UTC()
	applied, backups, err := v.applyBatch(p, paths, targets)
	if err != nil {
		rbErrs := rollback(applied, backups)
		v.recordApply(ctx, p, &proposal.ApplyRecord{
			Applied:        false,
			RolledBack:     len(rbErrs) == 0,
			AppliedAt:      now,
			Files:          applied,
			Backups:        backups,
			RollbackErrors: rbErrs,
			Error:          err.Error(),
		})
		logger.ErrorCF("autoapply", "patch.apply_failed", map[string]interface{}{
			"proposal_id": p.ID,
			"error":       err.Error(),
		})
		return false
	}

	var post *proposal.PostcheckResult
	if v.policy.PostcheckEnabled {
		res := v.postcheck.Run(ctx)
		post = &res
		if !res.OK {
			rbErrs := rollback(applied, backups)
			v.recordApply(ctx, p, &proposal.ApplyRecord{
				Applied:        false,
				RolledBack:     len(rbErrs) == 0,
				AppliedAt:      now,
				Files:          applied,
				Backups:        backups,
				RollbackErrors: rbErrs,
				Error:          "postcheck failed",
				Postcheck:      post,
			})
			logger.WarnCF("autoapply", "patch.rolled_back", map[string]interface{}{
				"proposal_id": p.ID,
			})
			return false
		}
	}

	p.MarkApproved(time.Now())
	v.recordApply(ctx, p, &proposal.ApplyRecord{
		Applied:   true,
		AppliedAt: now,
		Files:     applied,
		Backups:   backups,
		Postcheck: post,
	})
	logger.InfoCF("autoapply", "patch.applied", map[string]interface{}{
		"proposal_id": p.ID,
		"files":       len(applied),
	})
	return true
}

// applyBatch は全対象をステージング→バックアップ→リネームの順で適用する。
// 戻り値は適用済みの絶対パス一覧と、適用先→バックアップ先の対応。
// エラー時は途中まで適用した状態で返すため、呼び出し側でロールバックする。
func (v *PatchValidator) applyBatch(p *proposal.Proposal, paths []string, targets map[string]string) ([]string, map[string]string, error) {
	staged := make(map[string]string, len(paths))
	defer func() {
		for _, stagePath := range staged {
			os.Remove(stagePath)
		}
	}()

	// フェーズ1: 同一ディレクトリへの一時ファイル書き込み
	for _, path := range paths {
		target := targets[path]
		dir := filepath.Dir(target)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		stagePath := filepath.Join(dir, fmt.Sprintf(".%s.%s.staging", filepath.Base(target), p.ID))
		if err := os.WriteFile(stagePath, []byte(p.Files[path]), 0644); err != nil {
			return nil, nil, fmt.Errorf("failed to stage %s: %w", path, err)
		}
		staged[path] = stagePath
	}

	// フェーズ2: 既存ファイルのバックアップ
	backups := make(map[string]string, len(paths))
	for _, path := range paths {
		target := targets[path]
		if _, err := os.Stat(target); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, backups, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		backupPath, err := v.backupFile(target, p.ID)
		if err != nil {
			return nil, backups, fmt.Errorf("failed to back up %s: %w", path, err)
		}
		backups[target] = backupPath
	}

	// フェーズ3: リネームによる差し替え
	var applied []string
	for _, path := range paths {
		target := targets[path]
		if err := os.Rename(staged[path], target); err != nil {
			return applied, backups, fmt.Errorf("failed to replace %s: %w", path, err)
		}
		delete(staged, path)
		applied = append(applied, target)
	}
	return applied, backups, nil
}

// backupFile は適用前の内容をバックアップディレクトリへ複製
func (v *PatchValidator) backupFile(target, proposalID string) (string, error) {
	dir := filepath.Join(v.policy.BackupDir, "auto_apply")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	backupPath := filepath.Join(dir, fmt.Sprintf("%s.%s.bak", filepath.Base(target), proposalID))
	if err := copyFile(target, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

// rollback は適用済みファイルを元に戻す。
// バックアップがあるものは復元し、ないもの（新規作成）は削除する。
// 戻せなかった対象のみをエラーとして返す。
func rollback(applied []string, backups map[string]string) map[string]string {
	errs := make(map[string]string)
	for _, target := range applied {
		backup, hadBackup := backups[target]
		if !hadBackup {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				errs[target] = err.Error()
			}
			continue
		}
		if err := copyFile(backup, target); err != nil {
			errs[target] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// isAllowedPath は相対パスが適用対象として許可されるかを判定。
// 拒否リストが許可リストより優先される。
func (v *PatchValidator) isAllowedPath(path string) bool {
	norm := strings.TrimLeft(strings.ReplaceAll(path, "\\", "/"), "/")
	if norm == "" {
		return false
	}
	if strings.Contains(norm, "..") {
		return false
	}
	if strings.HasPrefix(norm, "./") {
		return false
	}

	for _, deny := range v.policy.DenyPaths {
		deny = strings.TrimSpace(deny)
		if deny == "" {
			continue
		}
		if strings.HasPrefix(norm, deny) {
			return false
		}
	}

	for _, allow := range v.policy.AllowedPaths {
		allow = strings.TrimSpace(allow)
		if allow == "" {
			// 空の許可エントリは「全パス許可」を意味する
			return true
		}
		if norm == strings.TrimRight(allow, "/") || strings.HasPrefix(norm, allow) {
			return true
		}
	}
	return false
}

// resolveWithinRoot は相対パスをルート配下の絶対パスへ解決する。
// 既存の祖先ディレクトリのシンボリックリンクも解決した上で、
// 結果がルート配下に収まらない場合はエラー。
func resolveWithinRoot(rootReal, rel string) (string, error) {
	target := filepath.Join(rootReal, filepath.FromSlash(rel))

	// 実在する最も近い祖先まで遡り、未作成部分はサフィックスとして保持
	existing := target
	suffix := ""
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		suffix = filepath.Join(filepath.Base(existing), suffix)
		existing = parent
	}

	real, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", rel, err)
	}
	resolved := filepath.Join(real, suffix)
	if resolved != rootReal && !strings.HasPrefix(resolved, rootReal+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s resolves outside project root", rel)
	}
	return resolved, nil
}

// recordApply は適用記録を提案に添えて永続化
func (v *PatchValidator) recordApply(ctx context.Context, p *proposal.Proposal, rec *proposal.ApplyRecord) {
	p.Apply = rec
	if err := v.repo.SaveMetadata(ctx, p); err != nil {
		logger.ErrorCF("autoapply", "apply.record_failed", map[string]interface{}{
			"proposal_id": p.ID,
			"error":       err.Error(),
		})
	}
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
