package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// SandboxValidator はパッチ候補の静的検証を担当
type SandboxValidator interface {
	Validate(ctx context.Context, files map[string]string) (validation.Result, error)
}

// GitRecorder は提案のブランチ記録を担当
type GitRecorder interface {
	CreateBranchAndCommit(ctx context.Context, files map[string]string, branch, message string) proposal.GitResult
}

// ProposalRepository は提案の永続化を担当
type ProposalRepository interface {
	Save(ctx context.Context, p *proposal.Proposal) error
	SaveMetadata(ctx context.Context, p *proposal.Proposal) error
	Load(ctx context.Context, id string) (*proposal.Proposal, error)
	List(ctx context.Context, status proposal.Status, limit int) ([]*proposal.Proposal, error)
}

// PostcheckRunner は自動適用後の事後チェックを担当
type PostcheckRunner interface {
	Run(ctx context.Context) proposal.PostcheckResult
}

// Policy は提案の記録・自動適用の振る舞いを決める設定
type Policy struct {
	AutoApply             bool
	AutoApprove           bool
	RequireValidation     bool
	MaxFiles              int
	AllowedPaths          []string
	DenyPaths             []string
	BranchPrefix          string
	CommitMessageTemplate string
	PostcheckEnabled      bool
	ProjectRoot           string
	BackupDir             string
}

// PatchValidator は提案の作成から検証・記録・自動適用までを統括
type PatchValidator struct {
	sandbox   SandboxValidator
	git       GitRecorder
	repo      ProposalRepository
	postcheck PostcheckRunner
	policy    Policy
}

// NewPatchValidator は新しいPatchValidatorを作成
func NewPatchValidator(
	sandbox SandboxValidator,
	git GitRecorder,
	repo ProposalRepository,
	postcheck PostcheckRunner,
	policy Policy,
) *PatchValidator {
	return &PatchValidator{
		sandbox:   sandbox,
		git:       git,
		repo:      repo,
		postcheck: postcheck,
		policy:    policy,
	}
}

// CreateAndValidate はパッチ候補から提案を作成してサンドボックス検証する。
// autoProposeがtrueの場合、検証後にgit記録・永続化・ポリシーに応じた
// 自動適用/自動承認まで進める。falseの場合は未永続の提案を返す。
func (v *PatchValidator) CreateAndValidate(ctx context.Context, title, description string, files map[string]string, autoPropose bool) (*proposal.Proposal, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("proposal has no files")
	}

	p := proposal.NewProposal(title, description, files)

	// 1. サンドボックス検証
	res, err := v.sandbox.Validate(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("sandbox validation failed: %w", err)
	}
	p.SetValidation(res)
	logger.InfoCF("orchestrator", "proposal.validated", map[string]interface{}{
		"proposal_id": p.ID,
		"status":      string(p.Status),
		"files":       len(files),
	})

	if !autoPropose {
		return p, nil
	}

	// 2. 検証失敗でも履歴として記録する（git記録はスキップ）
	if p.Status == proposal.StatusFailed {
		if err := v.Propose(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	// 3. git記録（失敗しても提案の記録は続行）
	p.BranchName = p.BranchNameFor(v.policy.BranchPrefix)
	message := fmt.Sprintf("%s\n\nPatch ID: %s\nTitle: %s", v.policy.CommitMessageTemplate, p.ID, p.Title)
	gitRes := v.git.CreateBranchAndCommit(ctx, files, p.BranchName, message)
	p.GitResult = &gitRes
	if gitRes.Status == proposal.GitStatusError {
		logger.WarnCF("orchestrator", "git.step_incomplete", map[string]interface{}{
			"proposal_id": p.ID,
			"error":       gitRes.Error,
		})
	}

	// 4. 永続化
	if err := v.Propose(ctx, p); err != nil {
		return nil, err
	}

	// 5. ポリシーに応じて自動適用または自動承認
	switch {
	case v.policy.AutoApply && (!v.policy.RequireValidation || p.Status == proposal.StatusValidated || p.Status == proposal.StatusProposed):
		v.autoApplyIfAllowed(ctx, p)
	case v.policy.AutoApprove && p.Status == proposal.StatusProposed:
		if p.MarkApproved(time.Now()) {
			if err := v.repo.SaveMetadata(ctx, p); err != nil {
				logger.ErrorCF("approval", "proposal.save_failed", map[string]interface{}{
					"proposal_id": p.ID,
					"error":       err.Error(),
				})
			} else {
				logger.InfoCF("approval", "proposal.approved", map[string]interface{}{
					"proposal_id": p.ID,
				})
			}
		}
	}

	return p, nil
}

// Propose は提案をPROPOSEDへ遷移させて永続化。
// 検証失敗した提案はFAILEDのまま記録される。
func (v *PatchValidator) Propose(ctx context.Context, p *proposal.Proposal) error {
	if !p.CanPropose() {
		return fmt.Errorf("proposal %s cannot be proposed from status %s", p.ID, p.Status)
	}
	p.MarkProposed()
	if err := v.repo.Save(ctx, p); err != nil {
		return fmt.Errorf("failed to persist proposal: %w", err)
	}
	logger.InfoCF("orchestrator", "proposal.recorded", map[string]interface{}{
		"proposal_id": p.ID,
		"status":      string(p.Status),
	})
	return nil
}

// ApproveProposal は提案を承認済みにする。承認できた場合のみtrue。
// 対象が存在しない、または承認可能な状態にない場合はfalse。
func (v *PatchValidator) ApproveProposal(ctx context.Context, id string) bool {
	p, err := v.repo.Load(ctx, id)
	if err != nil {
		logger.WarnCF("approval", "proposal.not_found", map[string]interface{}{
			"proposal_id": id,
		})
		return false
	}

	if !p.MarkApproved(time.Now()) {
		logger.InfoCF("approval", "proposal.not_approvable", map[string]interface{}{
			"proposal_id": id,
			"status":      string(p.Status),
		})
		return false
	}

	if err := v.repo.SaveMetadata(ctx, p); err != nil {
		logger.ErrorCF("approval", "proposal.save_failed", map[string]interface{}{
			"proposal_id": id,
			"error":       err.Error(),
		})
		return false
	}

	logger.InfoCF("approval", "proposal.approved", map[string]interface{}{
		"proposal_id": id,
	})
	return true
}

// ListProposals は提案の一覧を新しい順で返す
func (v *PatchValidator) ListProposals(ctx context.Context, status proposal.Status, limit int) ([]*proposal.Proposal, error) {
	return v.repo.List(ctx, status, limit)
}

// GetProposal は提案をスナップショット込みで取得
func (v *PatchValidator) GetProposal(ctx context.Context, id string) (*proposal.Proposal, error) {
	return v.repo.Load(ctx, id)
}
