package proposal

import (
	"sort"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
)

// Status は提案のライフサイクル状態
type Status string

const (
	StatusDraft     Status = "DRAFT"     // 作成直後、未検証
	StatusValidated Status = "VALIDATED" // サンドボックス検証通過
	StatusFailed    Status = "FAILED"    // サンドボックス検証失敗
	StatusProposed  Status = "PROPOSED"  // 記録済み、承認待ち
	StatusApproved  Status = "APPROVED"  // 承認済み（終端状態）
	StatusMerged    Status = "MERGED"    // 予約済み。現行フローでは到達しない
)

// Proposal は自動生成されたパッチ提案の集約ルート
type Proposal struct {
	ID          string
	Title       string
	Description string
	Files       map[string]string // 相対パス → 完全なファイル内容
	FileList    []string          // ソート済みパス一覧（スナップショット復元用）
	BranchName  string
	Validation  *validation.Result
	GitResult   *GitResult
	Status      Status
	CreatedAt   time.Time
	ApprovedAt  *time.Time
	Apply       *ApplyRecord
}

// NewProposal は新しいProposalをDRAFT状態で作成
func NewProposal(title, description string, files map[string]string) *Proposal {
	fileList := make([]string, 0, len(files))
	for path := range files {
		fileList = append(fileList, path)
	}
	sort.Strings(fileList)

	return &Proposal{
		ID:          NewProposalID(),
		Title:       title,
		Description: description,
		Files:       files,
		FileList:    fileList,
		Status:      StatusDraft,
		CreatedAt:   time.Now().UTC(),
	}
}

// SetValidation は検証結果を記録し、状態をVALIDATED/FAILEDへ遷移
func (p *Proposal) SetValidation(res validation.Result) {
	p.Validation = &res
	if res.OverallOK {
		p.Status = StatusValidated
	} else {
		p.Status = StatusFailed
	}
}

// CanPropose は記録（propose）可能な状態かを判定。
// 検証失敗した提案も履歴として記録されるため、FAILEDも対象。
func (p *Proposal) CanPropose() bool {
	return p.Status == StatusValidated || p.Status == StatusFailed
}

// MarkProposed は検証通過済みの提案をPROPOSEDへ遷移。
// FAILEDの提案は記録されてもFAILEDのまま。
func (p *Proposal) MarkProposed() {
	if p.Status == StatusValidated {
		p.Status = StatusProposed
	}
}

// MarkApproved は提案を承認。PROPOSEDまたはFAILEDからのみ遷移可能で、
// それ以外（二重承認を含む）はfalseを返す。
func (p *Proposal) MarkApproved(at time.Time) bool {
	if p.Status != StatusProposed && p.Status != StatusFailed {
		return false
	}
	p.Status = StatusApproved
	utc := at.UTC()
	p.ApprovedAt = &utc
	return true
}

// BranchNameFor は提案IDからブランチ名を導出
func (p *Proposal) BranchNameFor(prefix string) string {
	return prefix + "/" + p.ID
}
