package proposal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// JSONProposalRepository はJSONファイルベースの提案リポジトリ。
// レイアウト: {baseDir}/{id}/proposal.json, validation.json, files/{相対パス}
type JSONProposalRepository struct {
	baseDir string
}

// NewJSONProposalRepository は新しいJSONProposalRepositoryを作成
func NewJSONProposalRepository(baseDir string) *JSONProposalRepository {
	return &JSONProposalRepository{baseDir: baseDir}
}

// proposalDTO は永続化用のデータ転送オブジェクト
type proposalDTO struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Files       []string              `json:"files"`
	BranchName  string                `json:"branch_name,omitempty"`
	Status      string                `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	ApprovedAt  *time.Time            `json:"approved_at,omitempty"`
	Validation  *validation.Result    `json:"validation,omitempty"`
	GitResult   *proposal.GitResult   `json:"git_result,omitempty"`
	Apply       *proposal.ApplyRecord `json:"apply,omitempty"`
}

// Save は提案のメタデータと全ファイルスナップショットを保存
func (r *JSONProposalRepository) Save(ctx context.Context, p *proposal.Proposal) error {
	dir := r.Dir(p.ID)
	if err := os.MkdirAll(filepath.Join(dir, "files"), 0755); err != nil {
		return fmt.Errorf("failed to create proposal directory: %w", err)
	}

	if err := r.writeMetadata(p); err != nil {
		return err
	}

	if p.Validation != nil {
		data, err := json.MarshalIndent(p.Validation, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal validation result: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "validation.json"), data, 0644); err != nil {
			return fmt.Errorf("failed to write validation result: %w", err)
		}
	}

	// ファイル内容をディレクトリ構造を保ってスナップショット
	for _, rel := range p.FileList {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			logger.WarnCF("persistence", "snapshot.skipped", map[string]interface{}{
				"proposal_id": p.ID,
				"path":        rel,
			})
			continue
		}
		abs := filepath.Join(dir, "files", filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		if err := os.WriteFile(abs, []byte(p.Files[rel]), 0644); err != nil {
			return fmt.Errorf("failed to write snapshot %s: %w", rel, err)
		}
	}

	return nil
}

// SaveMetadata はproposal.jsonのみを更新（スナップショットは保持）
func (r *JSONProposalRepository) SaveMetadata(ctx context.Context, p *proposal.Proposal) error {
	if err := os.MkdirAll(r.Dir(p.ID), 0755); err != nil {
		return fmt.Errorf("failed to create proposal directory: %w", err)
	}
	return r.writeMetadata(p)
}

func (r *JSONProposalRepository) writeMetadata(p *proposal.Proposal) error {
	data, err := json.MarshalIndent(toDTO(p), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %w", err)
	}
	path := filepath.Join(r.Dir(p.ID), "proposal.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write proposal: %w", err)
	}
	return nil
}

// Load は提案をスナップショットのファイル内容込みで復元
func (r *JSONProposalRepository) Load(ctx context.Context, id string) (*proposal.Proposal, error) {
	path := filepath.Join(r.Dir(id), "proposal.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("proposal not found: %s", id)
		}
		return nil, fmt.Errorf("failed to read proposal: %w", err)
	}

	var dto proposalDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proposal: %w", err)
	}

	p := fromDTO(&dto)

	// スナップショットからファイル内容を復元（欠損は許容）
	p.Files = make(map[string]string, len(dto.Files))
	for _, rel := range dto.Files {
		abs := filepath.Join(r.Dir(id), "files", filepath.FromSlash(rel))
		content, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		p.Files[rel] = string(content)
	}

	return p, nil
}

// List は提案メタデータをID降順（新しい順）で返す。
// statusが空でない場合はその状態のみに絞り込む。
// limitが正の場合は先頭limit件に切り詰める。返る要素のFilesはnil。
func (r *JSONProposalRepository) List(ctx context.Context, status proposal.Status, limit int) ([]*proposal.Proposal, error) {
	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read proposals directory: %w", err)
	}

	var result []*proposal.Proposal
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.baseDir, entry.Name(), "proposal.json"))
		if err != nil {
			continue
		}
		var dto proposalDTO
		if err := json.Unmarshal(data, &dto); err != nil {
			logger.WarnCF("persistence", "proposal.unreadable", map[string]interface{}{
				"dir": entry.Name(),
			})
			continue
		}
		if status != "" && proposal.Status(dto.Status) != status {
			continue
		}
		result = append(result, fromDTO(&dto))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Exists は提案の存在を確認
func (r *JSONProposalRepository) Exists(ctx context.Context, id string) bool {
	_, err := os.Stat(filepath.Join(r.Dir(id), "proposal.json"))
	return err == nil
}

// Dir は提案の保存ディレクトリを返す
func (r *JSONProposalRepository) Dir(id string) string {
	return filepath.Join(r.baseDir, id)
}

func toDTO(p *proposal.Proposal) *proposalDTO {
	return &proposalDTO{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Files:       p.FileList,
		BranchName:  p.BranchName,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		ApprovedAt:  p.ApprovedAt,
		Validation:  p.Validation,
		GitResult:   p.GitResult,
		Apply:       p.Apply,
	}
}

func fromDTO(dto *proposalDTO) *proposal.Proposal {
	return &proposal.Proposal{
		ID:          dto.ID,
		Title:       dto.Title,
		Description: dto.Description,
		FileList:    dto.Files,
		BranchName:  dto.BranchName,
		Status:      proposal.Status(dto.Status),
		CreatedAt:   dto.CreatedAt,
		ApprovedAt:  dto.ApprovedAt,
		Validation:  dto.Validation,
		GitResult:   dto.GitResult,
		Apply:       dto.Apply,
	}
}
