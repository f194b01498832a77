package proposal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
)

func newTestProposal(title string) *domain.Proposal {
	return domain.NewProposal(title, "description", map[string]string{
		"pkg/util/helper.go": "package util\n\nfunc Helper() {}\n",
		"main.go":            "package main\n\nfunc main() {}\n",
	})
}

func TestSaveAndLoad(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	p := newTestProposal("Roundtrip")
	p.SetValidation(validation.NewResult(map[string]validation.FileResult{
		"pkg/util/helper.go": {Syntax: &validation.CheckResult{OK: true}, Status: validation.FilePassed},
		"main.go":            {Syntax: &validation.CheckResult{OK: true}, Status: validation.FilePassed},
	}))
	p.MarkProposed()
	p.BranchName = "auto/edit/" + p.ID

	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ID != p.ID {
		t.Errorf("Expected ID %s, got %s", p.ID, loaded.ID)
	}
	if loaded.Title != "Roundtrip" {
		t.Errorf("Expected title 'Roundtrip', got %q", loaded.Title)
	}
	if loaded.Status != domain.StatusProposed {
		t.Errorf("Expected status PROPOSED, got %s", loaded.Status)
	}
	if loaded.BranchName != p.BranchName {
		t.Errorf("Expected branch %q, got %q", p.BranchName, loaded.BranchName)
	}
	if loaded.Validation == nil || !loaded.Validation.OverallOK {
		t.Errorf("Expected validation result restored, got %+v", loaded.Validation)
	}
	if loaded.Files["pkg/util/helper.go"] != p.Files["pkg/util/helper.go"] {
		t.Errorf("Expected snapshot content restored, got %q", loaded.Files["pkg/util/helper.go"])
	}
}

func TestSaveSnapshotLayout(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	p := newTestProposal("Layout")
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// スナップショットはディレクトリ構造を保持する
	snap := filepath.Join(repo.Dir(p.ID), "files", "pkg", "util", "helper.go")
	content, err := os.ReadFile(snap)
	if err != nil {
		t.Fatalf("Expected structured snapshot at %s: %v", snap, err)
	}
	if string(content) != p.Files["pkg/util/helper.go"] {
		t.Errorf("Expected exact snapshot content, got %q", content)
	}

	if _, err := os.Stat(filepath.Join(repo.Dir(p.ID), "proposal.json")); err != nil {
		t.Errorf("Expected proposal.json: %v", err)
	}
}

func TestSaveValidationFile(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	p := newTestProposal("WithValidation")
	p.SetValidation(validation.NewResult(map[string]validation.FileResult{
		"main.go": {Syntax: &validation.CheckResult{OK: false, Error: "boom"}, Status: validation.FileFailed},
	}))

	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo.Dir(p.ID), "validation.json")); err != nil {
		t.Errorf("Expected validation.json: %v", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())

	_, err := repo.Load(context.Background(), "20260101_000000_deadbeef")
	if err == nil {
		t.Error("Expected error for missing proposal")
	}
}

func TestSaveMetadataPreservesSnapshots(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	p := newTestProposal("MetadataOnly")
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 承認後のメタデータ更新
	p.Status = domain.StatusProposed
	if !p.MarkApproved(time.Now()) {
		t.Fatal("Expected approval to succeed")
	}
	if err := repo.SaveMetadata(ctx, p); err != nil {
		t.Fatalf("SaveMetadata failed: %v", err)
	}

	loaded, err := repo.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != domain.StatusApproved {
		t.Errorf("Expected status APPROVED, got %s", loaded.Status)
	}
	if loaded.ApprovedAt == nil {
		t.Error("Expected ApprovedAt to be persisted")
	}
	if loaded.Files["main.go"] == "" {
		t.Error("Expected snapshots to survive metadata update")
	}
}

func TestList(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i, title := range []string{"first", "second", "third"} {
		p := domain.NewProposal(title, "d", map[string]string{"a.go": "package a\n"})
		// ID降順の検証用に作成時刻をずらした形のIDへ差し替え
		p.ID = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC).Format("20060102_150405") + "_0000000" + string(rune('a'+i))
		if title == "second" {
			p.Status = domain.StatusProposed
		} else {
			p.Status = domain.StatusFailed
		}
		if err := repo.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, p.ID)
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 proposals, got %d", len(all))
	}
	// 新しい順
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Errorf("Expected newest-first order, got %v %v %v", all[0].ID, all[1].ID, all[2].ID)
	}
	// 一覧はスナップショットを読み込まない
	if all[0].Files != nil {
		t.Error("Expected nil Files in list results")
	}

	proposed, err := repo.List(ctx, domain.StatusProposed, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(proposed) != 1 || proposed[0].Title != "second" {
		t.Errorf("Expected only 'second' with status filter, got %+v", proposed)
	}

	limited, err := repo.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != ids[2] {
		t.Errorf("Expected 2 newest proposals, got %d", len(limited))
	}
}

func TestListSkipsBrokenEntries(t *testing.T) {
	base := t.TempDir()
	repo := NewJSONProposalRepository(base)
	ctx := context.Background()

	p := newTestProposal("valid")
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 壊れたエントリを混入
	broken := filepath.Join(base, "20250101_000000_broken00")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, "proposal.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := repo.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != p.ID {
		t.Errorf("Expected broken entry skipped, got %d entries", len(all))
	}
}

func TestExists(t *testing.T) {
	repo := NewJSONProposalRepository(t.TempDir())
	ctx := context.Background()

	p := newTestProposal("exists")
	if repo.Exists(ctx, p.ID) {
		t.Error("Expected Exists=false before save")
	}
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !repo.Exists(ctx, p.ID) {
		t.Error("Expected Exists=true after save")
	}
}
