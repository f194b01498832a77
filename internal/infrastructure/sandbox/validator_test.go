package sandbox

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
)

func newTestValidator(lintCommand string) *Validator {
	return NewValidator(lintCommand, 10*time.Second)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestValidatePass(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"hello.go": "package hello\n\nfunc Hello() int {\n\treturn 1\n}\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if !res.OverallOK {
		t.Errorf("Expected overall_ok=true, got false: %+v", res)
	}
	fr := res.Files["hello.go"]
	if fr.Status != validation.FilePassed {
		t.Errorf("Expected status PASSED, got %s", fr.Status)
	}
	if fr.Syntax == nil || !fr.Syntax.OK {
		t.Errorf("Expected syntax ok, got %+v", fr.Syntax)
	}
	if fr.Imports == nil || !fr.Imports.OK {
		t.Errorf("Expected imports ok, got %+v", fr.Imports)
	}
	if fr.Linting == nil || !fr.Linting.Skipped {
		t.Errorf("Expected linting skipped with empty command, got %+v", fr.Linting)
	}
}

func TestValidateSyntaxError(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"broken.go": "func broken(:",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if res.OverallOK {
		t.Error("Expected overall_ok=false for syntax error")
	}
	fr := res.Files["broken.go"]
	if fr.Status != validation.FileFailed {
		t.Errorf("Expected status FAILED, got %s", fr.Status)
	}
	if fr.Syntax == nil || fr.Syntax.OK {
		t.Fatalf("Expected syntax failure, got %+v", fr.Syntax)
	}
	if fr.Syntax.Error == "" {
		t.Error("Expected non-empty syntax error message")
	}
	// 前段失敗により後段は未実行
	if fr.Imports != nil {
		t.Errorf("Expected imports check to be skipped, got %+v", fr.Imports)
	}
	if fr.Linting != nil {
		t.Errorf("Expected lint check to be skipped, got %+v", fr.Linting)
	}
}

func TestValidateImportError(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"bad.go": "package bad\n\nimport \"no/such/module/xyz\"\n\nvar _ = xyz.Nothing\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if res.OverallOK {
		t.Error("Expected overall_ok=false for import error")
	}
	fr := res.Files["bad.go"]
	if fr.Syntax == nil || !fr.Syntax.OK {
		t.Errorf("Expected syntax ok, got %+v", fr.Syntax)
	}
	if fr.Imports == nil || fr.Imports.OK {
		t.Fatalf("Expected imports failure, got %+v", fr.Imports)
	}
	if fr.Imports.Error == "" {
		t.Error("Expected non-empty import error message")
	}
	if fr.Status != validation.FileFailed {
		t.Errorf("Expected status FAILED, got %s", fr.Status)
	}
}

func TestValidateUndefinedReference(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"undef.go": "package undef\n\nfunc F() int {\n\treturn missingValue\n}\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	fr := res.Files["undef.go"]
	if fr.Imports == nil || fr.Imports.OK {
		t.Fatalf("Expected imports failure for undefined reference, got %+v", fr.Imports)
	}
}

func TestValidateSamePackageGrouping(t *testing.T) {
	v := newTestValidator("")

	// 同一パッケージの2ファイル。片方がもう片方のシンボルを参照する
	res, err := v.Validate(context.Background(), map[string]string{
		"calc/add.go":    "package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n",
		"calc/double.go": "package calc\n\nfunc Double(n int) int {\n\treturn Add(n, n)\n}\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if !res.OverallOK {
		t.Errorf("Expected overall_ok=true for same-package files, got %+v", res)
	}
	if res.Summary.Passed != 2 {
		t.Errorf("Expected 2 passed files, got %d", res.Summary.Passed)
	}
}

func TestValidateMixedResults(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"good.go": "package good\n\nfunc Good() {}\n",
		"bad.go":  "func broken(:",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if res.OverallOK {
		t.Error("Expected overall_ok=false when any file fails")
	}
	if res.Summary.Total != 2 || res.Summary.Passed != 1 || res.Summary.Failed != 1 {
		t.Errorf("Expected summary 2/1/1, got %+v", res.Summary)
	}
	if res.Files["good.go"].Status != validation.FilePassed {
		t.Errorf("Expected good.go PASSED, got %s", res.Files["good.go"].Status)
	}
}

func TestValidatePathEscape(t *testing.T) {
	v := newTestValidator("")

	res, err := v.Validate(context.Background(), map[string]string{
		"../escape.go": "package escape\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if res.OverallOK {
		t.Error("Expected overall_ok=false for escaping path")
	}
	fr := res.Files["../escape.go"]
	if fr.Syntax == nil || fr.Syntax.OK {
		t.Fatalf("Expected rejection, got %+v", fr.Syntax)
	}
	if fr.Syntax.Error != "path escapes sandbox root" {
		t.Errorf("Expected escape error message, got %q", fr.Syntax.Error)
	}
}

func TestValidateLintAdvisory(t *testing.T) {
	requireSh(t)

	// Lint失敗はファイルのステータスを変えない
	v := newTestValidator("false")

	res, err := v.Validate(context.Background(), map[string]string{
		"ok.go": "package ok\n\nfunc OK() {}\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	fr := res.Files["ok.go"]
	if fr.Linting == nil || fr.Linting.OK {
		t.Fatalf("Expected lint failure to be recorded, got %+v", fr.Linting)
	}
	if fr.Status != validation.FilePassed {
		t.Errorf("Expected status PASSED despite lint failure, got %s", fr.Status)
	}
	if !res.OverallOK {
		t.Error("Expected overall_ok=true despite lint failure")
	}
}

func TestValidateLintSkippedWhenMissing(t *testing.T) {
	requireSh(t)

	v := newTestValidator("kaizen-no-such-linter-xyz")

	res, err := v.Validate(context.Background(), map[string]string{
		"ok.go": "package ok\n\nfunc OK() {}\n",
	})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	fr := res.Files["ok.go"]
	if fr.Linting == nil || !fr.Linting.Skipped || !fr.Linting.OK {
		t.Errorf("Expected lint skipped for missing linter, got %+v", fr.Linting)
	}
	if fr.Status != validation.FilePassed {
		t.Errorf("Expected status PASSED, got %s", fr.Status)
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := newTestValidator("")

	files := map[string]string{
		"a.go": "package a\n\nfunc A() {}\n",
		"b.go": "func broken(:",
	}

	first, err := v.Validate(context.Background(), files)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	second, err := v.Validate(context.Background(), files)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if first.OverallOK != second.OverallOK || first.Summary != second.Summary {
		t.Errorf("Expected identical results, got %+v vs %+v", first.Summary, second.Summary)
	}
	for path := range files {
		if first.Files[path].Status != second.Files[path].Status {
			t.Errorf("Expected same status for %s across runs", path)
		}
	}
}
