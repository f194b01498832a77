package validation

import (
	"strings"
	"testing"
)

func TestNewResultSummary(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]FileResult
		wantPassed int
		wantFailed int
		wantOK     bool
	}{
		{
			"All passed",
			map[string]FileResult{
				"a.go": {Syntax: &CheckResult{OK: true}, Status: FilePassed},
				"b.go": {Syntax: &CheckResult{OK: true}, Status: FilePassed},
			},
			2, 0, true,
		},
		{
			"One failed",
			map[string]FileResult{
				"a.go": {Syntax: &CheckResult{OK: true}, Status: FilePassed},
				"b.go": {Syntax: &CheckResult{OK: false, Error: "boom"}, Status: FileFailed},
			},
			1, 1, false,
		},
		{
			"Empty",
			map[string]FileResult{},
			0, 0, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewResult(tt.files)
			if res.Summary.Total != len(tt.files) {
				t.Errorf("Expected total %d, got %d", len(tt.files), res.Summary.Total)
			}
			if res.Summary.Passed != tt.wantPassed {
				t.Errorf("Expected passed %d, got %d", tt.wantPassed, res.Summary.Passed)
			}
			if res.Summary.Failed != tt.wantFailed {
				t.Errorf("Expected failed %d, got %d", tt.wantFailed, res.Summary.Failed)
			}
			if res.OverallOK != tt.wantOK {
				t.Errorf("Expected overall_ok %v, got %v", tt.wantOK, res.OverallOK)
			}
		})
	}
}

func TestFailedFilesSorted(t *testing.T) {
	res := NewResult(map[string]FileResult{
		"z.go": {Status: FileFailed},
		"a.go": {Status: FileFailed},
		"m.go": {Status: FilePassed},
	})

	failed := res.FailedFiles()
	if len(failed) != 2 {
		t.Fatalf("Expected 2 failed files, got %d", len(failed))
	}
	if failed[0] != "a.go" || failed[1] != "z.go" {
		t.Errorf("Expected sorted [a.go z.go], got %v", failed)
	}
}

func TestFailureSummary(t *testing.T) {
	res := NewResult(map[string]FileResult{
		"bad.go": {
			Syntax: &CheckResult{OK: false, Error: "expected ')', found ':'"},
			Status: FileFailed,
		},
		"imports.go": {
			Syntax:  &CheckResult{OK: true},
			Imports: &CheckResult{OK: false, Error: "undefined: nope"},
			Status:  FileFailed,
		},
	})

	summary := res.FailureSummary()
	if !strings.Contains(summary, "bad.go: syntax:") {
		t.Errorf("Expected syntax failure in summary, got %q", summary)
	}
	if !strings.Contains(summary, "imports.go: imports: undefined: nope") {
		t.Errorf("Expected imports failure in summary, got %q", summary)
	}
}
