// Package health provides startup checks for the runtime environment.
package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/shuseikawaguchi/kaizen/pkg/logger"
)

// CheckFunc probes one aspect of the environment. It returns whether the
// check passed and a short human-readable detail message.
type CheckFunc func() (bool, string)

// Check is a named startup check.
type Check struct {
	Name string
	Run  CheckFunc
}

// RunAll executes every check, logs each result, and reports whether all passed.
// Failures are logged but never abort the caller.
func RunAll(checks []Check) bool {
	allOK := true
	for _, c := range checks {
		ok, msg := c.Run()
		fields := map[string]interface{}{
			"check":  c.Name,
			"ok":     ok,
			"detail": msg,
		}
		if ok {
			logger.InfoCF("health", "check.passed", fields)
		} else {
			logger.WarnCF("health", "check.failed", fields)
			allOK = false
		}
	}
	return allOK
}

func OllamaCheck(baseURL string, timeout time.Duration) CheckFunc {
	client := &http.Client{Timeout: timeout}
	return func() (bool, string) {
		resp, err := client.Get(baseURL)
		if err != nil {
			return false, fmt.Sprintf("unreachable: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, fmt.Sprintf("status %d", resp.StatusCode)
		}
		return true, "ok"
	}
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaModelCheck verifies that the configured model has been pulled locally.
func OllamaModelCheck(baseURL string, timeout time.Duration, model string) CheckFunc {
	client := &http.Client{Timeout: timeout}
	tagsURL := strings.TrimSuffix(baseURL, "/") + "/api/tags"

	return func() (bool, string) {
		resp, err := client.Get(tagsURL)
		if err != nil {
			return false, fmt.Sprintf("unreachable: %v", err)
		}
		defer resp.Body.Close()

		var tags ollamaTagsResponse
		if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
			return false, fmt.Sprintf("decode error: %v", err)
		}

		for _, m := range tags.Models {
			if m.Name == model || strings.TrimSuffix(m.Name, ":latest") == model {
				return true, "model available"
			}
		}
		return false, fmt.Sprintf("model %s not pulled (%d models available)", model, len(tags.Models))
	}
}

// DirWritable verifies that dir exists (creating it if needed) and accepts writes.
func DirWritable(dir string) CheckFunc {
	return func() (bool, string) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Sprintf("mkdir: %v", err)
		}
		probe := filepath.Join(dir, ".health_probe")
		if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
			return false, fmt.Sprintf("write: %v", err)
		}
		os.Remove(probe)
		return true, "writable"
	}
}

// GitAvailable verifies that the git binary is on PATH.
func GitAvailable() CheckFunc {
	return func() (bool, string) {
		path, err := exec.LookPath("git")
		if err != nil {
			return false, "git not found in PATH"
		}
		return true, path
	}
}
