package cli

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/shuseikawaguchi/kaizen/pkg/health"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment the pipeline depends on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// healthChecks はワーカー起動時とdoctorで共用するチェック一式
func healthChecks() []health.Check {
	timeout := time.Duration(cfg.Ollama.TimeoutSeconds) * time.Second
	return []health.Check{
		{Name: "data_dir", Run: health.DirWritable(cfg.DataPath())},
		{Name: "git", Run: health.GitAvailable()},
		{Name: "ollama", Run: health.OllamaCheck(cfg.Ollama.BaseURL, timeout)},
		{Name: "model", Run: health.OllamaModelCheck(cfg.Ollama.BaseURL, timeout, cfg.Ollama.Model)},
	}
}

func runDoctor() error {
	failed := 0
	for _, c := range healthChecks() {
		ok, msg := c.Run()
		if ok {
			pterm.Success.Printfln("%-10s %s", c.Name, msg)
		} else {
			pterm.Error.Printfln("%-10s %s", c.Name, msg)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}
