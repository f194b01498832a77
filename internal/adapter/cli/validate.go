package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate Go source files in the sandbox",
	Long: `Copies the given files into a throwaway sandbox and runs the same syntax,
import and lint checks the worker applies to LLM patches. Nothing is persisted
and the live tree is never touched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make(map[string]string, len(args))
		for _, arg := range args {
			data, err := os.ReadFile(arg)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", arg, err)
			}
			files[sandboxKey(arg)] = string(data)
		}

		res, err := buildSandbox().Validate(cmd.Context(), files)
		if err != nil {
			return err
		}

		for _, path := range sortedResultPaths(res) {
			fr := res.Files[path]
			if fr.Status == validation.FilePassed {
				pterm.Success.Printfln("%s", path)
				continue
			}
			pterm.Error.Printfln("%s", path)
			if fr.Syntax != nil && !fr.Syntax.OK {
				fmt.Printf("  syntax:  %s\n", fr.Syntax.Error)
			}
			if fr.Imports != nil && !fr.Imports.OK {
				fmt.Printf("  imports: %s\n", fr.Imports.Error)
			}
		}
		for _, path := range sortedResultPaths(res) {
			fr := res.Files[path]
			if fr.Linting != nil && !fr.Linting.OK && !fr.Linting.Skipped {
				pterm.Warning.Printfln("%s lint: %s", path, fr.Linting.Error)
				if fr.Linting.Output != "" {
					fmt.Println(fr.Linting.Output)
				}
			}
		}

		if !res.OverallOK {
			return fmt.Errorf("validation failed: %d of %d files", res.Summary.Failed, res.Summary.Total)
		}
		pterm.Success.Printfln("%d file(s) passed", res.Summary.Passed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// sandboxKey はユーザー指定パスをサンドボックス内の相対キーへ写す
func sandboxKey(arg string) string {
	clean := filepath.Clean(arg)
	if filepath.IsLocal(clean) {
		return filepath.ToSlash(clean)
	}
	return filepath.Base(clean)
}

func sortedResultPaths(res validation.Result) []string {
	paths := make([]string, 0, len(res.Files))
	for path := range res.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
