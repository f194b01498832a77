package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/chzyer/readline"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/shuseikawaguchi/kaizen/internal/domain/proposal"
	"github.com/shuseikawaguchi/kaizen/internal/domain/validation"
)

var (
	listStatus string
	listLimit  int
)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Inspect and approve patch proposals",
}

var proposalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded proposals, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		proposals, err := buildPipeline().ListProposals(cmd.Context(), proposal.Status(listStatus), listLimit)
		if err != nil {
			return err
		}
		if len(proposals) == 0 {
			pterm.Info.Println("no proposals recorded")
			return nil
		}

		data := pterm.TableData{{"ID", "STATUS", "FILES", "TITLE"}}
		for _, p := range proposals {
			data = append(data, []string{p.ID, statusLabel(p.Status), strconv.Itoa(len(p.FileList)), p.Title})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var proposalsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one proposal with its file snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline().GetProposal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printProposal(p)
		return nil
	},
}

var proposalsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a proposed patch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !buildPipeline().ApproveProposal(cmd.Context(), args[0]) {
			return fmt.Errorf("proposal %s could not be approved", args[0])
		}
		pterm.Success.Printfln("approved %s", args[0])
		return nil
	},
}

var proposalsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk through pending proposals interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd)
	},
}

func init() {
	proposalsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (DRAFT/VALIDATED/FAILED/PROPOSED/APPROVED)")
	proposalsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of proposals to show")

	proposalsCmd.AddCommand(proposalsListCmd)
	proposalsCmd.AddCommand(proposalsShowCmd)
	proposalsCmd.AddCommand(proposalsApproveCmd)
	proposalsCmd.AddCommand(proposalsReviewCmd)
	rootCmd.AddCommand(proposalsCmd)
}

func runReview(cmd *cobra.Command) error {
	pipeline := buildPipeline()
	proposals, err := pipeline.ListProposals(cmd.Context(), proposal.StatusProposed, 0)
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		pterm.Info.Println("no proposals waiting for review")
		return nil
	}

	rl, err := readline.New("> ")
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	defer rl.Close()

	for _, p := range proposals {
		rl.SetPrompt(fmt.Sprintf("approve %s (%s)? [y/N/q] ", p.ID, p.Title))
		line, err := rl.Readline()
		if err != nil { // Ctrl-C / Ctrl-D
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			if pipeline.ApproveProposal(cmd.Context(), p.ID) {
				pterm.Success.Printfln("approved %s", p.ID)
			} else {
				pterm.Error.Printfln("could not approve %s", p.ID)
			}
		case "q", "quit":
			return nil
		default:
			pterm.Info.Printfln("skipped %s", p.ID)
		}
	}
	return nil
}

func printProposal(p *proposal.Proposal) {
	fmt.Printf("ID:          %s\n", p.ID)
	fmt.Printf("Title:       %s\n", p.Title)
	fmt.Printf("Status:      %s\n", statusLabel(p.Status))
	fmt.Printf("Created:     %s\n", p.CreatedAt.Format(time.RFC3339))
	if p.ApprovedAt != nil {
		fmt.Printf("Approved:    %s\n", p.ApprovedAt.Format(time.RFC3339))
	}
	if p.BranchName != "" {
		fmt.Printf("Branch:      %s\n", p.BranchName)
	}
	if p.Description != "" {
		fmt.Printf("Description: %s\n", p.Description)
	}
	if p.Validation != nil {
		fmt.Printf("Validation:  %d/%d passed\n", p.Validation.Summary.Passed, p.Validation.Summary.Total)
	}
	if p.GitResult != nil {
		fmt.Printf("Git:         %s\n", p.GitResult.Status)
	}
	if p.Apply != nil {
		switch {
		case p.Apply.Applied:
			fmt.Printf("Applied:     %s\n", p.Apply.AppliedAt.Format(time.RFC3339))
		case p.Apply.RolledBack:
			fmt.Println("Applied:     rolled back")
		default:
			fmt.Println("Applied:     failed")
		}
	}

	for _, path := range p.FileList {
		label := ""
		if p.Validation != nil {
			if fr, ok := p.Validation.Files[path]; ok {
				label = " (" + string(fr.Status) + ")"
			}
		}
		fmt.Printf("\n--- %s%s ---\n", path, label)

		content, ok := p.Files[path]
		if !ok {
			pterm.Warning.Println("snapshot missing")
			continue
		}
		if err := quick.Highlight(os.Stdout, content, lexerFor(path), "terminal256", "monokai"); err != nil {
			fmt.Print(content)
		}
		if !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
	}

	if p.Validation != nil && !p.Validation.OverallOK {
		fmt.Println()
		printValidation(p.Validation, p.FileList)
	}
}

func printValidation(res *validation.Result, order []string) {
	for _, path := range order {
		fr, ok := res.Files[path]
		if !ok || fr.Status == validation.FilePassed {
			continue
		}
		pterm.Error.Printfln("%s:", path)
		if fr.Syntax != nil && !fr.Syntax.OK {
			fmt.Printf("  syntax:  %s\n", fr.Syntax.Error)
		}
		if fr.Imports != nil && !fr.Imports.OK {
			fmt.Printf("  imports: %s\n", fr.Imports.Error)
		}
	}
}

func statusLabel(s proposal.Status) string {
	switch s {
	case proposal.StatusApproved:
		return pterm.FgGreen.Sprint(string(s))
	case proposal.StatusProposed:
		return pterm.FgYellow.Sprint(string(s))
	case proposal.StatusFailed:
		return pterm.FgRed.Sprint(string(s))
	default:
		return string(s)
	}
}

func lexerFor(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "go"
	}
	return ext
}
