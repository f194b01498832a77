package worker

import (
	"fmt"
	"strings"
)

const patchSystemPrompt = `You are a careful Go engineer improving a codebase one small step at a time.
You respond with a single JSON object and nothing else: no prose, no markdown fences.`

// buildPatchPrompt は対象ファイルと過去の教訓から改善提案用プロンプトを組み立てる
func buildPatchPrompt(target, source string, lessons []string) string {
	var b strings.Builder

	b.WriteString("Propose the smallest possible improvement to the Go file below.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Change as little as possible. One focused improvement only.\n")
	b.WriteString("- The file must remain valid, compilable Go.\n")
	b.WriteString("- Return the COMPLETE new file content, not a diff.\n")
	b.WriteString("- Respond with exactly one JSON object of this shape:\n")
	fmt.Fprintf(&b, "  {\"title\": \"...\", \"description\": \"...\", \"files\": {%q: \"<complete file content>\"}}\n", target)

	if len(lessons) > 0 {
		b.WriteString("\nLessons from previous failed attempts:\n")
		for _, lesson := range lessons {
			b.WriteString("- ")
			b.WriteString(lesson)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nFile: %s\n```go\n%s\n```\n", target, source)
	return b.String()
}
