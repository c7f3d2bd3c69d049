package review

import (
	"fmt"
	"strings"

	"github.com/dshills/vigil/internal/svn"
)

// TruncationMarker is inserted where smart truncation cuts diff body lines.
const TruncationMarker = "... (diff truncated) ..."

// DefaultSystemPrompt is used when the config does not supply one.
const DefaultSystemPrompt = "You are a senior code reviewer. Review the commit " +
	"diff for correctness, security, performance and maintainability. Respond " +
	"with ONLY the requested JSON object."

var actionLabels = map[string]string{
	"A": "added",
	"M": "modified",
	"D": "deleted",
	"R": "renamed",
}

// BuildPrompt assembles the user prompt for one review call: commit
// metadata, the changed-file list, the (possibly truncated) diff and the
// required response schema.
func BuildPrompt(commit svn.Commit, files []svn.FileChange, diff string, diffLimit int) string {
	var b strings.Builder

	b.WriteString("## Commit\n")
	fmt.Fprintf(&b, "- Revision: %s\n", commit.Revision)
	fmt.Fprintf(&b, "- Author: %s\n", commit.Author)
	fmt.Fprintf(&b, "- Date: %s\n", commit.Date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Message: %s\n", commit.Message)

	b.WriteString("\n## Changed files\n")
	for _, f := range files {
		label := actionLabels[f.Action]
		if label == "" {
			label = f.Action
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, f.Path)
	}

	originalSize := len(diff)
	truncated := ""
	if diffLimit > 0 && originalSize > diffLimit {
		diff = SmartTruncate(diff, diffLimit)
		truncated = fmt.Sprintf(
			"\nNote: the original diff was %d characters and has been truncated to %d to fit the request budget. Focus on the visible changes and call out risk from what may be hidden.\n",
			originalSize, len(diff))
	}

	b.WriteString("\n## Diff\n```diff\n")
	b.WriteString(diff)
	b.WriteString("\n```\n")
	b.WriteString(truncated)

	b.WriteString(`
Respond with a JSON object in exactly this shape:
{
  "overall_score": 8,
  "summary": "one-paragraph assessment",
  "detailed_comments": [
    {"file": "path", "line": "42", "type": "suggestion|warning|error", "comment": "specific remark"}
  ],
  "suggestions": ["improvement"],
  "risks": ["potential risk"]
}
`)

	return b.String()
}

// SmartTruncate cuts a diff down to roughly limit bytes while keeping every
// file-header and hunk-header line. Body lines are appended greedily until
// the budget is exhausted; a single marker is inserted at the first cut, and
// later header lines still appear after it.
func SmartTruncate(diff string, limit int) string {
	if len(diff) <= limit {
		return diff
	}

	var kept []string
	size := 0
	cut := false
	for _, line := range strings.Split(diff, "\n") {
		lineSize := len(line) + 1
		if isHeaderLine(line) {
			kept = append(kept, line)
			size += lineSize
			continue
		}
		if size+lineSize > limit {
			if !cut {
				kept = append(kept, TruncationMarker)
				cut = true
			}
			continue
		}
		kept = append(kept, line)
		size += lineSize
	}
	return strings.Join(kept, "\n")
}

// isHeaderLine matches svn and git diff file/hunk markers.
func isHeaderLine(line string) bool {
	return strings.HasPrefix(line, "Index:") ||
		strings.HasPrefix(line, "===") ||
		strings.HasPrefix(line, "---") ||
		strings.HasPrefix(line, "+++") ||
		strings.HasPrefix(line, "@@") ||
		strings.HasPrefix(line, "diff --git")
}
