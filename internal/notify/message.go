package notify

import (
	"fmt"
	"strings"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/review"
	"github.com/dshills/vigil/internal/svn"
)

const maxListedFiles = 5

func scoreEmoji(score int) string {
	switch {
	case score >= 9:
		return "✅"
	case score >= 7:
		return "🟢"
	case score >= 4:
		return "🟡"
	case score >= 1:
		return "🔴"
	default:
		return "❓"
	}
}

func commentEmoji(commentType string) string {
	switch commentType {
	case "error":
		return "❌"
	case "warning":
		return "⚠️"
	case "suggestion":
		return "💡"
	default:
		return "💬"
	}
}

func actionEmoji(action string) string {
	switch action {
	case "A":
		return "➕"
	case "M":
		return "✏️"
	case "D":
		return "➖"
	case "R":
		return "🔄"
	default:
		return "📄"
	}
}

func truncateText(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// buildReviewMessage renders the full single-message report.
func buildReviewMessage(commit svn.Commit, outcome *review.Outcome, settings config.MessageSettings) string {
	var b strings.Builder

	writeHeader(&b, commit, outcome, "")

	if len(outcome.Comments) > 0 {
		b.WriteString("**💬 Comments**\n")
		for i, c := range outcome.Comments {
			fmt.Fprintf(&b, "%d. %s **%s** (%s): %s\n",
				i+1, commentEmoji(c.Type), c.Type, c.File,
				truncateText(c.Comment, settings.CommentMaxLength))
		}
		b.WriteString("\n")
	}

	writeSuggestions(&b, outcome.Suggestions, settings.SuggestionMaxLength)
	writeRisks(&b, outcome.Risks, settings.SuggestionMaxLength)
	writeChangedFiles(&b, commit.ChangedFiles)

	return b.String()
}

// buildBasicsMessage is part 1 of a split delivery.
func buildBasicsMessage(commit svn.Commit, outcome *review.Outcome) string {
	var b strings.Builder
	writeHeader(&b, commit, outcome, " (1/3)")
	writeChangedFiles(&b, commit.ChangedFiles)
	return b.String()
}

// buildCommentsMessage is part 2 of a split delivery.
func buildCommentsMessage(outcome *review.Outcome, settings config.MessageSettings) string {
	var b strings.Builder
	b.WriteString("## 💬 Comments (2/3)\n\n")
	for i, c := range outcome.Comments {
		fmt.Fprintf(&b, "%d. %s **%s** (%s): %s\n",
			i+1, commentEmoji(c.Type), c.Type, c.File,
			truncateText(c.Comment, settings.CommentMaxLength))
	}
	return b.String()
}

// buildSuggestionsRisksMessage is part 3 of a split delivery.
func buildSuggestionsRisksMessage(outcome *review.Outcome, settings config.MessageSettings) string {
	if len(outcome.Suggestions) == 0 && len(outcome.Risks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## ✨ Suggestions and risks (3/3)\n\n")
	writeSuggestions(&b, outcome.Suggestions, settings.SuggestionMaxLength)
	writeRisks(&b, outcome.Risks, settings.SuggestionMaxLength)
	return b.String()
}

func writeHeader(b *strings.Builder, commit svn.Commit, outcome *review.Outcome, partSuffix string) {
	fmt.Fprintf(b, "## %s Code review report%s\n\n", scoreEmoji(outcome.Score), partSuffix)
	b.WriteString("**📝 Commit**\n")
	fmt.Fprintf(b, "- Revision: `%s`\n", commit.Revision)
	fmt.Fprintf(b, "- Author: %s\n", commit.Author)
	fmt.Fprintf(b, "- Date: %s\n", commit.Date.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(b, "- Message: %s\n\n", commit.Message)
	fmt.Fprintf(b, "**📊 Score: %d/10**\n\n", outcome.Score)

	if outcome.Summary != "" {
		b.WriteString("**📋 Summary**\n")
		b.WriteString(outcome.Summary)
		b.WriteString("\n\n")
	}
}

func writeSuggestions(b *strings.Builder, suggestions []string, limit int) {
	if len(suggestions) == 0 {
		return
	}
	b.WriteString("**✨ Suggestions**\n")
	for i, s := range suggestions {
		fmt.Fprintf(b, "%d. %s\n", i+1, truncateText(s, limit))
	}
	b.WriteString("\n")
}

func writeRisks(b *strings.Builder, risks []string, limit int) {
	if len(risks) == 0 {
		return
	}
	b.WriteString("**⚠️ Risks**\n")
	for i, r := range risks {
		fmt.Fprintf(b, "%d. %s\n", i+1, truncateText(r, limit))
	}
	b.WriteString("\n")
}

func writeChangedFiles(b *strings.Builder, files []svn.FileChange) {
	if len(files) == 0 {
		return
	}
	b.WriteString("**📁 Changed files**\n")
	for i, f := range files {
		if i == maxListedFiles {
			fmt.Fprintf(b, "... and %d more files\n", len(files)-maxListedFiles)
			break
		}
		fmt.Fprintf(b, "- %s %s\n", actionEmoji(f.Action), f.Path)
	}
}
