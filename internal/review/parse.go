package review

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawOutcome is the JSON structure the model is asked to return.
type rawOutcome struct {
	OverallScore     *int         `json:"overall_score"`
	Summary          string       `json:"summary"`
	DetailedComments []rawComment `json:"detailed_comments"`
	Suggestions      []string     `json:"suggestions"`
	Risks            []string     `json:"risks"`
}

// rawComment tolerates line numbers arriving as strings or numbers.
type rawComment struct {
	File    string `json:"file"`
	Line    any    `json:"line"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// fallbackSummaryLimit bounds the raw-response summary when parsing fails.
const fallbackSummaryLimit = 500

// ParseOutcome extracts the structured review from a model response. It
// finds the outermost JSON object in the text; if no well-formed object is
// present it degrades to a fallback outcome with a neutral score and the raw
// response as summary. It never fails.
func ParseOutcome(revision, content string) Outcome {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return fallbackOutcome(revision, content)
	}

	var raw rawOutcome
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return fallbackOutcome(revision, content)
	}

	score := fallbackScore
	if raw.OverallScore != nil {
		score = clampScore(*raw.OverallScore)
	}

	comments := make([]Comment, 0, len(raw.DetailedComments))
	for _, c := range raw.DetailedComments {
		comments = append(comments, Comment{
			File:    c.File,
			Line:    lineString(c.Line),
			Type:    c.Type,
			Comment: c.Comment,
		})
	}

	return Outcome{
		Revision:    revision,
		Score:       score,
		Summary:     raw.Summary,
		Comments:    comments,
		Suggestions: raw.Suggestions,
		Risks:       raw.Risks,
	}
}

func fallbackOutcome(revision, content string) Outcome {
	summary := strings.TrimSpace(content)
	if len(summary) > fallbackSummaryLimit {
		summary = summary[:fallbackSummaryLimit]
	}
	return Outcome{
		Revision: revision,
		Score:    fallbackScore,
		Summary:  summary,
	}
}

func lineString(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case float64:
		return fmt.Sprintf("%d", int64(n))
	default:
		return fmt.Sprint(n)
	}
}
