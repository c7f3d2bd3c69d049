// Package review decides how a commit's diff is presented to the AI
// collaborator and turns the response into a structured outcome.
package review

// Outcome is the result of reviewing one commit. Only the score (and any
// error) is persisted; the full detail flows to the notifier.
type Outcome struct {
	Revision    string
	Score       int // 1-10
	Summary     string
	Comments    []Comment
	Suggestions []string
	Risks       []string
}

// Comment is one file-anchored remark. Order is significant.
type Comment struct {
	File    string
	Line    string
	Type    string
	Comment string
}

// fallbackScore is the neutral midpoint used when the model response cannot
// be parsed as structured data.
const fallbackScore = 5

// clampScore bounds a score to the 1-10 scale.
func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
