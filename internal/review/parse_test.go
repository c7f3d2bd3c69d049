package review

import (
	"strings"
	"testing"
)

func TestParseOutcome_WellFormed(t *testing.T) {
	content := "Here is my review:\n" + `{
		"overall_score": 8,
		"summary": "solid change",
		"detailed_comments": [
			{"file": "a.go", "line": 42, "type": "warning", "comment": "check error"},
			{"file": "b.go", "line": "7", "type": "suggestion", "comment": "rename"}
		],
		"suggestions": ["add a test"],
		"risks": ["race on shutdown"]
	}` + "\nHope that helps."

	out := ParseOutcome("100", content)

	if out.Revision != "100" {
		t.Errorf("Revision = %q, want 100", out.Revision)
	}
	if out.Score != 8 {
		t.Errorf("Score = %d, want 8", out.Score)
	}
	if out.Summary != "solid change" {
		t.Errorf("Summary = %q", out.Summary)
	}
	if len(out.Comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(out.Comments))
	}
	if out.Comments[0].Line != "42" {
		t.Errorf("numeric line = %q, want \"42\"", out.Comments[0].Line)
	}
	if out.Comments[1].Line != "7" {
		t.Errorf("string line = %q, want \"7\"", out.Comments[1].Line)
	}
	if len(out.Suggestions) != 1 || len(out.Risks) != 1 {
		t.Errorf("suggestions/risks = %v / %v", out.Suggestions, out.Risks)
	}
}

func TestParseOutcome_MissingScoreDefaultsNeutral(t *testing.T) {
	out := ParseOutcome("1", `{"summary": "no score given"}`)
	if out.Score != 5 {
		t.Errorf("Score = %d, want neutral 5", out.Score)
	}
	if out.Summary != "no score given" {
		t.Errorf("Summary = %q", out.Summary)
	}
}

func TestParseOutcome_ClampsScore(t *testing.T) {
	if out := ParseOutcome("1", `{"overall_score": 37, "summary": "s"}`); out.Score != 10 {
		t.Errorf("Score = %d, want clamped 10", out.Score)
	}
	if out := ParseOutcome("1", `{"overall_score": -3, "summary": "s"}`); out.Score != 1 {
		t.Errorf("Score = %d, want clamped 1", out.Score)
	}
}

func TestParseOutcome_FallbackOnGarbage(t *testing.T) {
	out := ParseOutcome("2", "the model rambled with no JSON at all")
	if out.Score != 5 {
		t.Errorf("Score = %d, want fallback 5", out.Score)
	}
	if out.Summary != "the model rambled with no JSON at all" {
		t.Errorf("Summary = %q, want raw content", out.Summary)
	}
	if len(out.Comments) != 0 {
		t.Errorf("fallback should carry no comments")
	}
}

func TestParseOutcome_FallbackOnBrokenJSON(t *testing.T) {
	out := ParseOutcome("3", `{"overall_score": 8, "summary": `)
	if out.Score != 5 {
		t.Errorf("Score = %d, want fallback 5", out.Score)
	}
}

func TestParseOutcome_FallbackSummaryBounded(t *testing.T) {
	out := ParseOutcome("4", strings.Repeat("x", 2000))
	if len(out.Summary) != 500 {
		t.Errorf("fallback summary length = %d, want 500", len(out.Summary))
	}
}

func TestParseOutcome_ExtractsEmbeddedObject(t *testing.T) {
	content := "```json\n{\"overall_score\": 9, \"summary\": \"fenced\"}\n```"
	out := ParseOutcome("5", content)
	if out.Score != 9 || out.Summary != "fenced" {
		t.Errorf("got score=%d summary=%q", out.Score, out.Summary)
	}
}
