package review

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dshills/vigil/internal/svn"
)

func svnSection(path string, bodyLines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Index: %s\n", path)
	b.WriteString("===================================================================\n")
	fmt.Fprintf(&b, "--- %s\t(revision 1)\n", path)
	fmt.Fprintf(&b, "+++ %s\t(revision 2)\n", path)
	b.WriteString("@@ -1,3 +1,4 @@\n")
	for i := 0; i < bodyLines; i++ {
		fmt.Fprintf(&b, "+line %d\n", i)
	}
	return b.String()
}

func TestSplitDiff_SingleFile(t *testing.T) {
	diff := svnSection("src/main.go", 3)
	files := []svn.FileChange{{Path: "src/main.go", Action: "M", Kind: "file"}}

	chunks := SplitDiff(diff, files, 10000)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if len(chunks[0].Files) != 1 || chunks[0].Files[0].Path != "src/main.go" {
		t.Errorf("Files = %v, want [src/main.go]", chunks[0].Files)
	}
}

func TestSplitDiff_SplitsAtFileBoundaries(t *testing.T) {
	var sections []string
	var files []svn.FileChange
	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("src/file%d.go", i)
		sections = append(sections, svnSection(path, 5))
		files = append(files, svn.FileChange{Path: path, Action: "M", Kind: "file"})
	}
	diff := strings.Join(sections, "")

	chunks := SplitDiff(diff, files, 80)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple with small budget", len(chunks))
	}

	var total int
	for _, c := range chunks {
		total += len(c.Files)
		if !strings.HasPrefix(c.Diff, "Index:") {
			t.Errorf("chunk %d does not start at a file boundary: %q", c.Index, c.Diff[:20])
		}
	}
	if total != 3 {
		t.Errorf("total files across chunks = %d, want 3", total)
	}

	// Reassembling the chunks must reproduce the diff.
	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Diff)
	}
	if joined.String() != diff {
		t.Error("concatenated chunks do not reproduce the original diff")
	}
}

func TestSplitDiff_GitBoundaries(t *testing.T) {
	diff := "diff --git a/a.go b/a.go\n+++ b/a.go\n+line1\n" +
		"diff --git a/b.go b/b.go\n+++ b/b.go\n+line2\n"
	chunks := SplitDiff(diff, nil, 10)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Files[0].Path != "a.go" || chunks[1].Files[0].Path != "b.go" {
		t.Errorf("chunk files = %v, %v", chunks[0].Files, chunks[1].Files)
	}
}

func TestSplitDiff_OversizedSectionStaysWhole(t *testing.T) {
	diff := svnSection("big.go", 100)
	chunks := SplitDiff(diff, nil, 50)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1; sections are never split internally", len(chunks))
	}
	if chunks[0].Diff != diff {
		t.Error("oversized section should pass through intact")
	}
}

func TestSplitDiff_EmptyDiff(t *testing.T) {
	if chunks := SplitDiff("", nil, 1000); len(chunks) != 0 {
		t.Errorf("got %d chunks for empty diff, want 0", len(chunks))
	}
	if chunks := SplitDiff("   \n\t\n", nil, 1000); len(chunks) != 0 {
		t.Errorf("got %d chunks for whitespace diff, want 0", len(chunks))
	}
}

func TestSplitDiff_ChunkIndexes(t *testing.T) {
	var sections []string
	for i := 0; i < 5; i++ {
		sections = append(sections, svnSection(fmt.Sprintf("f%d.go", i), 3))
	}
	chunks := SplitDiff(strings.Join(sections, ""), nil, 50)
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index=%d", i, c.Index)
		}
	}
}

func TestSplitDiff_SynthesizesUnknownFiles(t *testing.T) {
	diff := svnSection("mystery.go", 2)
	chunks := SplitDiff(diff, []svn.FileChange{{Path: "other.go", Action: "A"}}, 10000)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if len(chunks[0].Files) != 1 {
		t.Fatalf("got %d files, want 1", len(chunks[0].Files))
	}
	f := chunks[0].Files[0]
	if f.Path != "mystery.go" || f.Action != "M" {
		t.Errorf("synthesized file = %+v, want modified mystery.go", f)
	}
}

func TestSplitDiff_MatchesFileBySuffix(t *testing.T) {
	// svn paths in the changed-file list carry the repo-root prefix while the
	// diff header may not.
	diff := "Index: main.go\n+++ main.go\n+x\n"
	files := []svn.FileChange{{Path: "/trunk/src/main.go", Action: "A", Kind: "file"}}
	chunks := SplitDiff(diff, files, 10000)
	if len(chunks) != 1 || len(chunks[0].Files) != 1 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if chunks[0].Files[0].Action != "A" {
		t.Errorf("expected metadata match by suffix, got %+v", chunks[0].Files[0])
	}
}

func TestPathFromSection_NoHeader(t *testing.T) {
	if got := pathFromSection("some content without headers\n"); got != "" {
		t.Errorf("pathFromSection = %q, want empty", got)
	}
}
