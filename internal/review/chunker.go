package review

import (
	"strings"

	"github.com/dshills/vigil/internal/svn"
)

// Chunk is a contiguous, file-aligned segment of a large diff that is
// reviewed independently.
type Chunk struct {
	Index int
	Diff  string
	Files []svn.FileChange
}

// SplitDiff splits a diff into chunks at file-boundary markers. Sections
// accumulate into the current chunk; a boundary starts a new chunk only once
// the running size has exceeded maxBytes, so a chunk may run over the budget
// by at most one section.
func SplitDiff(diff string, files []svn.FileChange, maxBytes int) []Chunk {
	sections := splitSections(diff)
	if len(sections) == 0 {
		return nil
	}

	var chunks []Chunk
	var current strings.Builder
	var currentFiles []svn.FileChange
	idx := 0

	flush := func() {
		chunks = append(chunks, Chunk{
			Index: idx,
			Diff:  current.String(),
			Files: currentFiles,
		})
		idx++
		current.Reset()
		currentFiles = nil
	}

	for _, sec := range sections {
		if current.Len() > 0 && current.Len() > maxBytes {
			flush()
		}
		current.WriteString(sec)
		if fc, ok := fileForSection(sec, files); ok {
			currentFiles = append(currentFiles, fc)
		}
	}
	if current.Len() > 0 {
		flush()
	}

	return chunks
}

// splitSections breaks a diff at file boundaries. Both svn ("Index: path")
// and git ("diff --git") markers are recognized.
func splitSections(diff string) []string {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	var sections []string
	var current strings.Builder
	for _, line := range strings.Split(diff, "\n") {
		if isFileBoundary(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		s := current.String()
		if strings.TrimSpace(s) != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

func isFileBoundary(line string) bool {
	return strings.HasPrefix(line, "Index:") || strings.HasPrefix(line, "diff --git")
}

// fileForSection pairs a diff section with the changed-file metadata it
// covers. Unmatched paths get a synthesized modified entry so the chunk
// still lists the file.
func fileForSection(section string, files []svn.FileChange) (svn.FileChange, bool) {
	path := pathFromSection(section)
	if path == "" {
		return svn.FileChange{}, false
	}
	for _, f := range files {
		if f.Path == path || strings.HasSuffix(f.Path, path) {
			return f, true
		}
	}
	return svn.FileChange{Path: path, Action: "M", Kind: "file"}, true
}

func pathFromSection(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "Index:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Index:"))
		}
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	return ""
}
