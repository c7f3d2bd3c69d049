package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/vigil/internal/config"
	"github.com/dshills/vigil/internal/providers"
	"github.com/dshills/vigil/internal/svn"
	"go.uber.org/zap"
)

// ChunkedSummaryPrefix marks a merged outcome assembled from chunk reviews.
const ChunkedSummaryPrefix = "Chunked review results:"

// Adapter makes the size-bounded AI collaborator usable against commits of
// arbitrary diff size by choosing between standard and chunked review.
type Adapter struct {
	provider providers.Reviewer
	cfg      config.AIConfig
	log      *zap.Logger
}

// NewAdapter wires a provider to the review configuration.
func NewAdapter(provider providers.Reviewer, cfg config.AIConfig, log *zap.Logger) *Adapter {
	return &Adapter{provider: provider, cfg: cfg, log: log}
}

// Review produces an outcome for the commit's diff. It returns an error only
// when no outcome could be produced at all; malformed model responses degrade
// to a fallback outcome instead.
func (a *Adapter) Review(ctx context.Context, commit svn.Commit, diff string) (*Outcome, error) {
	if a.cfg.ChunkedReview && a.cfg.ChunkSize > 0 && len(diff) > a.cfg.ChunkSize {
		a.log.Debug("using chunked review",
			zap.String("revision", commit.Revision), zap.Int("diff_bytes", len(diff)))
		return a.reviewChunked(ctx, commit, diff)
	}
	return a.reviewStandard(ctx, commit, commit.ChangedFiles, diff)
}

func (a *Adapter) reviewStandard(ctx context.Context, commit svn.Commit, files []svn.FileChange, diff string) (*Outcome, error) {
	prompt := BuildPrompt(commit, files, diff, a.cfg.DiffLimit)

	resp, err := a.provider.Review(ctx, providers.ReviewRequest{
		SystemPrompt: a.systemPrompt(),
		UserPrompt:   prompt,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("provider review: %w", err)
	}

	out := ParseOutcome(commit.Revision, resp.Content)
	return &out, nil
}

// reviewChunked splits the diff at file boundaries and reviews each chunk
// independently. A failed chunk is omitted from the merge; partial coverage
// beats total failure. Only when every chunk fails is an error returned.
func (a *Adapter) reviewChunked(ctx context.Context, commit svn.Commit, diff string) (*Outcome, error) {
	chunks := SplitDiff(diff, commit.ChangedFiles, a.cfg.ChunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("empty diff for revision %s", commit.Revision)
	}

	var outcomes []Outcome
	var lastErr error
	for _, chunk := range chunks {
		out, err := a.reviewStandard(ctx, commit, chunk.Files, chunk.Diff)
		if err != nil {
			lastErr = err
			a.log.Warn("chunk review failed",
				zap.String("revision", commit.Revision),
				zap.Int("chunk", chunk.Index),
				zap.Error(err))
			continue
		}
		outcomes = append(outcomes, *out)
	}

	if len(outcomes) == 0 {
		return nil, fmt.Errorf("all %d chunks failed for revision %s: %w", len(chunks), commit.Revision, lastErr)
	}

	merged := MergeOutcomes(commit.Revision, outcomes)
	return &merged, nil
}

// MergeOutcomes combines chunk outcomes into one: the score is the floor of
// the mean, summaries become a bulleted list, comments keep their original
// order, and suggestions and risks are deduplicated.
func MergeOutcomes(revision string, outcomes []Outcome) Outcome {
	total := 0
	var summaries []string
	var comments []Comment
	var suggestions, risks []string

	for _, o := range outcomes {
		total += o.Score
		if o.Summary != "" {
			summaries = append(summaries, o.Summary)
		}
		comments = append(comments, o.Comments...)
		suggestions = append(suggestions, o.Suggestions...)
		risks = append(risks, o.Risks...)
	}

	var b strings.Builder
	b.WriteString(ChunkedSummaryPrefix)
	for _, s := range summaries {
		b.WriteString("\n• ")
		b.WriteString(s)
	}

	return Outcome{
		Revision:    revision,
		Score:       total / len(outcomes),
		Summary:     b.String(),
		Comments:    comments,
		Suggestions: dedupe(suggestions),
		Risks:       dedupe(risks),
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (a *Adapter) systemPrompt() string {
	if a.cfg.SystemPrompt != "" {
		return a.cfg.SystemPrompt
	}
	return DefaultSystemPrompt
}
