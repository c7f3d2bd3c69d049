// Package svn shells out to the svn CLI and parses its XML log output.
package svn

import (
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Commit holds one revision's metadata and changed paths. The diff is fetched
// separately because it is expensive and only needed once review begins.
type Commit struct {
	Revision     string
	Author       string
	Date         time.Time
	Message      string
	ChangedFiles []FileChange
}

// FileChange is one changed path in a commit.
type FileChange struct {
	Path   string
	Action string // A, M, D, R
	Kind   string // file or dir
}

// Options configures the svn client.
type Options struct {
	RepositoryURL  string
	Username       string
	Password       string
	MonitoredPaths []string
	CommandTimeout time.Duration
}

// Client runs svn commands against one repository.
type Client struct {
	opts Options
}

// NewClient creates an svn client. RepositoryURL must be set.
func NewClient(opts Options) (*Client, error) {
	if opts.RepositoryURL == "" {
		return nil, fmt.Errorf("repository URL is required")
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	return &Client{opts: opts}, nil
}

// ListRecent returns up to limit of the newest commits, filtered to the
// monitored paths. Commits whose changes fall entirely outside the monitored
// paths are returned with an empty ChangedFiles slice so the caller can skip
// them explicitly.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]Commit, error) {
	out, err := c.run(ctx, "log", c.opts.RepositoryURL, "--xml", "--verbose", fmt.Sprintf("--limit=%d", limit))
	if err != nil {
		return nil, fmt.Errorf("svn log: %w", err)
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	for i := range commits {
		commits[i].ChangedFiles = c.FilterMonitored(commits[i].ChangedFiles)
	}
	return commits, nil
}

// Lookup returns a single revision's metadata and changed paths.
func (c *Client) Lookup(ctx context.Context, revision string) (*Commit, error) {
	out, err := c.run(ctx, "log", c.opts.RepositoryURL, "-r"+revision, "--xml", "--verbose")
	if err != nil {
		return nil, fmt.Errorf("svn log -r%s: %w", revision, err)
	}
	commits, err := parseLog(out)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("revision %s not found", revision)
	}
	commit := commits[0]
	commit.ChangedFiles = c.FilterMonitored(commit.ChangedFiles)
	return &commit, nil
}

// Diff returns the unified diff of a revision against its predecessor.
func (c *Client) Diff(ctx context.Context, revision string) (string, error) {
	prev, err := previousRevision(revision)
	if err != nil {
		return "", err
	}
	out, err := c.run(ctx, "diff", c.opts.RepositoryURL, fmt.Sprintf("-r%s:%s", prev, revision))
	if err != nil {
		return "", fmt.Errorf("svn diff r%s: %w", revision, err)
	}
	return out, nil
}

// FilterMonitored keeps only changes under the monitored path prefixes.
// With no monitored paths configured, everything passes.
func (c *Client) FilterMonitored(files []FileChange) []FileChange {
	if len(c.opts.MonitoredPaths) == 0 {
		return files
	}
	var kept []FileChange
	for _, f := range files {
		for _, prefix := range c.opts.MonitoredPaths {
			if strings.HasPrefix(f.Path, prefix) {
				kept = append(kept, f)
				break
			}
		}
	}
	return kept
}

func previousRevision(revision string) (string, error) {
	n, err := strconv.ParseInt(revision, 10, 64)
	if err != nil {
		return "", fmt.Errorf("revision %q is not numeric: %w", revision, err)
	}
	if n <= 1 {
		return "0", nil
	}
	return strconv.FormatInt(n-1, 10), nil
}

// run executes one svn command with authentication flags and a timeout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	full := args
	if c.opts.Username != "" {
		full = append(full, "--username", c.opts.Username)
	}
	if c.opts.Password != "" {
		full = append(full, "--password", c.opts.Password)
	}
	full = append(full, "--non-interactive")

	cmdCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "svn", full...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), fmt.Errorf("%s: %s", err, string(exitErr.Stderr))
		}
		return "", err
	}
	return string(out), nil
}

// XML shapes for `svn log --xml --verbose`.
type xmlLog struct {
	Entries []xmlLogEntry `xml:"logentry"`
}

type xmlLogEntry struct {
	Revision string    `xml:"revision,attr"`
	Author   string    `xml:"author"`
	Date     string    `xml:"date"`
	Message  string    `xml:"msg"`
	Paths    []xmlPath `xml:"paths>path"`
}

type xmlPath struct {
	Action string `xml:"action,attr"`
	Kind   string `xml:"kind,attr"`
	Value  string `xml:",chardata"`
}

func parseLog(out string) ([]Commit, error) {
	var log xmlLog
	if err := xml.Unmarshal([]byte(out), &log); err != nil {
		return nil, fmt.Errorf("parsing svn log XML: %w", err)
	}

	commits := make([]Commit, 0, len(log.Entries))
	for _, entry := range log.Entries {
		author := entry.Author
		if author == "" {
			author = "unknown"
		}
		date, err := time.Parse(time.RFC3339, strings.TrimSpace(entry.Date))
		if err != nil {
			date = time.Now()
		}
		files := make([]FileChange, 0, len(entry.Paths))
		for _, p := range entry.Paths {
			kind := p.Kind
			if kind == "" {
				kind = "file"
			}
			files = append(files, FileChange{
				Path:   strings.TrimSpace(p.Value),
				Action: p.Action,
				Kind:   kind,
			})
		}
		commits = append(commits, Commit{
			Revision:     entry.Revision,
			Author:       author,
			Date:         date,
			Message:      strings.TrimSpace(entry.Message),
			ChangedFiles: files,
		})
	}
	return commits, nil
}
