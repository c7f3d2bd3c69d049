// Package ledger is the durable source of truth for commit processing state.
//
// Every commit the detector observes gets exactly one CommitRecord, keyed by
// revision, and moves through the state machine:
//
//	detected      -> reviewing
//	reviewing     -> reviewed | failed_review
//	reviewed      -> notified | failed_notify
//	failed_review -> reviewing        (retry)
//	failed_notify -> reviewing        (retry re-runs the full unit)
//	any non-terminal -> skipped       (operator override)
//
// The ledger is the only component allowed to mutate records. Each mutating
// operation is an atomic read-modify-write under one lock and persists the
// whole document before returning, so a crash loses at most the transition in
// flight, never a record.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CommitRecord tracks one commit through its lifecycle. JSON field names
// match the on-disk document format.
type CommitRecord struct {
	Revision         string     `json:"revision"`
	Author           string     `json:"author"`
	Message          string     `json:"message"`
	DetectedAt       time.Time  `json:"timestamp"`
	Status           Status     `json:"status"`
	ReviewAttempts   int        `json:"review_attempts"`
	LastAttemptAt    *time.Time `json:"last_attempt,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	ReviewScore      *int       `json:"review_score,omitempty"`
	NotificationSent bool       `json:"notification_sent"`
	ProcessingSecs   float64    `json:"processing_time,omitempty"`
}

// Ledger is the durable revision -> CommitRecord mapping.
type Ledger struct {
	mu      sync.Mutex
	path    string
	commits map[string]*CommitRecord
	log     *zap.Logger
	now     func() time.Time
}

// document is the persisted JSON shape.
type document struct {
	LastUpdated  time.Time                `json:"last_updated"`
	TotalCommits int                      `json:"total_commits"`
	Commits      map[string]*CommitRecord `json:"commits"`
}

// Open loads the ledger at path, creating an empty one if the file does not
// exist. If the file is absent and legacyPath points at an old-format
// processed-commits file, its entries are migrated into notified records and
// the legacy file is renamed with a .backup suffix.
func Open(path, legacyPath string, log *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		commits: make(map[string]*CommitRecord),
		log:     log,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		commits, err := decodeDocument(data, l.now())
		if err != nil {
			return nil, fmt.Errorf("loading ledger %s: %w", path, err)
		}
		l.commits = commits
		log.Info("ledger loaded", zap.String("path", path), zap.Int("commits", len(commits)))
	case os.IsNotExist(err):
		if legacyPath != "" {
			if n, merr := l.migrateLegacyFile(legacyPath); merr != nil {
				log.Warn("legacy migration failed", zap.String("path", legacyPath), zap.Error(merr))
			} else if n > 0 {
				log.Info("migrated legacy records", zap.String("path", legacyPath), zap.Int("count", n))
			}
		}
	default:
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	return l, nil
}

// decodeDocument normalizes every known on-disk format into a record map:
// the current keyed document, a legacy {"processed_commits": [...]} object,
// or a legacy flat revision array. This is the single place format branches
// live.
func decodeDocument(data []byte, now time.Time) (map[string]*CommitRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Commits != nil {
		commits := make(map[string]*CommitRecord, len(doc.Commits))
		for rev, rec := range doc.Commits {
			if rec == nil || rec.Status == StatusUnknown {
				continue // skip invalid records rather than refuse the whole file
			}
			rec.Revision = rev
			commits[rev] = rec
		}
		return commits, nil
	}

	var wrapper struct {
		ProcessedCommits []json.RawMessage `json:"processed_commits"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.ProcessedCommits != nil {
		return migratedRecords(wrapper.ProcessedCommits, now), nil
	}

	var flat []json.RawMessage
	if err := json.Unmarshal(data, &flat); err == nil {
		return migratedRecords(flat, now), nil
	}

	return nil, fmt.Errorf("unrecognized ledger format")
}

// migratedRecords builds notified placeholder records for legacy revision
// lists. Revisions may be stored as numbers or strings.
func migratedRecords(raw []json.RawMessage, now time.Time) map[string]*CommitRecord {
	commits := make(map[string]*CommitRecord, len(raw))
	for _, r := range raw {
		var rev string
		if err := json.Unmarshal(r, &rev); err != nil {
			var n int64
			if err := json.Unmarshal(r, &n); err != nil {
				continue
			}
			rev = fmt.Sprintf("%d", n)
		}
		commits[rev] = &CommitRecord{
			Revision:         rev,
			Author:           "unknown",
			Message:          "migrated from legacy data",
			DetectedAt:       now,
			Status:           StatusNotified,
			NotificationSent: true,
		}
	}
	return commits
}

func (l *Ledger) migrateLegacyFile(legacyPath string) (int, error) {
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	commits, err := decodeDocument(data, l.now())
	if err != nil {
		return 0, err
	}
	l.commits = commits
	if err := l.persistLocked(); err != nil {
		return 0, err
	}
	if err := os.Rename(legacyPath, legacyPath+".backup"); err != nil {
		return len(commits), fmt.Errorf("archiving legacy file: %w", err)
	}
	return len(commits), nil
}

// persistLocked writes the full document atomically (temp file + rename).
// Callers must hold l.mu.
func (l *Ledger) persistLocked() error {
	doc := document{
		LastUpdated:  l.now(),
		TotalCommits: len(l.commits),
		Commits:      l.commits,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// save persists after a mutation. A failed write is logged and the in-memory
// state stays authoritative until the next successful write.
func (l *Ledger) save() {
	if err := l.persistLocked(); err != nil {
		l.log.Error("persisting ledger failed", zap.Error(err))
	}
}

// RecordDetected creates a record in status detected. It is idempotent:
// the second call for the same revision returns false and changes nothing,
// which is how the two ingress paths deduplicate work.
func (l *Ledger) RecordDetected(revision, author, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.commits[revision]; exists {
		return false
	}
	l.commits[revision] = &CommitRecord{
		Revision:   revision,
		Author:     author,
		Message:    message,
		DetectedAt: l.now(),
		Status:     StatusDetected,
	}
	l.save()
	l.log.Info("commit detected", zap.String("revision", revision), zap.String("author", author))
	return true
}

// BeginReview transitions detected/failed_review/failed_notify -> reviewing,
// increments the attempt counter and stamps the attempt time. Returns false
// for unknown revisions and for records in any other state, which also gates
// out double submission of the same commit.
func (l *Ledger) BeginReview(revision string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok {
		return false
	}
	switch rec.Status {
	case StatusDetected, StatusFailedReview, StatusFailedNotify:
	default:
		return false
	}
	rec.Status = StatusReviewing
	rec.ReviewAttempts++
	now := l.now()
	rec.LastAttemptAt = &now
	l.save()
	l.log.Info("review started", zap.String("revision", revision), zap.Int("attempt", rec.ReviewAttempts))
	return true
}

// CompleteReview transitions reviewing -> reviewed and clears the error.
func (l *Ledger) CompleteReview(revision string, score int, processingSecs float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok || rec.Status != StatusReviewing {
		return false
	}
	rec.Status = StatusReviewed
	rec.ReviewScore = &score
	rec.ProcessingSecs = processingSecs
	rec.ErrorMessage = ""
	l.save()
	l.log.Info("review completed", zap.String("revision", revision), zap.Int("score", score))
	return true
}

// FailReview transitions reviewing -> failed_review.
func (l *Ledger) FailReview(revision, errorMessage string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok || rec.Status != StatusReviewing {
		return false
	}
	rec.Status = StatusFailedReview
	rec.ErrorMessage = errorMessage
	l.save()
	l.log.Warn("review failed", zap.String("revision", revision), zap.String("error", errorMessage))
	return true
}

// CompleteNotification transitions reviewed -> notified.
func (l *Ledger) CompleteNotification(revision string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok || rec.Status != StatusReviewed {
		return false
	}
	rec.Status = StatusNotified
	rec.NotificationSent = true
	l.save()
	l.log.Info("notification sent", zap.String("revision", revision))
	return true
}

// FailNotification transitions reviewed -> failed_notify.
func (l *Ledger) FailNotification(revision, errorMessage string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok || rec.Status != StatusReviewed {
		return false
	}
	rec.Status = StatusFailedNotify
	rec.ErrorMessage = errorMessage
	l.save()
	l.log.Warn("notification failed", zap.String("revision", revision), zap.String("error", errorMessage))
	return true
}

// Skip moves any non-terminal record to skipped with the given reason.
func (l *Ledger) Skip(revision, reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok || rec.Status.Terminal() {
		return false
	}
	rec.Status = StatusSkipped
	rec.ErrorMessage = reason
	l.save()
	l.log.Info("commit skipped", zap.String("revision", revision), zap.String("reason", reason))
	return true
}

// StatusOf returns a revision's status and whether the revision is known.
func (l *Ledger) StatusOf(revision string) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.commits[revision]
	if !ok {
		return StatusUnknown, false
	}
	return rec.Status, true
}

// IsProcessed reports whether the revision reached a terminal state.
func (l *Ledger) IsProcessed(revision string) bool {
	s, ok := l.StatusOf(revision)
	return ok && s.Terminal()
}

// ByStatus returns copies of all records in the given status.
func (l *Ledger) ByStatus(status Status) []CommitRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CommitRecord
	for _, rec := range l.commits {
		if rec.Status == status {
			out = append(out, *rec)
		}
	}
	return out
}

// Pending returns all records still in detected.
func (l *Ledger) Pending() []CommitRecord {
	return l.ByStatus(StatusDetected)
}

// RetryEligible returns failed records with attempts remaining. Records at or
// over maxAttempts stay in their failed state for operator inspection.
func (l *Ledger) RetryEligible(maxAttempts int) []CommitRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []CommitRecord
	for _, rec := range l.commits {
		if (rec.Status == StatusFailedReview || rec.Status == StatusFailedNotify) &&
			rec.ReviewAttempts < maxAttempts {
			out = append(out, *rec)
		}
	}
	return out
}

// FailedCount counts records sitting in a failed state regardless of attempts.
func (l *Ledger) FailedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, rec := range l.commits {
		if rec.Status == StatusFailedReview || rec.Status == StatusFailedNotify {
			n++
		}
	}
	return n
}

// Cleanup removes terminal records whose detection time is older than the
// retention window. Returns the number removed.
func (l *Ledger) Cleanup(retentionDays int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().AddDate(0, 0, -retentionDays)
	var removed []string
	for rev, rec := range l.commits {
		if rec.Status.Terminal() && rec.DetectedAt.Before(cutoff) {
			removed = append(removed, rev)
		}
	}
	for _, rev := range removed {
		delete(l.commits, rev)
	}
	if len(removed) > 0 {
		l.save()
		l.log.Info("cleaned up old records", zap.Int("removed", len(removed)))
	}
	return len(removed)
}
