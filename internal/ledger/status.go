package ledger

import (
	"encoding/json"
	"fmt"
)

// Status is the processing state of a commit. It is a closed enum in code;
// the canonical string form appears only at the JSON boundary.
type Status int

const (
	StatusUnknown Status = iota
	StatusDetected
	StatusReviewing
	StatusReviewed
	StatusNotified
	StatusFailedReview
	StatusFailedNotify
	StatusSkipped
)

var statusNames = map[Status]string{
	StatusDetected:     "detected",
	StatusReviewing:    "reviewing",
	StatusReviewed:     "reviewed",
	StatusNotified:     "notified",
	StatusFailedReview: "failed_review",
	StatusFailedNotify: "failed_notify",
	StatusSkipped:      "skipped",
}

// AllStatuses lists every valid status, in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDetected,
		StatusReviewing,
		StatusReviewed,
		StatusNotified,
		StatusFailedReview,
		StatusFailedNotify,
		StatusSkipped,
	}
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further automatic transition occurs from s.
func (s Status) Terminal() bool {
	return s == StatusNotified || s == StatusSkipped
}

// ParseStatus converts a canonical string into a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", name)
}

// MarshalJSON serializes the status as its canonical string.
func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON parses the canonical string form.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
