package domain

import (
	"time"
)

// ActivityLevel is the severity of an activity log entry.
type ActivityLevel string

const (
	ActivityInfo    ActivityLevel = "info"
	ActivityWarning ActivityLevel = "warning"
	ActivityError   ActivityLevel = "error"
)

// ActivityCategory groups activity log entries by workflow.
type ActivityCategory string

const (
	CategoryEdit    ActivityCategory = "edit"
	CategoryClose   ActivityCategory = "close"
	CategoryDelete  ActivityCategory = "delete"
	CategorySession ActivityCategory = "session"
)

// ActivityEntry is one row of the operator activity log.
type ActivityEntry struct {
	ID       string           `json:"id"`
	Time     time.Time        `json:"time"`
	Level    ActivityLevel    `json:"level"`
	Category ActivityCategory `json:"category"`
	UserID   string           `json:"userId"`
	Message  string           `json:"message"`
	Details  string           `json:"details"`
	Tags     []string         `json:"tags"`
}

// SearchFields returns the fields matched by free-text search. Every tag is
// searchable on its own.
func (a ActivityEntry) SearchFields() []string {
	fields := make([]string, 0, 3+len(a.Tags))
	fields = append(fields, a.Message, a.Details, a.UserID)
	return append(fields, a.Tags...)
}

// FilterValue returns the value of a discrete filter field.
func (a ActivityEntry) FilterValue(key string) (string, bool) {
	switch key {
	case "level":
		return string(a.Level), true
	case "category":
		return string(a.Category), true
	}
	return "", false
}

// RecordID returns the identity used by the stores.
func (a ActivityEntry) RecordID() string {
	return a.ID
}
