package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the state of a synchronization run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsTerminal reports whether the status can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// IsActive reports whether a run in this status blocks new runs
func (s RunStatus) IsActive() bool {
	return s == RunPending || s == RunRunning
}

// ErrorKind classifies why a run failed
type ErrorKind string

const (
	KindQuotaExceeded    ErrorKind = "quota_exceeded"
	KindAuthRejected     ErrorKind = "auth_rejected"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindTimeout          ErrorKind = "timeout"
	KindInternal         ErrorKind = "internal"
)

// SyncRun tracks one synchronization pass
type SyncRun struct {
	ID      string    `json:"id"`
	Status  RunStatus `json:"status"`
	// Progress is nil while the run is still enumerating ("starting").
	Progress   *float64   `json:"progress,omitempty"`
	Message    string     `json:"message"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counters
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Retryable bool      `json:"retryable"`
	Sidebar   *Sidebar  `json:"sidebar,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the run
func (r *SyncRun) Clone() *SyncRun {
	if r == nil {
		return nil
	}
	c := *r
	if r.Progress != nil {
		p := *r.Progress
		c.Progress = &p
	}
	if r.FinishedAt != nil {
		f := *r.FinishedAt
		c.FinishedAt = &f
	}
	if r.Sidebar != nil {
		c.Sidebar = r.Sidebar.Clone()
	}
	return &c
}

// String returns the JSON string representation of the run
func (r *SyncRun) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal sync run: %v"}`, err)
	}
	return string(data)
}

// FeedCount is the unread count of one feed in the sidebar projection
type FeedCount struct {
	FeedID string `json:"feed_id" db:"feed_id"`
	Title  string `json:"title" db:"title"`
	Unread int    `json:"unread" db:"unread"`
}

// TagCount is the article count of one tag in the sidebar projection
type TagCount struct {
	Tag   string `json:"tag" db:"tag"`
	Count int    `json:"count" db:"count"`
}

// Sidebar is the compact projection published at the end of a run
type Sidebar struct {
	Feeds       []FeedCount `json:"feeds"`
	Tags        []TagCount  `json:"tags"`
	TotalUnread int         `json:"total_unread"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Clone returns a deep copy of the sidebar
func (s *Sidebar) Clone() *Sidebar {
	if s == nil {
		return nil
	}
	c := *s
	c.Feeds = append([]FeedCount(nil), s.Feeds...)
	c.Tags = append([]TagCount(nil), s.Tags...)
	return &c
}
