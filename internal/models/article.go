package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Article is the local record of one remote item
type Article struct {
	ID           int64      `json:"-" db:"id"`
	ExternalID   string     `json:"external_id" db:"external_id"`
	FeedID       string     `json:"feed_id" db:"feed_id"`
	Title        string     `json:"title" db:"title"`
	Author       *string    `json:"author,omitempty" db:"author"`
	CanonicalURL *string    `json:"canonical_url,omitempty" db:"canonical_url"`
	PublishedAt  *time.Time `json:"published_at,omitempty" db:"published_at"`
	Content      string     `json:"content" db:"content"`
	ContentHash  string     `json:"content_hash" db:"content_hash"`

	// Enriched locally after sync; preserved across re-syncs while the content hash is unchanged.
	FullText     *string `json:"full_text,omitempty" db:"full_text"`
	Summary      *string `json:"summary,omitempty" db:"summary"`
	DecodedTitle *string `json:"decoded_title,omitempty" db:"decoded_title"`

	Read    bool     `json:"read" db:"is_read"`
	Starred bool     `json:"starred" db:"is_starred"`
	Tags    []string `json:"tags" db:"-"`

	LastSyncedAt time.Time `json:"last_synced_at" db:"last_synced_at"`
	Timestamps
}

// HashContent returns the hex SHA-256 of raw content
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy of the article
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	c := *a
	c.Author = cloneString(a.Author)
	c.CanonicalURL = cloneString(a.CanonicalURL)
	c.FullText = cloneString(a.FullText)
	c.Summary = cloneString(a.Summary)
	c.DecodedTitle = cloneString(a.DecodedTitle)
	if a.PublishedAt != nil {
		p := *a.PublishedAt
		c.PublishedAt = &p
	}
	c.Tags = append([]string(nil), a.Tags...)
	return &c
}

// HasTag reports whether the article carries tag
func (a *Article) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SetTag adds or removes tag, keeping Tags sorted and unique
func (a *Article) SetTag(tag string, present bool) {
	out := make([]string, 0, len(a.Tags)+1)
	for _, t := range a.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	if present {
		out = append(out, tag)
	}
	sort.Strings(out)
	a.Tags = out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Feed is a subscription on the remote service
type Feed struct {
	ID      string   `json:"id" db:"id"`
	Title   string   `json:"title" db:"title"`
	URL     string   `json:"url" db:"url"`
	SiteURL string   `json:"site_url" db:"site_url"`
	Folders []string `json:"folders" db:"-"`
	Timestamps
}
