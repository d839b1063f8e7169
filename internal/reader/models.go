package reader

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
)

// Well-known state streams
const (
	StateRead        = "user/-/state/com.google/read"
	StateStarred     = "user/-/state/com.google/starred"
	StateReadingList = "user/-/state/com.google/reading-list"
)

// Subscription is a feed the user follows
type Subscription struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	HTMLURL    string     `json:"htmlUrl"`
	Categories []Category `json:"categories"`
}

// Category is a folder label attached to a subscription
type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Tag is an entry of the tag list. Type is "folder", "tag" or empty for states.
type Tag struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// UnreadCount is the unread counter of one stream
type UnreadCount struct {
	ID                      string `json:"id"`
	Count                   int64  `json:"count"`
	NewestItemTimestampUsec string `json:"newestItemTimestampUsec"`
}

// Link is an href entry of an item
type Link struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// Content is the body of an item
type Content struct {
	Direction string `json:"direction,omitempty"`
	Content   string `json:"content"`
}

// Origin identifies the feed an item came from
type Origin struct {
	StreamID string `json:"streamId"`
	Title    string `json:"title"`
	HTMLURL  string `json:"htmlUrl"`
}

// Item is an article as delivered by stream/contents
type Item struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Published     int64    `json:"published"`
	Updated       int64    `json:"updated"`
	CrawlTimeMsec string   `json:"crawlTimeMsec"`
	TimestampUsec string   `json:"timestampUsec"`
	Canonical     []Link   `json:"canonical"`
	Alternate     []Link   `json:"alternate"`
	Author        string   `json:"author"`
	Summary       *Content `json:"summary"`
	Content       *Content `json:"content"`
	Categories    []string `json:"categories"`
	Origin        Origin   `json:"origin"`
}

// StreamPage is one page of stream/contents
type StreamPage struct {
	ID           string `json:"id"`
	Updated      int64  `json:"updated"`
	Items        []Item `json:"items"`
	Continuation string `json:"continuation"`
}

type subscriptionList struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

type tagList struct {
	Tags []Tag `json:"tags"`
}

type unreadCountList struct {
	Max          int64         `json:"max"`
	UnreadCounts []UnreadCount `json:"unreadcounts"`
}

// Validate rejects items the local store cannot key
func (i *Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return apperrors.NewMalformedError("item has no id", nil)
	}
	if strings.TrimSpace(i.Origin.StreamID) == "" {
		return apperrors.NewMalformedError(fmt.Sprintf("item %s has no feed", i.ID), nil)
	}
	return nil
}

// FeedID returns the stream id of the item's feed
func (i *Item) FeedID() string {
	return i.Origin.StreamID
}

// CanonicalURL returns the first canonical link, falling back to alternate
func (i *Item) CanonicalURL() string {
	for _, l := range i.Canonical {
		if l.Href != "" {
			return l.Href
		}
	}
	for _, l := range i.Alternate {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

// Body returns the full content when present, otherwise the summary
func (i *Item) Body() string {
	if i.Content != nil && i.Content.Content != "" {
		return i.Content.Content
	}
	if i.Summary != nil {
		return i.Summary.Content
	}
	return ""
}

// PublishedAt returns the publication time, or nil when unknown
func (i *Item) PublishedAt() *time.Time {
	if i.Published <= 0 {
		return nil
	}
	t := time.Unix(i.Published, 0).UTC()
	return &t
}

// IsRead reports whether the read state is attached to the item
func (i *Item) IsRead() bool {
	return i.hasState("read")
}

// IsStarred reports whether the starred state is attached to the item
func (i *Item) IsStarred() bool {
	return i.hasState("starred")
}

// Labels returns the user labels attached to the item, sorted as received
func (i *Item) Labels() []string {
	var labels []string
	for _, c := range i.Categories {
		if name, ok := LabelName(c); ok {
			labels = append(labels, name)
		}
	}
	return labels
}

func (i *Item) hasState(state string) bool {
	for _, c := range i.Categories {
		if name, ok := stateName(c); ok && name == state {
			return true
		}
	}
	return false
}

// LabelName extracts X from "user/<id>/label/X"
func LabelName(stream string) (string, bool) {
	parts := strings.SplitN(stream, "/", 4)
	if len(parts) != 4 || parts[0] != "user" || parts[2] != "label" || parts[3] == "" {
		return "", false
	}
	return parts[3], true
}

// LabelStream builds the stream id of a user label
func LabelStream(name string) string {
	return "user/-/label/" + name
}

func stateName(stream string) (string, bool) {
	parts := strings.SplitN(stream, "/", 4)
	if len(parts) != 4 || parts[0] != "user" || parts[2] != "state" {
		return "", false
	}
	name, ok := strings.CutPrefix(parts[3], "com.google/")
	return name, ok
}
