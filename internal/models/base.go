package models

import "time"

// Timestamps contains common bookkeeping fields for persisted records
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counters contains the item/feed metrics collected during a sync run
type Counters struct {
	NewArticles     int `json:"new_articles" db:"new_articles"`
	UpdatedArticles int `json:"updated_articles" db:"updated_articles"`
	DeletedArticles int `json:"deleted_articles" db:"deleted_articles"`
	NewTags         int `json:"new_tags" db:"new_tags"`
	FailedFeeds     int `json:"failed_feeds" db:"failed_feeds"`
	SkippedItems    int `json:"skipped_items" db:"skipped_items"`
	ProcessedItems  int `json:"processed_items" db:"processed_items"`
	TotalItems      int `json:"total_items" db:"total_items"`
}
