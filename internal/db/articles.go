package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

const articleColumns = `id, external_id, feed_id, title, author, canonical_url, published_at,
	content, content_hash, full_text, summary, decoded_title, is_read, is_starred,
	last_synced_at, created_at, updated_at`

type feedRow struct {
	ID      string         `db:"id"`
	Title   string         `db:"title"`
	URL     string         `db:"url"`
	SiteURL string         `db:"site_url"`
	Folders pq.StringArray `db:"folders"`
	models.Timestamps
}

// UpsertFeeds inserts or updates subscriptions by id
func (s *PostgresStore) UpsertFeeds(ctx context.Context, feeds []*models.Feed) error {
	exec := GetExecutor(ctx, s.db)
	for _, f := range feeds {
		folders := f.Folders
		if folders == nil {
			folders = []string{}
		}
		_, err := exec.ExecContext(ctx, `
			INSERT INTO feeds (id, title, url, site_url, folders, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				url = EXCLUDED.url,
				site_url = EXCLUDED.site_url,
				folders = EXCLUDED.folders,
				updated_at = NOW()`,
			f.ID, f.Title, f.URL, f.SiteURL, pq.Array(folders))
		if err != nil {
			return fmt.Errorf("failed to upsert feed %s: %w", f.ID, err)
		}
	}
	return nil
}

// ListFeeds returns every feed ordered by id
func (s *PostgresStore) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	var rows []feedRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT id, title, url, site_url, folders, created_at, updated_at FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	feeds := make([]*models.Feed, 0, len(rows))
	for _, r := range rows {
		feeds = append(feeds, &models.Feed{
			ID:         r.ID,
			Title:      r.Title,
			URL:        r.URL,
			SiteURL:    r.SiteURL,
			Folders:    []string(r.Folders),
			Timestamps: r.Timestamps,
		})
	}
	return feeds, nil
}

// GetArticleByExternalID returns the article with its tags, or nil when unknown
func (s *PostgresStore) GetArticleByExternalID(ctx context.Context, externalID string) (*models.Article, error) {
	exec := GetExecutor(ctx, s.db)

	var a models.Article
	err := sqlx.GetContext(ctx, exec, &a,
		`SELECT `+articleColumns+` FROM articles WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	var tags []string
	err = sqlx.SelectContext(ctx, exec, &tags, `
		SELECT t.name
		FROM tags t
		INNER JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = $1
		ORDER BY t.name`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get article tags: %w", err)
	}
	a.Tags = tags
	return &a, nil
}

// SaveArticle upserts the article by external id and replaces its tag links.
// It reports whether a new row was inserted.
func (s *PostgresStore) SaveArticle(ctx context.Context, a *models.Article) (bool, error) {
	exec := GetExecutor(ctx, s.db)

	var row struct {
		ID       int64 `db:"id"`
		Inserted bool  `db:"inserted"`
	}
	err := sqlx.GetContext(ctx, exec, &row, `
		INSERT INTO articles (
			external_id, feed_id, title, author, canonical_url, published_at,
			content, content_hash, full_text, summary, decoded_title,
			is_read, is_starred, last_synced_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW()
		)
		ON CONFLICT (external_id) DO UPDATE SET
			feed_id = EXCLUDED.feed_id,
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			canonical_url = EXCLUDED.canonical_url,
			published_at = EXCLUDED.published_at,
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			full_text = EXCLUDED.full_text,
			summary = EXCLUDED.summary,
			decoded_title = EXCLUDED.decoded_title,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted`,
		a.ExternalID, a.FeedID, a.Title, a.Author, a.CanonicalURL, a.PublishedAt,
		a.Content, a.ContentHash, a.FullText, a.Summary, a.DecodedTitle,
		a.Read, a.Starred, a.LastSyncedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save article %s: %w", a.ExternalID, err)
	}
	a.ID = row.ID

	if _, err := exec.ExecContext(ctx, `DELETE FROM article_tags WHERE article_id = $1`, row.ID); err != nil {
		return false, fmt.Errorf("failed to clear article tags: %w", err)
	}
	if len(a.Tags) > 0 {
		if _, err := s.EnsureTags(ctx, a.Tags); err != nil {
			return false, err
		}
		_, err := exec.ExecContext(ctx, `
			INSERT INTO article_tags (article_id, tag_id)
			SELECT $1, id FROM tags WHERE name = ANY($2)
			ON CONFLICT DO NOTHING`, row.ID, pq.Array(a.Tags))
		if err != nil {
			return false, fmt.Errorf("failed to link article tags: %w", err)
		}
	}

	return row.Inserted, nil
}

// EnsureTags creates missing tags and returns how many were new
func (s *PostgresStore) EnsureTags(ctx context.Context, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	var created []int64
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &created, `
		INSERT INTO tags (name)
		SELECT DISTINCT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING
		RETURNING id`, pq.Array(names))
	if err != nil {
		return 0, fmt.Errorf("failed to ensure tags: %w", err)
	}
	return len(created), nil
}

// SidebarCounts returns unread counts per feed and article counts per tag
func (s *PostgresStore) SidebarCounts(ctx context.Context) ([]models.FeedCount, []models.TagCount, error) {
	exec := GetExecutor(ctx, s.db)

	var feeds []models.FeedCount
	err := sqlx.SelectContext(ctx, exec, &feeds, `
		SELECT f.id AS feed_id, f.title AS title,
			COUNT(a.id) FILTER (WHERE NOT a.is_read) AS unread
		FROM feeds f
		LEFT JOIN articles a ON a.feed_id = f.id
		GROUP BY f.id, f.title
		ORDER BY f.id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count feed articles: %w", err)
	}

	var tags []models.TagCount
	err = sqlx.SelectContext(ctx, exec, &tags, `
		SELECT t.name AS tag, COUNT(at.article_id) AS count
		FROM tags t
		LEFT JOIN article_tags at ON at.tag_id = t.id
		GROUP BY t.name
		ORDER BY t.name`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count tag articles: %w", err)
	}

	sort.Slice(feeds, func(i, j int) bool { return feeds[i].FeedID < feeds[j].FeedID })
	return feeds, tags, nil
}

// DeleteArticlesOlderThan removes read, unstarred, untagged articles last
// synced before cutoff that have no outstanding local edits
func (s *PostgresStore) DeleteArticlesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM articles a
		WHERE a.is_read
			AND NOT a.is_starred
			AND a.last_synced_at < $1
			AND NOT EXISTS (SELECT 1 FROM article_tags at WHERE at.article_id = a.id)
			AND NOT EXISTS (
				SELECT 1 FROM edit_queue e
				WHERE e.item_id = a.external_id AND e.status <> 'abandoned'
			)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune articles: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
