package syncer

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/feed-sync/internal/db"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/reader"
)

// OutcomeKind is what reconciling one item did to the local store
type OutcomeKind string

const (
	OutcomeInserted  OutcomeKind = "inserted"
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeUnchanged OutcomeKind = "unchanged"
)

// Outcome is the result of reconciling one item
type Outcome struct {
	Kind OutcomeKind
	// NewTags is the number of tags that did not exist locally before.
	NewTags int
}

// FolderSet holds the label names that are folders rather than tags
type FolderSet map[string]struct{}

// NewFolderSet builds a set from folder names
func NewFolderSet(names ...string) FolderSet {
	s := make(FolderSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Contains reports whether name is a folder
func (s FolderSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Reconciler merges remote items into local articles
type Reconciler struct {
	store  db.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(store db.Store, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile upserts item by its external id. Remote fields overwrite,
// nullable remote fields only backfill, enriched fields survive unless the
// content changed, and unpropagated local edits are applied on top.
func (r *Reconciler) Reconcile(ctx context.Context, item *reader.Item, folders FolderSet) (Outcome, error) {
	if err := item.Validate(); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.store.GetArticleByExternalID(ctx, item.ID)
		if err != nil {
			return err
		}

		merged := merge(existing, item, folders, r.now().UTC())

		pending, err := r.store.PendingEditsFor(ctx, item.ID)
		if err != nil {
			return err
		}
		for _, e := range pending {
			e.ApplyTo(merged)
		}

		if existing != nil && sameArticle(existing, merged) {
			out.Kind = OutcomeUnchanged
			return nil
		}

		created, err := r.store.EnsureTags(ctx, merged.Tags)
		if err != nil {
			return err
		}
		out.NewTags = created

		inserted, err := r.store.SaveArticle(ctx, merged)
		if err != nil {
			return err
		}
		if inserted {
			out.Kind = OutcomeInserted
		} else {
			out.Kind = OutcomeUpdated
		}
		return nil
	})
	if err != nil {
		return Outcome{}, r.classify(ctx, item.ID, err)
	}
	return out, nil
}

// classify turns a raw store failure into a feed-level transient error, or
// a run-fatal one when the store no longer answers at all
func (r *Reconciler) classify(ctx context.Context, itemID string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if pingErr := r.store.Ping(pingCtx); pingErr != nil {
		r.logger.WithError(pingErr).Error("Store ping failed")
		return apperrors.NewStoreUnavailableError("the local store is unavailable", err)
	}
	return apperrors.NewTransientError(fmt.Sprintf("failed to store item %s", itemID), err)
}

func merge(existing *models.Article, item *reader.Item, folders FolderSet, now time.Time) *models.Article {
	var a *models.Article
	if existing != nil {
		a = existing.Clone()
	} else {
		a = &models.Article{ExternalID: item.ID}
	}

	a.FeedID = item.FeedID()
	a.Title = item.Title

	body := item.Body()
	hash := models.HashContent(body)
	if existing != nil && existing.ContentHash != hash {
		a.FullText = nil
		a.Summary = nil
		a.DecodedTitle = nil
	}
	a.Content = body
	a.ContentHash = hash

	if item.Author != "" {
		author := item.Author
		a.Author = &author
	}
	if u := item.CanonicalURL(); u != "" {
		a.CanonicalURL = &u
	}
	if p := item.PublishedAt(); p != nil {
		a.PublishedAt = p
	}

	a.Read = item.IsRead()
	a.Starred = item.IsStarred()

	tags := []string{}
	for _, label := range item.Labels() {
		if folders.Contains(label) {
			continue
		}
		tags = append(tags, label)
	}
	a.Tags = uniqueSorted(tags)
	a.LastSyncedAt = now
	return a
}

func sameArticle(a, b *models.Article) bool {
	return a.FeedID == b.FeedID &&
		a.Title == b.Title &&
		a.ContentHash == b.ContentHash &&
		a.Read == b.Read &&
		a.Starred == b.Starred &&
		equalStringPtr(a.Author, b.Author) &&
		equalStringPtr(a.CanonicalURL, b.CanonicalURL) &&
		equalStringPtr(a.FullText, b.FullText) &&
		equalStringPtr(a.Summary, b.Summary) &&
		equalStringPtr(a.DecodedTitle, b.DecodedTitle) &&
		equalTimePtr(a.PublishedAt, b.PublishedAt) &&
		slices.Equal(uniqueSorted(a.Tags), b.Tags)
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
