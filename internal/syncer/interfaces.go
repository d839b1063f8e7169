package syncer

import (
	"context"
	"time"

	"github.com/Kamar-Folarin/feed-sync/internal/reader"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

// Remote is the subset of the reader API the sync engine depends on
type Remote interface {
	ListSubscriptions(ctx context.Context) ([]reader.Subscription, error)
	ListTags(ctx context.Context) ([]reader.Tag, error)
	UnreadCounts(ctx context.Context) ([]reader.UnreadCount, error)
	StreamContents(ctx context.Context, stream, continuation string, n int, ot time.Time) (*reader.StreamPage, error)
	EditTag(ctx context.Context, add, remove string, ids []string) error
}
