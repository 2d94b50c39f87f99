package portal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	FeedApplications = "applications"
	FeedOrders       = "orders"
	FeedIdeas        = "ideas"
	FeedJoinRequests = "join_requests"
)

// FeedSource returns the creation times of the items listed in a feed.
type FeedSource interface {
	ItemTimes(ctx context.Context, feed string) ([]time.Time, error)
}

// FeedSourceFunc adapts a function to FeedSource.
type FeedSourceFunc func(ctx context.Context, feed string) ([]time.Time, error)

// ItemTimes implements FeedSource.
func (f FeedSourceFunc) ItemTimes(ctx context.Context, feed string) ([]time.Time, error) {
	return f(ctx, feed)
}

// NewReviewFeedSource serves feeds from the reviewable collections.
func NewReviewFeedSource(reviews Reviews) FeedSource {
	return FeedSourceFunc(func(ctx context.Context, feed string) ([]time.Time, error) {
		kind, ok := KindForFeed(feed)
		if !ok {
			return nil, newError(ErrNotFound, map[string]any{"feed": feed})
		}
		return reviews.CreatedTimes(ctx, kind)
	})
}

// Watermarks tracks when each user last viewed each feed.
type Watermarks struct {
	repo   RepositoryManager
	feeds  FeedSource
	logger Logger
	now    func() time.Time
}

// WatermarksOption customizes Watermarks.
type WatermarksOption func(*Watermarks)

// WithWatermarksClock injects a custom clock.
func WithWatermarksClock(clock func() time.Time) WatermarksOption {
	return func(w *Watermarks) {
		if clock != nil {
			w.now = clock
		}
	}
}

// WithWatermarksLogger overrides the logger used for swallowed failures.
func WithWatermarksLogger(logger Logger) WatermarksOption {
	return func(w *Watermarks) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithFeedSource overrides where feed items are read from.
func WithFeedSource(feeds FeedSource) WatermarksOption {
	return func(w *Watermarks) {
		if feeds != nil {
			w.feeds = feeds
		}
	}
}

func NewWatermarks(repo RepositoryManager, opts ...WatermarksOption) *Watermarks {
	w := &Watermarks{
		repo:   repo,
		feeds:  NewReviewFeedSource(repo.Reviews()),
		logger: defLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// MarkViewed advances the watermark for (userID, feed) to now. The stored
// value never moves backwards. Failures are logged and swallowed.
func (w *Watermarks) MarkViewed(ctx context.Context, userID uuid.UUID, feed string) {
	at := w.now().UTC()
	err := w.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := w.repo.Watermarks().AdvanceTx(ctx, tx, userID, feed, at)
		return err
	})
	if err != nil {
		w.logger.Warn("watermark write failed",
			"user_id", userID.String(),
			"feed", feed,
			"error", err,
		)
	}
}

// LastViewed returns the stored watermark, if any.
func (w *Watermarks) LastViewed(ctx context.Context, userID uuid.UUID, feed string) (time.Time, bool, error) {
	record, err := w.repo.Watermarks().Get(ctx, userID, feed)
	if err != nil {
		if HasTextCode(err, TextCodeNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return record.LastViewed, true, nil
}

// UnreadCount counts items created strictly after the watermark. With no
// watermark every item is unread.
func (w *Watermarks) UnreadCount(ctx context.Context, userID uuid.UUID, feed string, items []time.Time) (int, error) {
	last, ok, err := w.LastViewed(ctx, userID, feed)
	if err != nil {
		return 0, err
	}
	return CountAfter(items, last, ok), nil
}

// UnreadForFeed counts unread items of feed using the configured FeedSource.
func (w *Watermarks) UnreadForFeed(ctx context.Context, userID uuid.UUID, feed string) (int, error) {
	items, err := w.feeds.ItemTimes(ctx, feed)
	if err != nil {
		return 0, err
	}
	return w.UnreadCount(ctx, userID, feed, items)
}

// CountAfter counts items strictly after mark. When hasMark is false all
// items count.
func CountAfter(items []time.Time, mark time.Time, hasMark bool) int {
	if !hasMark {
		return len(items)
	}
	count := 0
	for _, item := range items {
		if item.After(mark) {
			count++
		}
	}
	return count
}
