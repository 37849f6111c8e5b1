package domain

import (
	"context"
	"time"
)

// PostStore defines persistence operations for scheduled posts. All
// mutation goes through its per-record operations; no caller mutates a
// Post directly. Implementations must keep each transition atomic so
// that concurrent callers never commit conflicting outcomes for the
// same id.
type PostStore interface {
	// Insert creates a pending record with a fresh id and returns the id.
	Insert(ctx context.Context, content, platform string, scheduledAt time.Time) (string, error)

	// GetDue returns all pending records with scheduled_time <= now,
	// ordered by scheduled_time ascending. The result is a snapshot of
	// store state at call time.
	GetDue(ctx context.Context, now time.Time) ([]Post, error)

	// MarkSent transitions a pending record to sent and records the
	// platform-assigned post id. Idempotent: marking an already-sent
	// record is a no-op and never overwrites the first platform post id.
	// Returns ErrNotFound if the id is unknown.
	MarkSent(ctx context.Context, id, platformPostID string, sentAt time.Time) error

	// MarkFailed records a failed delivery attempt. With incrementRetry
	// true the retry count is bumped and the record moves to failed once
	// the configured retry ceiling is reached; with incrementRetry false
	// (permanent failure) the record moves straight to failed with the
	// retry count untouched. Returns ErrNotFound if the id is unknown.
	MarkFailed(ctx context.Context, id string, incrementRetry bool) error

	// GetPost retrieves a single record by id. Returns ErrNotFound if the
	// id is unknown.
	GetPost(ctx context.Context, id string) (*Post, error)

	// ListPosts retrieves up to limit records, newest first, optionally
	// filtered by status (empty status means all).
	ListPosts(ctx context.Context, status Status, limit int) ([]Post, error)
}

// Publisher delivers content to a single platform and returns the
// platform-assigned post id. Delivery failures should be returned as
// *PublishError so the scheduler can tell transient from permanent;
// unclassified errors are retried.
type Publisher interface {
	Publish(ctx context.Context, content string) (string, error)
}

// PublisherSet maps platform tags to their publishers.
type PublisherSet map[string]Publisher

// Transformer adjusts content for a target platform before it is
// scheduled or delivered. Implementations must be safe for concurrent
// use.
type Transformer interface {
	Transform(content, platform string) string
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(content, platform string) string

func (f TransformerFunc) Transform(content, platform string) string {
	return f(content, platform)
}
