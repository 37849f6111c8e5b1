package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of one immediate delivery attempt.
type Outcome struct {
	// ID is the synthesized id of the immediate post, used for logging
	// only; immediate posts are never persisted.
	ID string

	// PlatformPostID is set when delivery succeeded.
	PlatformPostID string

	// Err is set when delivery failed. It is a *PublishError when the
	// publisher classified the failure.
	Err error
}

// Engine is the caller-facing facade over the store and the publishers.
// It owns the "publish now" and "schedule for later" operations; the
// scheduler loop, not the Engine, drives delivery of scheduled posts.
type Engine struct {
	store      PostStore
	publishers PublisherSet
	transform  Transformer
	logger     *slog.Logger
}

// NewEngine creates an Engine. transform may be nil, in which case
// content is passed through unchanged.
func NewEngine(store PostStore, publishers PublisherSet, transform Transformer, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if transform == nil {
		transform = TransformerFunc(func(content, _ string) string { return content })
	}
	return &Engine{
		store:      store,
		publishers: publishers,
		transform:  transform,
		logger:     logger,
	}, nil
}

// SchedulePost persists a post for later delivery and returns its id.
// The content transform is applied once here; content is immutable
// afterwards.
func (e *Engine) SchedulePost(ctx context.Context, content, platform string, scheduledAt time.Time) (string, error) {
	if content == "" {
		return "", fmt.Errorf("schedule post: content is required")
	}
	if platform == "" {
		return "", fmt.Errorf("schedule post: platform is required")
	}

	content = e.transform.Transform(content, platform)

	id, err := e.store.Insert(ctx, content, platform, scheduledAt.UTC())
	if err != nil {
		return "", fmt.Errorf("schedule post: %w", err)
	}

	e.logger.Info("post scheduled",
		"id", id,
		"platform", platform,
		"scheduled_time", scheduledAt.UTC(),
	)
	return id, nil
}

// PublishNow delivers content to each platform immediately, bypassing
// the store, and reports the outcome per platform. No record is created;
// a failed immediate post is the caller's to retry.
func (e *Engine) PublishNow(ctx context.Context, content string, platforms []string) map[string]Outcome {
	results := make(map[string]Outcome, len(platforms))

	for _, platform := range platforms {
		id := uuid.NewString()

		pub, ok := e.publishers[platform]
		if !ok {
			e.logger.Warn("no publisher registered", "platform", platform)
			results[platform] = Outcome{
				ID:  id,
				Err: Permanent("no publisher registered for platform "+platform, nil),
			}
			continue
		}

		platformPostID, err := pub.Publish(ctx, e.transform.Transform(content, platform))
		if err != nil {
			e.logger.Error("immediate publish failed", "id", id, "platform", platform, "error", err)
			results[platform] = Outcome{ID: id, Err: err}
			continue
		}

		e.logger.Info("immediate publish succeeded", "id", id, "platform", platform, "platform_post_id", platformPostID)
		results[platform] = Outcome{ID: id, PlatformPostID: platformPostID}
	}

	return results
}

// GetPost retrieves a single post record by id.
func (e *Engine) GetPost(ctx context.Context, id string) (*Post, error) {
	return e.store.GetPost(ctx, id)
}

// ListPosts retrieves up to limit records, optionally filtered by status.
func (e *Engine) ListPosts(ctx context.Context, status Status, limit int) ([]Post, error) {
	return e.store.ListPosts(ctx, status, limit)
}
