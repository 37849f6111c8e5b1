// Package scheduler drives pending posts through delivery. A single
// polling loop queries the store for due posts, invokes the matching
// publisher for each, and records the outcome. Transient failures are
// reattempted on the next poll until the store's retry ceiling moves the
// post to failed; there is no per-record backoff beyond the fixed poll
// cadence.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/blackmichael/postpilot/internal/config"
	"github.com/blackmichael/postpilot/internal/domain"
	"github.com/blackmichael/postpilot/internal/events"
	"github.com/blackmichael/postpilot/internal/metrics"
)

// Scheduler is the sole driver of the pending to sent/failed transition.
type Scheduler struct {
	store      domain.PostStore
	publishers domain.PublisherSet
	bus        *events.Bus
	logger     *slog.Logger
	interval   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Scheduler. bus may be nil if nobody listens for delivery
// events.
func New(store domain.PostStore, publishers domain.PublisherSet, interval time.Duration, bus *events.Bus, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:      store,
		publishers: publishers,
		bus:        bus,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}
}

// Run polls for due posts until ctx is cancelled. It runs a cycle
// immediately on start and then once per poll interval. Per-record
// failures never terminate the loop; only cancellation does.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "poll_interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle processes every due post once, in scheduled-time order.
func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := s.now().UTC()
	due, err := s.store.GetDue(ctx, now)
	if err != nil {
		s.logger.Error("due query failed, skipping cycle", "error", err)
		metrics.CycleErrors.Inc()
		return
	}

	metrics.Cycles.Inc()
	if len(due) == 0 {
		return
	}

	s.logger.Info("processing due posts", "count", len(due))
	for i := range due {
		if ctx.Err() != nil {
			s.logger.Info("cancelled mid-cycle", "remaining", len(due)-i)
			return
		}
		s.deliver(ctx, &due[i])
	}
}

// deliver attempts one post and records the outcome. The attempt either
// completes and its outcome is written, or it is not started at all; a
// cancelled context surfaces as a transient failure on the next run.
func (s *Scheduler) deliver(ctx context.Context, post *domain.Post) {
	pub, ok := s.publishers[post.Platform]
	if !ok {
		s.recordFailure(ctx, post, domain.Permanent("no publisher registered for platform "+post.Platform, nil))
		return
	}

	start := time.Now()
	platformPostID, err := pub.Publish(ctx, post.Content)
	metrics.PublishDuration.WithLabelValues(post.Platform).Observe(time.Since(start).Seconds())

	if err != nil {
		s.recordFailure(ctx, post, domain.ClassifyPublishError(err))
		return
	}

	// A cancellation that lands mid-attempt must not abandon the outcome
	// write: a delivered post left pending would be posted again on the
	// next run.
	if err := s.store.MarkSent(context.WithoutCancel(ctx), post.ID, platformPostID, s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("post vanished before delivery was recorded", "id", post.ID, "platform_post_id", platformPostID)
		} else {
			s.logger.Error("failed to mark post sent", "id", post.ID, "error", err)
		}
		return
	}

	metrics.PublishAttempts.WithLabelValues(post.Platform, "sent").Inc()
	s.logger.Info("post delivered",
		"id", post.ID,
		"platform", post.Platform,
		"platform_post_id", platformPostID,
		"retry_count", post.RetryCount,
	)
	s.emit(events.DeliveryEvent{
		PostID:         post.ID,
		Platform:       post.Platform,
		Outcome:        "sent",
		PlatformPostID: platformPostID,
		Time:           s.now().UTC(),
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, post *domain.Post, perr *domain.PublishError) {
	transient := perr.Kind == domain.FailureTransient

	if transient {
		s.logger.Warn("delivery failed, will retry",
			"id", post.ID,
			"platform", post.Platform,
			"retry_count", post.RetryCount+1,
			"error", perr,
		)
	} else {
		s.logger.Error("delivery failed permanently",
			"id", post.ID,
			"platform", post.Platform,
			"error", perr,
		)
	}

	if err := s.store.MarkFailed(context.WithoutCancel(ctx), post.ID, transient); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Error("post vanished before failure was recorded", "id", post.ID)
		} else {
			s.logger.Error("failed to mark post failed", "id", post.ID, "error", err)
		}
		return
	}

	outcome := "permanent_failure"
	if transient {
		outcome = "transient_failure"
	}
	metrics.PublishAttempts.WithLabelValues(post.Platform, outcome).Inc()
	s.emit(events.DeliveryEvent{
		PostID:   post.ID,
		Platform: post.Platform,
		Outcome:  outcome,
		Detail:   perr.Detail,
		Time:     s.now().UTC(),
	})
}

func (s *Scheduler) emit(e events.DeliveryEvent) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
