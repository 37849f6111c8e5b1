package domain

import "time"

// Status is the delivery state of a scheduled post.
type Status string

const (
	// StatusPending means the post is waiting for delivery.
	StatusPending Status = "pending"

	// StatusSent means delivery was confirmed by the platform. Terminal.
	StatusSent Status = "sent"

	// StatusFailed means delivery gave up, either because a permanent
	// failure occurred or the retry ceiling was reached. Terminal.
	StatusFailed Status = "failed"
)

// Post represents a scheduled post stored in our database.
type Post struct {
	// ID uniquely identifies the record. Assigned by the store on insert,
	// or synthesized for immediate posts that are never persisted.
	ID string

	// Content is the text payload to deliver. Immutable after creation.
	Content string

	// Platform is the tag of the target service (e.g. "twitter").
	Platform string

	// ScheduledTime is when delivery becomes eligible (UTC).
	ScheduledTime time.Time

	// Status is the current delivery state.
	Status Status

	// CreatedTime is when the record was created.
	CreatedTime time.Time

	// PlatformPostID is the identifier assigned by the platform on
	// successful delivery. Empty until the post is sent; set exactly once.
	PlatformPostID string

	// RetryCount is the number of failed delivery attempts so far.
	RetryCount int
}

// Due reports whether the post is eligible for delivery at now.
func (p *Post) Due(now time.Time) bool {
	return p.Status == StatusPending && !p.ScheduledTime.After(now)
}

// Terminal reports whether the post can no longer change state.
func (p *Post) Terminal() bool {
	return p.Status == StatusSent || p.Status == StatusFailed
}
