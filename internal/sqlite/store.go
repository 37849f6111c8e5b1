package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackmichael/postpilot/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		platform TEXT NOT NULL,
		scheduled_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_time TIMESTAMP NOT NULL,
		platform_post_id TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_posts_due ON posts (status, scheduled_time);`

// Store implements domain.PostStore using SQLite. Every state
// transition is a single conditional UPDATE guarded on the current
// status, so terminal records never regress and concurrent callers
// cannot commit conflicting outcomes for the same id.
type Store struct {
	db *sql.DB

	// maxRetries is the retry ceiling for transient failures. Once a
	// record's retry count reaches it, MarkFailed moves the record to
	// failed instead of leaving it pending.
	maxRetries int
}

// NewStore opens (or creates) the SQLite database at path, initializes
// the schema, and returns a new Store. The caller should call Close when
// the store is no longer needed.
func NewStore(path string, maxRetries int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection also
	// keeps :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, maxRetries: maxRetries}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert creates a new pending post and returns its id.
func (s *Store) Insert(ctx context.Context, content, platform string, scheduledAt time.Time) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, content, platform, scheduled_time, status, created_time, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id,
		content,
		platform,
		scheduledAt.UTC(),
		domain.StatusPending,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}

	return id, nil
}

// GetDue returns all pending posts whose scheduled time has passed,
// earliest first.
func (s *Store) GetDue(ctx context.Context, now time.Time) ([]domain.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, platform, scheduled_time, status, created_time, platform_post_id, retry_count
		FROM posts
		WHERE status = ? AND scheduled_time <= ?
		ORDER BY scheduled_time ASC`,
		domain.StatusPending, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// MarkSent transitions a pending post to sent and records the
// platform-assigned post id. Marking an already-sent post is a no-op.
func (s *Store) MarkSent(ctx context.Context, id, platformPostID string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET status = ?, platform_post_id = ?
		WHERE id = ? AND status = ?`,
		domain.StatusSent, platformPostID, id, domain.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark sent: rows affected: %w", err)
	} else if n == 1 {
		return nil
	}

	// Nothing updated: the id is unknown or the post is already terminal.
	status, err := s.getStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	if status == domain.StatusSent {
		return nil
	}
	return fmt.Errorf("mark sent %s: post is already %s", id, status)
}

// MarkFailed records a failed delivery attempt. With incrementRetry true
// the retry count is bumped and the post moves to failed once the retry
// ceiling is reached; with incrementRetry false the post moves straight
// to failed. Marking an already-failed post is a no-op.
func (s *Store) MarkFailed(ctx context.Context, id string, incrementRetry bool) error {
	var (
		res sql.Result
		err error
	)

	if incrementRetry {
		res, err = s.db.ExecContext(ctx, `
			UPDATE posts SET
				retry_count = retry_count + 1,
				status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE status END
			WHERE id = ? AND status = ?`,
			s.maxRetries, domain.StatusFailed, id, domain.StatusPending,
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE posts SET status = ?
			WHERE id = ? AND status = ?`,
			domain.StatusFailed, id, domain.StatusPending,
		)
	}
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark failed: rows affected: %w", err)
	} else if n == 1 {
		return nil
	}

	status, err := s.getStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	if status == domain.StatusFailed {
		return nil
	}
	return fmt.Errorf("mark failed %s: post is already %s", id, status)
}

// GetPost retrieves a single post by id.
func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, platform, scheduled_time, status, created_time, platform_post_id, retry_count
		FROM posts
		WHERE id = ?`,
		id,
	)

	p, err := scanPost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// ListPosts retrieves up to limit posts, newest first, optionally
// filtered by status.
func (s *Store) ListPosts(ctx context.Context, status domain.Status, limit int) ([]domain.Post, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if status != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, content, platform, scheduled_time, status, created_time, platform_post_id, retry_count
			FROM posts
			WHERE status = ?
			ORDER BY created_time DESC
			LIMIT ?`,
			status, limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, content, platform, scheduled_time, status, created_time, platform_post_id, retry_count
			FROM posts
			ORDER BY created_time DESC
			LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query posts (status=%q, limit=%d): %w", status, limit, err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

func (s *Store) getStatus(ctx context.Context, id string) (domain.Status, error) {
	var status domain.Status
	err := s.db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query status: %w", err)
	}
	return status, nil
}

func scanPosts(rows *sql.Rows) ([]domain.Post, error) {
	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(scan func(dest ...any) error) (*domain.Post, error) {
	var (
		p              domain.Post
		platformPostID sql.NullString
	)
	err := scan(
		&p.ID,
		&p.Content,
		&p.Platform,
		&p.ScheduledTime,
		&p.Status,
		&p.CreatedTime,
		&platformPostID,
		&p.RetryCount,
	)
	if err != nil {
		return nil, err
	}
	p.PlatformPostID = platformPostID.String
	return &p, nil
}
