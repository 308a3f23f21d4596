package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"feedkeeper/internal/domain"
)

type EntryStore struct {
	db *sqlx.DB
}

func NewEntryStore(db *sqlx.DB) *EntryStore {
	return &EntryStore{db: db}
}

// Upsert writes one entry keyed by (user_id, feed_id, guid). Re-fetching an
// already seen entry updates its mutable fields instead of erroring, which is
// what makes repeated fetches of the same feed idempotent. Returns whether the
// row was newly inserted. Runs on the transaction carried by ctx when present.
func (s *EntryStore) Upsert(ctx context.Context, entry *domain.Entry) (int64, bool, error) {
	query := `
		INSERT INTO entries (
			user_id, feed_id, guid, title, content, summary, link,
			pub_date, creator, categories
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (user_id, feed_id, guid) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			link = EXCLUDED.link,
			pub_date = EXCLUDED.pub_date,
			creator = EXCLUDED.creator,
			categories = EXCLUDED.categories,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`

	exec := GetExecutor(ctx, s.db)

	var id int64
	var inserted bool
	err := exec.QueryRowxContext(ctx, query,
		entry.UserID,
		entry.FeedID,
		entry.GUID,
		entry.Title,
		entry.Content,
		entry.Summary,
		entry.Link,
		entry.PubDate,
		entry.Creator,
		pq.Array(entry.Categories),
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, err
	}

	return id, inserted, nil
}

// ListUnread returns a user's unread entries, newest first.
func (s *EntryStore) ListUnread(ctx context.Context, userID int64) ([]domain.Entry, error) {
	query := `
		SELECT id, user_id, feed_id, guid, title, content, summary, link,
			pub_date, creator, categories, read_at, created_at, updated_at
		FROM entries
		WHERE user_id = $1 AND read_at IS NULL
		ORDER BY pub_date DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, rows.Err()
}

// CountByFeed reports how many entries a feed currently holds.
func (s *EntryStore) CountByFeed(ctx context.Context, feedID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM entries WHERE feed_id = $1", feedID)
	return n, err
}

func scanEntry(rows *sql.Rows) (*domain.Entry, error) {
	var entry domain.Entry
	var categories pq.StringArray
	err := rows.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.FeedID,
		&entry.GUID,
		&entry.Title,
		&entry.Content,
		&entry.Summary,
		&entry.Link,
		&entry.PubDate,
		&entry.Creator,
		&categories,
		&entry.ReadAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Categories = categories
	return &entry, nil
}
