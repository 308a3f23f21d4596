package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"feedkeeper/internal/domain"
)

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) ListByUser(ctx context.Context, userID int64) ([]domain.Feed, error) {
	query := `
		SELECT id, user_id, category_id, title, url, link, image_id, created_at, updated_at
		FROM feeds
		WHERE user_id = $1
		ORDER BY id`

	var feeds []domain.Feed
	err := s.db.SelectContext(ctx, &feeds, query, userID)
	return feeds, err
}

func (s *FeedStore) GetByID(ctx context.Context, id int64) (*domain.Feed, error) {
	query := `
		SELECT id, user_id, category_id, title, url, link, image_id, created_at, updated_at
		FROM feeds
		WHERE id = $1`

	var feed domain.Feed
	if err := s.db.GetContext(ctx, &feed, query, id); err != nil {
		return nil, err
	}
	return &feed, nil
}

// ListUserIDs returns the distinct owners of all feeds, for scheduler sweeps.
func (s *FeedStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, "SELECT DISTINCT user_id FROM feeds ORDER BY user_id")
	return ids, err
}

func (s *FeedStore) SetImage(ctx context.Context, feedID, imageID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE feeds SET image_id = $1, updated_at = NOW() WHERE id = $2",
		imageID, feedID,
	)
	return err
}
