package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"feedkeeper/internal/domain"
)

type ImageStore struct {
	db *sqlx.DB
}

func NewImageStore(db *sqlx.DB) *ImageStore {
	return &ImageStore{db: db}
}

// GetByURL returns the most recently stored image for an exact URL, or nil
// when none exists.
func (s *ImageStore) GetByURL(ctx context.Context, url string) (*domain.Image, error) {
	query := `
		SELECT id, url, content, content_type, sha256, etag, last_modified, created_at
		FROM images
		WHERE url = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var img domain.Image
	err := s.db.GetContext(ctx, &img, query, url)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// GetBySHA256 returns any stored image whose content hash matches, or nil.
// Dedup by hash is enforced here at the application level, not by a database
// constraint.
func (s *ImageStore) GetBySHA256(ctx context.Context, sum string) (*domain.Image, error) {
	query := `
		SELECT id, url, content, content_type, sha256, etag, last_modified, created_at
		FROM images
		WHERE sha256 = $1
		ORDER BY created_at
		LIMIT 1`

	var img domain.Image
	err := s.db.GetContext(ctx, &img, query, sum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *ImageStore) Create(ctx context.Context, img *domain.Image) (int64, error) {
	query := `
		INSERT INTO images (url, content, content_type, sha256, etag, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		img.URL,
		img.Content,
		img.ContentType,
		img.SHA256,
		img.ETag,
		img.LastModified,
	).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return 0, err
	}

	return img.ID, nil
}
