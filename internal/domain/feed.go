package domain

import "time"

type Feed struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	CategoryID int64     `db:"category_id"`
	Title      string    `db:"title"`
	URL        string    `db:"url"`
	Link       *string   `db:"link"`
	ImageID    *int64    `db:"image_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type Entry struct {
	ID         int64
	UserID     int64
	FeedID     int64
	GUID       string
	Title      string
	Content    *string
	Summary    string
	Link       *string
	PubDate    time.Time
	Creator    *string
	Categories []string
	ReadAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Image struct {
	ID           int64     `db:"id"`
	URL          string    `db:"url"`
	Content      []byte    `db:"content"`
	ContentType  string    `db:"content_type"`
	SHA256       string    `db:"sha256"`
	ETag         *string   `db:"etag"`
	LastModified *string   `db:"last_modified"`
	CreatedAt    time.Time `db:"created_at"`
}
