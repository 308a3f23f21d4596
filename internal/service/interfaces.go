package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"feedkeeper/internal/domain"
)

type FeedStore interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.Feed, error)
	GetByID(ctx context.Context, id int64) (*domain.Feed, error)
	SetImage(ctx context.Context, feedID, imageID int64) error
}

type EntryStore interface {
	Upsert(ctx context.Context, entry *domain.Entry) (int64, bool, error)
}

type ImageStore interface {
	GetByURL(ctx context.Context, url string) (*domain.Image, error)
	GetBySHA256(ctx context.Context, sum string) (*domain.Image, error)
	Create(ctx context.Context, img *domain.Image) (int64, error)
}

type JobLogStore interface {
	FindRecent(ctx context.Context, name string, externalIDs []string, notOlderThan time.Duration) (map[string]domain.JobLog, error)
	Record(ctx context.Context, name, externalID string, outcome domain.JobOutcome) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, entry *domain.Entry, isNew bool) error
	Close() error
}
