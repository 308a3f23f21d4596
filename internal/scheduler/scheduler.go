package scheduler

import (
	"context"
	"log/slog"
	"time"

	"feedkeeper/internal/domain"
)

// Refresher runs one batch pass for one user.
type Refresher interface {
	RefreshFeeds(ctx context.Context, userID int64, cooldown time.Duration) (*domain.RefreshStats, error)
	RefreshImages(ctx context.Context, userID int64, cooldown time.Duration) (*domain.RefreshStats, error)
}

// UserLister enumerates the users that own feeds.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

type Config struct {
	Interval      time.Duration
	FeedCooldown  time.Duration
	ImageCooldown time.Duration
}

type Scheduler struct {
	refresher Refresher
	users     UserLister
	cfg       Config
	logger    *slog.Logger
}

func NewScheduler(refresher Refresher, users UserLister, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		users:     users,
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"feed_cooldown", s.cfg.FeedCooldown,
		"image_cooldown", s.cfg.ImageCooldown,
	)

	s.runPass(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass refreshes entries and then images for every user with feeds. The
// cooldown windows keep a pass cheap when nothing is due.
func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	userIDs, err := s.users.ListUserIDs(passCtx)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return
	}

	for _, userID := range userIDs {
		if _, err := s.refresher.RefreshFeeds(passCtx, userID, s.cfg.FeedCooldown); err != nil {
			s.logger.Error("feed refresh failed", "user_id", userID, "error", err)
		}
		if _, err := s.refresher.RefreshImages(passCtx, userID, s.cfg.ImageCooldown); err != nil {
			s.logger.Error("image refresh failed", "user_id", userID, "error", err)
		}
	}
}
