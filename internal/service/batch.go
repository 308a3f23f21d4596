package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"feedkeeper/internal/domain"
)

// noImageFound is the error payload recorded when the whole image strategy
// chain comes up empty.
const noImageFound = "no image found"

// BatchService fans a job out over all of a user's feeds, skipping feeds whose
// job log record is still inside the cooldown window. One goroutine per
// eligible feed, bounded by a semaphore; a feed's failure is recorded and never
// touches its siblings, and the call returns only once every task is done.
type BatchService struct {
	feeds       FeedStore
	jobLog      JobLogStore
	fetcher     *FetcherService
	images      *ImageService
	concurrency int
	logger      *slog.Logger
}

func NewBatchService(
	feeds FeedStore,
	jobLog JobLogStore,
	fetcher *FetcherService,
	images *ImageService,
	concurrency int,
	logger *slog.Logger,
) *BatchService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchService{
		feeds:       feeds,
		jobLog:      jobLog,
		fetcher:     fetcher,
		images:      images,
		concurrency: concurrency,
		logger:      logger,
	}
}

// RefreshFeeds fetches entries for every feed of a user that has not been
// fetched within cooldown.
func (s *BatchService) RefreshFeeds(ctx context.Context, userID int64, cooldown time.Duration) (*domain.RefreshStats, error) {
	return s.run(ctx, domain.JobFetchEntries, userID, cooldown, func(ctx context.Context, feed *domain.Feed) domain.JobOutcome {
		result, err := s.fetcher.FetchFeed(ctx, feed)
		if err != nil {
			return domain.ErrOutcome(err.Error())
		}
		return domain.OKOutcome(result)
	})
}

// RefreshImages resolves images for every feed of a user that has not had an
// image resolution within cooldown. Exhausting all strategies is recorded as
// an err outcome, not a crash.
func (s *BatchService) RefreshImages(ctx context.Context, userID int64, cooldown time.Duration) (*domain.RefreshStats, error) {
	return s.run(ctx, domain.JobResolveImage, userID, cooldown, func(ctx context.Context, feed *domain.Feed) domain.JobOutcome {
		img, err := s.images.ResolveFeedImage(ctx, feed)
		if err != nil {
			return domain.ErrOutcome(err.Error())
		}
		if img == nil {
			return domain.ErrOutcome(noImageFound)
		}
		return domain.OKOutcome(img.ID)
	})
}

// FetchFeedNow fetches a single feed immediately, bypassing the cooldown
// window. The outcome still lands in the job log, which is the only place a
// fire-and-forget caller can observe completion. A concurrent batch run for
// the same feed races on the ledger row; last writer wins.
func (s *BatchService) FetchFeedNow(ctx context.Context, feedID int64) error {
	return s.runOne(ctx, domain.JobFetchEntries, feedID, func(ctx context.Context, feed *domain.Feed) domain.JobOutcome {
		result, err := s.fetcher.FetchFeed(ctx, feed)
		if err != nil {
			return domain.ErrOutcome(err.Error())
		}
		return domain.OKOutcome(result)
	})
}

// ResolveImageNow resolves a single feed's image immediately, bypassing the
// cooldown window.
func (s *BatchService) ResolveImageNow(ctx context.Context, feedID int64) error {
	return s.runOne(ctx, domain.JobResolveImage, feedID, func(ctx context.Context, feed *domain.Feed) domain.JobOutcome {
		img, err := s.images.ResolveFeedImage(ctx, feed)
		if err != nil {
			return domain.ErrOutcome(err.Error())
		}
		if img == nil {
			return domain.ErrOutcome(noImageFound)
		}
		return domain.OKOutcome(img.ID)
	})
}

func (s *BatchService) runOne(
	ctx context.Context,
	jobName string,
	feedID int64,
	action func(ctx context.Context, feed *domain.Feed) domain.JobOutcome,
) error {
	feed, err := s.feeds.GetByID(ctx, feedID)
	if err != nil {
		return fmt.Errorf("load feed %d: %w", feedID, err)
	}

	outcome := action(ctx, feed)
	if outcome.Status == domain.JobStatusErr {
		s.logger.Error("feed job failed", "job", jobName, "feed_id", feedID, "error", outcome.Error)
	}

	externalID := strconv.FormatInt(feedID, 10)
	if err := s.jobLog.Record(ctx, jobName, externalID, outcome); err != nil {
		return fmt.Errorf("record job outcome: %w", err)
	}
	return nil
}

func (s *BatchService) run(
	ctx context.Context,
	jobName string,
	userID int64,
	cooldown time.Duration,
	action func(ctx context.Context, feed *domain.Feed) domain.JobOutcome,
) (*domain.RefreshStats, error) {
	startTime := time.Now()
	logger := s.logger.With("job", jobName, "user_id", userID)

	feeds, err := s.feeds.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	externalIDs := make([]string, len(feeds))
	for i, feed := range feeds {
		externalIDs[i] = strconv.FormatInt(feed.ID, 10)
	}

	recent, err := s.jobLog.FindRecent(ctx, jobName, externalIDs, cooldown)
	if err != nil {
		return nil, fmt.Errorf("find recent job records: %w", err)
	}

	stats := &domain.RefreshStats{UserID: userID, Total: len(feeds)}

	var eligible []domain.Feed
	for i, feed := range feeds {
		if record, ok := recent[externalIDs[i]]; ok {
			logger.Debug("feed inside cooldown, skipping",
				"feed_id", feed.ID,
				"eligible_at", record.CreatedAt.Add(cooldown),
			)
			stats.Skipped++
			continue
		}
		eligible = append(eligible, feed)
	}

	logger.Info("starting batch run", "feeds", len(feeds), "eligible", len(eligible))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	sem := make(chan struct{}, s.concurrency)
	for i := range eligible {
		feed := eligible[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := action(ctx, &feed)
			if outcome.Status == domain.JobStatusErr {
				logger.Error("feed job failed", "feed_id", feed.ID, "error", outcome.Error)
			}

			externalID := strconv.FormatInt(feed.ID, 10)
			if err := s.jobLog.Record(ctx, jobName, externalID, outcome); err != nil {
				logger.Error("failed to record job outcome", "feed_id", feed.ID, "error", err)
			}

			mu.Lock()
			if outcome.Status == domain.JobStatusOK {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	stats.Duration = time.Since(startTime)

	logger.Info("batch run completed",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)

	return stats, nil
}
