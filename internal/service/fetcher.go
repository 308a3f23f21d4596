package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"feedkeeper/internal/dateutil"
	"feedkeeper/internal/domain"
)

// Feeds larger than this are rejected before parsing.
const maxFeedBytes = 5 << 20

// FetchConfig holds HTTP behavior shared by the fetch and image paths.
type FetchConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

func newHTTPClient(cfg FetchConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
}

// readBody reads a response body of at most limit bytes. A body that exceeds
// the limit is an error, never a silently truncated prefix.
func readBody(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}

// FetchResult summarizes one feed fetch, and is what the job ledger stores as
// the success payload.
type FetchResult struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// FetcherService downloads one feed, parses its items and upserts them as
// entries.
type FetcherService struct {
	entries   EntryStore
	txManager TransactionManager
	publisher Publisher
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	logger    *slog.Logger
}

func NewFetcherService(
	entries EntryStore,
	txManager TransactionManager,
	publisher Publisher,
	cfg FetchConfig,
	logger *slog.Logger,
) *FetcherService {
	return &FetcherService{
		entries:   entries,
		txManager: txManager,
		publisher: publisher,
		client:    newHTTPClient(cfg),
		parser:    gofeed.NewParser(),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// FetchFeed downloads feed.URL, parses it and upserts every usable item as an
// entry keyed by (user, feed, guid). All upserts for the feed commit as one
// transaction. A non-2xx response fails the whole feed.
func (s *FetcherService) FetchFeed(ctx context.Context, feed *domain.Feed) (*FetchResult, error) {
	logger := s.logger.With("feed_id", feed.ID, "url", feed.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed %d (%s): unexpected status %d", feed.ID, feed.URL, resp.StatusCode)
	}

	body, err := readBody(resp.Body, maxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	parsed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	result := &FetchResult{}
	entries := make([]domain.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, ok := s.buildEntry(feed, item, logger)
		if !ok {
			result.Skipped++
			continue
		}
		entries = append(entries, *entry)
	}

	inserted := make([]bool, len(entries))
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range entries {
			id, isNew, err := s.entries.Upsert(txCtx, &entries[i])
			if err != nil {
				return fmt.Errorf("upsert entry %q: %w", entries[i].GUID, err)
			}
			entries[i].ID = id
			inserted[i] = isNew
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if inserted[i] {
			result.New++
		} else {
			result.Updated++
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, &entries[i], inserted[i]); err != nil {
			logger.Warn("failed to publish entry event", "guid", entries[i].GUID, "error", err)
		}
	}

	logger.Info("feed fetched",
		"new", result.New,
		"updated", result.Updated,
		"skipped", result.Skipped,
	)

	return result, nil
}

// buildEntry converts a parsed item into an entry. Items without a title or a
// resolvable publish time are dropped.
func (s *FetcherService) buildEntry(feed *domain.Feed, item *gofeed.Item, logger *slog.Logger) (*domain.Entry, bool) {
	if item.Title == "" {
		logger.Warn("entry with no title, skipping")
		return nil, false
	}

	pubDate, ok := itemPubDate(item)
	if !ok {
		logger.Warn("entry has no usable publish date, skipping", "title", item.Title)
		return nil, false
	}

	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}

	entry := &domain.Entry{
		UserID:     feed.UserID,
		FeedID:     feed.ID,
		GUID:       guid,
		Title:      item.Title,
		Summary:    item.Description,
		PubDate:    pubDate,
		Categories: item.Categories,
	}
	if entry.Categories == nil {
		entry.Categories = []string{}
	}
	if item.Content != "" {
		entry.Content = &item.Content
	}
	if item.Link != "" {
		entry.Link = &item.Link
	}
	if creator := itemCreator(item); creator != "" {
		entry.Creator = &creator
	}

	return entry, true
}

// itemPubDate resolves an item's publish time. When the parser could not make
// sense of the raw date string, the string is normalized (feeds in some
// locales spell out day and month names) and parsed again.
func itemPubDate(item *gofeed.Item) (time.Time, bool) {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed, true
	}
	if item.Published != "" {
		if t, err := dateutil.ParsePubDate(item.Published); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func itemCreator(item *gofeed.Item) string {
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator[0]
	}
	if item.Author != nil {
		return item.Author.Name
	}
	return ""
}
