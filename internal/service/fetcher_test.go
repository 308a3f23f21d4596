package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feedkeeper/internal/domain"
	"feedkeeper/internal/service/mocks"
)

const rssHeader = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
<title>Example Feed</title>
<link>https://example.com</link>
`

const rssFooter = `</channel>
</rss>`

func rssItem(title, link, guid, pubDate string) string {
	var sb strings.Builder
	sb.WriteString("<item>")
	if title != "" {
		sb.WriteString("<title>" + title + "</title>")
	}
	if link != "" {
		sb.WriteString("<link>" + link + "</link>")
	}
	if guid != "" {
		sb.WriteString("<guid>" + guid + "</guid>")
	}
	if pubDate != "" {
		sb.WriteString("<pubDate>" + pubDate + "</pubDate>")
	}
	sb.WriteString("<description>summary text</description>")
	sb.WriteString("<dc:creator>alice</dc:creator>")
	sb.WriteString("<category>tech</category>")
	sb.WriteString("</item>\n")
	return sb.String()
}

type FetcherServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	entries   *mocks.MockEntryStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *FetcherService
}

func (s *FetcherServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.entries = mocks.NewMockEntryStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = NewFetcherService(s.entries, s.txManager, s.publisher, FetchConfig{
		UserAgent:    "feedkeeper-test/1.0",
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
	}, logger)
}

func (s *FetcherServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestFetcherServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FetcherServiceTestSuite))
}

func (s *FetcherServiceTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *FetcherServiceTestSuite) serveFeed(body string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("feedkeeper-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	s.T().Cleanup(srv.Close)
	return srv
}

func (s *FetcherServiceTestSuite) TestFetchFeed_StoresValidItems() {
	body := rssHeader +
		rssItem("First", "https://example.com/1", "guid-1", "Mon, 02 Jan 2006 15:04:05 GMT") +
		rssItem("Second", "https://example.com/2", "", "Tue, 03 Jan 2006 15:04:05 GMT") +
		rssFooter
	srv := s.serveFeed(body)

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()

	var stored []domain.Entry
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.Entry) (int64, bool, error) {
			stored = append(stored, *entry)
			return int64(len(stored)), true, nil
		},
	).Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(2)

	result, err := s.service.FetchFeed(context.Background(), feed)

	s.NoError(err)
	s.Equal(2, result.New)
	s.Equal(0, result.Updated)
	s.Equal(0, result.Skipped)

	s.Require().Len(stored, 2)
	s.Equal("guid-1", stored[0].GUID)
	s.Equal(int64(3), stored[0].UserID)
	s.Equal(int64(7), stored[0].FeedID)
	s.Equal("First", stored[0].Title)
	s.Equal("summary text", stored[0].Summary)
	s.Require().NotNil(stored[0].Creator)
	s.Equal("alice", *stored[0].Creator)
	s.Equal([]string{"tech"}, stored[0].Categories)

	// Guid falls back to the link when the source omits it.
	s.Equal("https://example.com/2", stored[1].GUID)
}

func (s *FetcherServiceTestSuite) TestFetchFeed_SkipsItemsWithoutTitleOrDate() {
	body := rssHeader +
		rssItem("", "https://example.com/untitled", "guid-u", "Mon, 02 Jan 2006 15:04:05 GMT") +
		rssItem("Dateless", "https://example.com/dateless", "guid-d", "") +
		rssItem("Garbage date", "https://example.com/garbage", "guid-g", "sometime last week, probably") +
		rssItem("Valid", "https://example.com/valid", "guid-v", "Mon, 02 Jan 2006 15:04:05 GMT") +
		rssFooter
	srv := s.serveFeed(body)

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.Entry) (int64, bool, error) {
			s.Equal("guid-v", entry.GUID)
			return 1, true, nil
		},
	)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	result, err := s.service.FetchFeed(context.Background(), feed)

	s.NoError(err)
	s.Equal(1, result.New)
	s.Equal(3, result.Skipped)
}

func (s *FetcherServiceTestSuite) TestFetchFeed_NormalizesLocaleDates() {
	body := rssHeader +
		rssItem("Localized", "https://example.com/l", "guid-l", "週三, 15 一月 2025 08:30:00 +0000") +
		rssFooter
	srv := s.serveFeed(body)

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.Entry) (int64, bool, error) {
			s.Equal(time.Date(2025, time.January, 15, 8, 30, 0, 0, time.UTC), entry.PubDate.UTC())
			return 1, true, nil
		},
	)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	result, err := s.service.FetchFeed(context.Background(), feed)

	s.NoError(err)
	s.Equal(1, result.New)
	s.Equal(0, result.Skipped)
}

func (s *FetcherServiceTestSuite) TestFetchFeed_RefetchUpdatesInsteadOfDuplicating() {
	body := rssHeader +
		rssItem("First", "https://example.com/1", "guid-1", "Mon, 02 Jan 2006 15:04:05 GMT") +
		rssFooter
	srv := s.serveFeed(body)

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(1), true, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil)

	first, err := s.service.FetchFeed(context.Background(), feed)
	s.NoError(err)
	s.Equal(1, first.New)

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(1), false, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), false).Return(nil)

	second, err := s.service.FetchFeed(context.Background(), feed)
	s.NoError(err)
	s.Equal(0, second.New)
	s.Equal(1, second.Updated)
}

func (s *FetcherServiceTestSuite) TestFetchFeed_ManyItems() {
	var sb strings.Builder
	sb.WriteString(rssHeader)
	for i := 0; i < 30; i++ {
		sb.WriteString(rssItem(
			fmt.Sprintf("Item %d", i),
			fmt.Sprintf("https://example.com/%d", i),
			fmt.Sprintf("guid-%d", i),
			"Mon, 02 Jan 2006 15:04:05 GMT",
		))
	}
	sb.WriteString(rssFooter)
	srv := s.serveFeed(sb.String())

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(1), true, nil).Times(30)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(nil).Times(30)

	result, err := s.service.FetchFeed(context.Background(), feed)

	s.NoError(err)
	s.Equal(30, result.New)
	s.Equal(0, result.Skipped)
}

func (s *FetcherServiceTestSuite) TestFetchFeed_NonSuccessStatusFailsWholeFeed() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	_, err := s.service.FetchFeed(context.Background(), feed)

	s.Error(err)
	s.Contains(err.Error(), "unexpected status 500")
}

func (s *FetcherServiceTestSuite) TestFetchFeed_OversizeBodyFailsWholeFeed() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssHeader)
		w.Write(bytes.Repeat([]byte(" "), maxFeedBytes+1))
	}))
	defer srv.Close()

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	_, err := s.service.FetchFeed(context.Background(), feed)

	s.Error(err)
	s.Contains(err.Error(), "read feed")
	s.Contains(err.Error(), "exceeds")
}

func (s *FetcherServiceTestSuite) TestFetchFeed_PublishFailureDoesNotFailFetch() {
	body := rssHeader +
		rssItem("First", "https://example.com/1", "guid-1", "Mon, 02 Jan 2006 15:04:05 GMT") +
		rssFooter
	srv := s.serveFeed(body)

	feed := &domain.Feed{ID: 7, UserID: 3, URL: srv.URL}

	s.expectTransaction()
	s.entries.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(int64(1), true, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), true).Return(fmt.Errorf("broker down"))

	result, err := s.service.FetchFeed(context.Background(), feed)

	s.NoError(err)
	s.Equal(1, result.New)
}
