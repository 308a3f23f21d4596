package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"feedkeeper/internal/domain"
)

// Image bodies larger than this are rejected.
const maxImageBytes = 10 << 20

// ImageService resolves a representative image for a feed by trying, in
// order: the image declared in the feed itself, the site's /favicon.ico, and
// an icon link scanned out of the site's HTML. Downloads are conditional
// (ETag/Last-Modified) and byte-identical images collapse onto one stored
// record via their content hash.
type ImageService struct {
	feeds     FeedStore
	images    ImageStore
	client    *http.Client
	parser    *gofeed.Parser
	userAgent string
	logger    *slog.Logger
}

func NewImageService(
	feeds FeedStore,
	images ImageStore,
	cfg FetchConfig,
	logger *slog.Logger,
) *ImageService {
	return &ImageService{
		feeds:     feeds,
		images:    images,
		client:    newHTTPClient(cfg),
		parser:    gofeed.NewParser(),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// ResolveFeedImage runs the strategy chain for one feed. The first strategy
// that yields an image wins and the feed's image reference is updated. A feed
// for which every strategy comes up empty resolves to nil without an error;
// only the storage write can fail.
func (s *ImageService) ResolveFeedImage(ctx context.Context, feed *domain.Feed) (*domain.Image, error) {
	logger := s.logger.With("feed_id", feed.ID)

	strategies := []struct {
		name string
		run  func(context.Context, *domain.Feed) (*domain.Image, error)
	}{
		{"feed metadata", s.imageFromFeed},
		{"site favicon", s.imageFromFaviconPath},
		{"html icon link", s.imageFromHTML},
	}

	var image *domain.Image
	for _, strategy := range strategies {
		img, err := strategy.run(ctx, feed)
		if err != nil {
			logger.Debug("image strategy failed", "strategy", strategy.name, "error", err)
			continue
		}
		if img != nil {
			logger.Debug("image resolved", "strategy", strategy.name, "image_id", img.ID)
			image = img
			break
		}
	}

	if image == nil {
		logger.Debug("no image found for feed")
		return nil, nil
	}

	if err := s.feeds.SetImage(ctx, feed.ID, image.ID); err != nil {
		return nil, fmt.Errorf("set feed image: %w", err)
	}
	return image, nil
}

// imageFromFeed re-fetches the feed document and follows its declared image
// URL, resolved against the parsed feed's link (or the feed record's link).
func (s *ImageService) imageFromFeed(ctx context.Context, feed *domain.Feed) (*domain.Image, error) {
	resp, err := s.get(ctx, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch feed content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch feed content: unexpected status %d", resp.StatusCode)
	}

	body, err := readBody(resp.Body, maxFeedBytes)
	if err != nil {
		return nil, fmt.Errorf("read feed content: %w", err)
	}

	parsed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed content: %w", err)
	}

	if parsed.Image == nil || parsed.Image.URL == "" {
		return nil, nil
	}

	baseURL := parsed.Link
	if baseURL == "" && feed.Link != nil {
		baseURL = *feed.Link
	}
	if baseURL == "" {
		return nil, fmt.Errorf("feed has no link to resolve image URL against")
	}

	imageURL, err := resolveURL(baseURL, parsed.Image.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve image URL: %w", err)
	}

	return s.downloadImage(ctx, imageURL)
}

// imageFromFaviconPath tries the conventional /favicon.ico at the site root.
func (s *ImageService) imageFromFaviconPath(ctx context.Context, feed *domain.Feed) (*domain.Image, error) {
	if feed.Link == nil || *feed.Link == "" {
		return nil, fmt.Errorf("feed has no link")
	}

	faviconURL, err := resolveURL(*feed.Link, "/favicon.ico")
	if err != nil {
		return nil, fmt.Errorf("resolve favicon URL: %w", err)
	}

	return s.downloadImage(ctx, faviconURL)
}

// imageFromHTML scans the site's HTML for a <link rel="icon"> (or
// "shortcut icon") element and downloads its target.
func (s *ImageService) imageFromHTML(ctx context.Context, feed *domain.Feed) (*domain.Image, error) {
	if feed.Link == nil || *feed.Link == "" {
		return nil, fmt.Errorf("feed has no link")
	}

	resp, err := s.get(ctx, *feed.Link, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch site: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch site: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse site html: %w", err)
	}

	href, ok := doc.Find(`link[rel="icon"]`).Attr("href")
	if !ok || href == "" {
		href, ok = doc.Find(`link[rel="shortcut icon"]`).Attr("href")
	}
	if !ok || href == "" {
		return nil, fmt.Errorf("no icon link in site html")
	}

	iconURL, err := resolveURL(*feed.Link, href)
	if err != nil {
		return nil, fmt.Errorf("resolve icon URL: %w", err)
	}

	return s.downloadImage(ctx, iconURL)
}

// downloadImage fetches a URL conditionally against any image already stored
// for it. A 304 returns the stored image untouched. Fresh bytes are hashed
// first; a hash hit reuses the existing record so byte-identical images
// fetched from different URLs converge on one row.
func (s *ImageService) downloadImage(ctx context.Context, imageURL string) (*domain.Image, error) {
	existing, err := s.images.GetByURL(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("look up image by URL: %w", err)
	}

	headers := http.Header{}
	if existing != nil {
		if existing.ETag != nil {
			headers.Set("If-None-Match", *existing.ETag)
		}
		if existing.LastModified != nil {
			headers.Set("If-Modified-Since", *existing.LastModified)
		}
	}

	resp, err := s.get(ctx, imageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return existing, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("not an image: content type %q", contentType)
	}

	body, err := readBody(resp.Body, maxImageBytes)
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}

	sum := sha256.Sum256(body)
	sumHex := hex.EncodeToString(sum[:])

	same, err := s.images.GetBySHA256(ctx, sumHex)
	if err != nil {
		return nil, fmt.Errorf("look up image by hash: %w", err)
	}
	if same != nil {
		return same, nil
	}

	img := &domain.Image{
		URL:         resp.Request.URL.String(),
		Content:     body,
		ContentType: contentType,
		SHA256:      sumHex,
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		img.ETag = &etag
	}
	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		img.LastModified = &lastModified
	}

	if _, err := s.images.Create(ctx, img); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	return img, nil
}

func (s *ImageService) get(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", s.userAgent)
	return s.client.Do(req)
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	resolved, err := baseURL.Parse(ref)
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}
