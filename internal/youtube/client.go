// Package youtube is the Data API v3 client. Every operation runs through
// the budget ledger: the item count is optimized against remaining quota,
// admission is checked before the HTTP call goes out, and the fixed unit
// cost is charged only after the call fully succeeds.
package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/efikuta/youtube-knowledge-mcp/internal/budget"
	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// DefaultBaseURL is the Data API v3 endpoint.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// DefaultTimeout bounds one Data API call.
	DefaultTimeout = 30 * time.Second

	// searchMaxResults is the API's own per-page ceiling for search.list.
	searchMaxResults = 50
	// commentsMaxResults is the per-page ceiling for commentThreads.list.
	commentsMaxResults = 100

	maxErrorBody = 32 * 1024
)

// Config holds the Data API client configuration. Exactly one of APIKey or
// TokenSource must be set.
type Config struct {
	APIKey      string
	TokenSource oauth2.TokenSource
	BaseURL     string
	Timeout     time.Duration
}

// Client issues Data API calls under budget-ledger admission.
type Client struct {
	apiKey      string
	tokenSource oauth2.TokenSource
	baseURL     string
	httpClient  *http.Client
	ledger      *budget.Ledger
	logger      *slog.Logger
}

// NewClient creates a Data API client. The ledger is required; it is the
// admission authority for every call.
func NewClient(cfg Config, ledger *budget.Ledger, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" && cfg.TokenSource == nil {
		return nil, fmt.Errorf("youtube: either APIKey or TokenSource is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("youtube: budget ledger is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:      cfg.APIKey,
		tokenSource: cfg.TokenSource,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		ledger:      ledger,
		logger:      logger,
	}, nil
}

// SearchContent runs a video search. One call costs 100 units regardless of
// how many results come back, so past the throttle threshold the ledger
// clamps the page size rather than the call count.
func (c *Client) SearchContent(ctx context.Context, query string, filters types.SearchFilters) ([]types.Video, error) {
	if query == "" {
		return nil, ytkerrors.NewInvalidRequestError("youtube", "search query is required")
	}

	requested := filters.MaxResults
	if requested <= 0 || requested > searchMaxResults {
		requested = searchMaxResults
	}
	size := c.ledger.OptimizeRequestSize(budget.KindSearch, requested)
	if size == 0 {
		return nil, c.budgetDenied(budget.KindSearch)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(size))
	if filters.ChannelID != "" {
		params.Set("channelId", filters.ChannelID)
	}
	if !filters.PublishedAfter.IsZero() {
		params.Set("publishedAfter", filters.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if filters.Order != "" {
		params.Set("order", filters.Order)
	}
	if filters.Language != "" {
		params.Set("relevanceLanguage", filters.Language)
	}

	var payload searchListResponse
	if err := c.call(ctx, "search", params, &payload); err != nil {
		return nil, err
	}
	c.charge(ctx, budget.KindSearch, "search.list")

	videos := make([]types.Video, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, types.Video{
			ID:           item.ID.VideoID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			PublishedAt:  item.Snippet.PublishedAt,
		})
	}
	return videos, nil
}

// GetItemDetails fetches one video's metadata. parts defaults to snippet,
// contentDetails, and statistics.
func (c *Client) GetItemDetails(ctx context.Context, videoID string, parts []string) (*types.Video, error) {
	if videoID == "" {
		return nil, ytkerrors.NewInvalidRequestError("youtube", "video id is required")
	}
	if len(parts) == 0 {
		parts = []string{"snippet", "contentDetails", "statistics"}
	}

	if c.ledger.OptimizeRequestSize(budget.KindVideoDetails, 1) == 0 {
		return nil, c.budgetDenied(budget.KindVideoDetails)
	}

	params := url.Values{}
	params.Set("part", joinParts(parts))
	params.Set("id", videoID)

	var payload videoListResponse
	if err := c.call(ctx, "videos", params, &payload); err != nil {
		return nil, err
	}
	c.charge(ctx, budget.KindVideoDetails, "videos.list")

	if len(payload.Items) == 0 {
		return nil, ytkerrors.NewNotFoundError("youtube", fmt.Sprintf("video %q not found", videoID))
	}

	item := payload.Items[0]
	video := &types.Video{
		ID:           item.ID,
		Title:        item.Snippet.Title,
		Description:  item.Snippet.Description,
		ChannelID:    item.Snippet.ChannelID,
		ChannelTitle: item.Snippet.ChannelTitle,
		PublishedAt:  item.Snippet.PublishedAt,
		Tags:         item.Snippet.Tags,
		Duration:     parseISODuration(item.ContentDetails.Duration),
	}
	video.ViewCount = parseCount(item.Statistics.ViewCount)
	video.LikeCount = parseCount(item.Statistics.LikeCount)
	video.CommentCount = parseCount(item.Statistics.CommentCount)
	return video, nil
}

// ListComments fetches up to max top-level comments, most relevant first.
func (c *Client) ListComments(ctx context.Context, videoID string, max int) ([]types.Comment, error) {
	if videoID == "" {
		return nil, ytkerrors.NewInvalidRequestError("youtube", "video id is required")
	}
	if max <= 0 || max > commentsMaxResults {
		max = commentsMaxResults
	}

	size := c.ledger.OptimizeRequestSize(budget.KindComments, max)
	if size == 0 {
		return nil, c.budgetDenied(budget.KindComments)
	}
	if size > commentsMaxResults {
		size = commentsMaxResults
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)
	params.Set("maxResults", strconv.Itoa(size))
	params.Set("order", "relevance")
	params.Set("textFormat", "plainText")

	var payload commentThreadsResponse
	if err := c.call(ctx, "commentThreads", params, &payload); err != nil {
		return nil, err
	}
	c.charge(ctx, budget.KindComments, "commentThreads.list")

	comments := make([]types.Comment, 0, len(payload.Items))
	for _, item := range payload.Items {
		s := item.Snippet.TopLevelComment.Snippet
		comments = append(comments, types.Comment{
			ID:          item.Snippet.TopLevelComment.ID,
			Author:      s.AuthorDisplayName,
			Text:        s.TextDisplay,
			LikeCount:   s.LikeCount,
			PublishedAt: s.PublishedAt,
		})
	}
	return comments, nil
}

// CaptionTrack describes one caption track available for a video.
type CaptionTrack struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// ListCaptionTracks enumerates a video's caption tracks. At 50 units this
// is the second most expensive call in the table; the transcript layer
// caches aggressively around it.
func (c *Client) ListCaptionTracks(ctx context.Context, videoID string) ([]CaptionTrack, error) {
	if videoID == "" {
		return nil, ytkerrors.NewInvalidRequestError("youtube", "video id is required")
	}

	if c.ledger.OptimizeRequestSize(budget.KindCaptions, 1) == 0 {
		return nil, c.budgetDenied(budget.KindCaptions)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("videoId", videoID)

	var payload captionListResponse
	if err := c.call(ctx, "captions", params, &payload); err != nil {
		return nil, err
	}
	c.charge(ctx, budget.KindCaptions, "captions.list")

	tracks := make([]CaptionTrack, 0, len(payload.Items))
	for _, item := range payload.Items {
		tracks = append(tracks, CaptionTrack{
			ID:       item.ID,
			Language: item.Snippet.Language,
			Name:     item.Snippet.Name,
			Kind:     item.Snippet.TrackKind,
		})
	}
	return tracks, nil
}

// call performs one GET against endpoint with auth applied, decoding the
// success body into out.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ytkerrors.NewInternalError("youtube", fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Accept", "application/json")

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return ytkerrors.NewAuthenticationError("youtube", fmt.Sprintf("token source: %v", err))
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.YouTubeCalls.WithLabelValues(endpoint, "transport_error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ytkerrors.NewUnavailableError("youtube", err.Error())
	}
	defer resp.Body.Close()

	metrics.YouTubeCalls.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return c.mapError(endpoint, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ytkerrors.NewUpstreamError("youtube", resp.StatusCode, fmt.Sprintf("decode %s response: %v", endpoint, err))
	}
	return nil
}

// mapError converts a Data API error body into the typed taxonomy. The
// interesting distinction is upstream quota exhaustion versus transient
// rate limiting: both arrive as 403 with different reasons.
func (c *Client) mapError(endpoint string, statusCode int, body []byte) error {
	reason := gjson.GetBytes(body, "error.errors.0.reason").String()
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = fmt.Sprintf("%s returned status %d", endpoint, statusCode)
	}

	switch reason {
	case "quotaExceeded", "dailyLimitExceeded":
		return ytkerrors.NewBudgetExceededError("youtube_daily", message)
	case "rateLimitExceeded", "userRateLimitExceeded":
		return ytkerrors.NewThrottledError("youtube", message)
	case "keyInvalid", "keyExpired", "authError", "forbidden":
		return ytkerrors.NewAuthenticationError("youtube", message)
	case "commentsDisabled", "videoNotFound", "captionNotFound":
		return ytkerrors.NewNotFoundError("youtube", message)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ytkerrors.NewAuthenticationError("youtube", message)
	case statusCode == http.StatusNotFound:
		return ytkerrors.NewNotFoundError("youtube", message)
	case statusCode == http.StatusTooManyRequests:
		return ytkerrors.NewThrottledError("youtube", message)
	case statusCode == http.StatusBadRequest:
		return ytkerrors.NewInvalidRequestError("youtube", message)
	case statusCode >= 500:
		return ytkerrors.NewUpstreamError("youtube", statusCode, message)
	default:
		return ytkerrors.NewUpstreamError("youtube", statusCode, message)
	}
}

func (c *Client) budgetDenied(kind budget.RequestKind) error {
	return ytkerrors.NewBudgetExceededError("daily", fmt.Sprintf(
		"insufficient quota for %s (%d units), %d available",
		kind, kind.UnitCost(), c.ledger.AvailableUnits()))
}

// charge records the fixed unit cost after a successful call.
func (c *Client) charge(ctx context.Context, kind budget.RequestKind, label string) {
	cost := kind.UnitCost()
	c.ledger.RecordUsage(ctx, cost, label)
	metrics.YouTubeUnitsSpent.WithLabelValues(label).Add(float64(cost))
}

func joinParts(parts []string) string {
	return strings.Join(parts, ",")
}

func parseCount(raw string) uint64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseISODuration parses the API's ISO-8601 durations (PT1H2M3S). Returns
// zero on malformed input; duration is advisory metadata.
func parseISODuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	var (
		total time.Duration
		num   int64
		inT   bool
	)
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case ch >= '0' && ch <= '9':
			num = num*10 + int64(ch-'0')
		case ch == 'T':
			inT = true
			num = 0
		case ch == 'P':
			num = 0
		case ch == 'D':
			total += time.Duration(num) * 24 * time.Hour
			num = 0
		case ch == 'H':
			total += time.Duration(num) * time.Hour
			num = 0
		case ch == 'M':
			if inT {
				total += time.Duration(num) * time.Minute
			} else {
				// months are not meaningful for video lengths
				return total
			}
			num = 0
		case ch == 'S':
			total += time.Duration(num) * time.Second
			num = 0
		default:
			return 0
		}
	}
	return total
}
