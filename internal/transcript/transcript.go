// Package transcript fetches video transcripts. Caption tracks come from
// the Data API (a 50-unit call, so results are cached for a day); the cue
// text itself comes from the timedtext endpoint, which is free but only
// serves languages the video actually has.
package transcript

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	"github.com/efikuta/youtube-knowledge-mcp/internal/youtube"
	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

const (
	// DefaultTimedTextURL serves caption cues as XML.
	DefaultTimedTextURL = "https://www.youtube.com/api/timedtext"

	// DefaultTimeout bounds one timedtext fetch.
	DefaultTimeout = 20 * time.Second

	maxTranscriptBody = 4 * 1024 * 1024
)

// TrackLister enumerates a video's caption tracks. Implemented by the
// youtube Data API client.
type TrackLister interface {
	ListCaptionTracks(ctx context.Context, videoID string) ([]youtube.CaptionTrack, error)
}

// Config holds the fetcher configuration.
type Config struct {
	TimedTextURL string        `yaml:"timedtext_url"`
	Timeout      time.Duration `yaml:"timeout"`
	// PreferredLanguages is the default language preference order when a
	// request does not state one.
	PreferredLanguages []string `yaml:"preferred_languages"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TimedTextURL:       DefaultTimedTextURL,
		Timeout:            DefaultTimeout,
		PreferredLanguages: []string{"en"},
	}
}

// Fetcher retrieves and caches transcripts.
type Fetcher struct {
	tracks     TrackLister
	cache      cache.Cache
	httpClient *http.Client
	baseURL    string
	preferred  []string
	logger     *slog.Logger
}

// NewFetcher creates a transcript fetcher. A nil cache disables caching;
// every call then pays the caption-track listing cost again.
func NewFetcher(cfg Config, tracks TrackLister, respCache cache.Cache, logger *slog.Logger) (*Fetcher, error) {
	if tracks == nil {
		return nil, fmt.Errorf("transcript: track lister is required")
	}
	if cfg.TimedTextURL == "" {
		cfg.TimedTextURL = DefaultTimedTextURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.PreferredLanguages) == 0 {
		cfg.PreferredLanguages = []string{"en"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		tracks:     tracks,
		cache:      respCache,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.TimedTextURL,
		preferred:  cfg.PreferredLanguages,
		logger:     logger,
	}, nil
}

// Get returns the transcript of videoID in the best-matching language.
// languages overrides the configured preference order when non-empty.
func (f *Fetcher) Get(ctx context.Context, videoID string, languages []string) (*types.Transcript, error) {
	if videoID == "" {
		return nil, ytkerrors.NewInvalidRequestError("transcript", "video id is required")
	}
	if len(languages) == 0 {
		languages = f.preferred
	}

	fingerprint := Fingerprint(videoID, languages)
	if cached := f.lookup(ctx, fingerprint); cached != nil {
		return cached, nil
	}

	tracks, err := f.tracks.ListCaptionTracks(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ytkerrors.NewNotFoundError("transcript", fmt.Sprintf("video %q has no caption tracks", videoID))
	}

	track := pickTrack(tracks, languages)
	transcript, err := f.fetchTimedText(ctx, videoID, track.Language)
	if err != nil {
		return nil, err
	}

	f.store(ctx, fingerprint, transcript)
	return transcript, nil
}

// GetStale returns a cached transcript even past its TTL. Used by callers
// degrading under budget exhaustion; (nil, false) when nothing is cached.
func (f *Fetcher) GetStale(ctx context.Context, videoID string, languages []string) (*types.Transcript, bool) {
	if f.cache == nil {
		return nil, false
	}
	if len(languages) == 0 {
		languages = f.preferred
	}

	payload, _, err := f.cache.GetStale(ctx, Fingerprint(videoID, languages))
	if err != nil || payload == nil {
		return nil, false
	}

	var transcript types.Transcript
	if err := json.Unmarshal(payload, &transcript); err != nil {
		return nil, false
	}
	return &transcript, true
}

// Fingerprint is the cache key for a transcript lookup.
func Fingerprint(videoID string, languages []string) string {
	return cache.Fingerprint(cache.CategoryTranscripts, videoID, strings.Join(languages, ","))
}

func (f *Fetcher) lookup(ctx context.Context, fingerprint string) *types.Transcript {
	if f.cache == nil {
		return nil
	}
	payload, err := f.cache.Get(ctx, fingerprint)
	if err != nil {
		f.logger.Warn("transcript cache lookup failed", "error", err)
		return nil
	}
	if payload == nil {
		return nil
	}
	var transcript types.Transcript
	if err := json.Unmarshal(payload, &transcript); err != nil {
		f.logger.Warn("transcript cache payload corrupt", "error", err)
		return nil
	}
	return &transcript
}

func (f *Fetcher) store(ctx context.Context, fingerprint string, transcript *types.Transcript) {
	if f.cache == nil {
		return
	}
	payload, err := json.Marshal(transcript)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, fingerprint, payload, 0); err != nil {
		f.logger.Warn("transcript cache write failed", "error", err)
	}
}

// timedTextResponse is the srv1 XML cue format.
type timedTextResponse struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Body  string  `xml:",chardata"`
}

func (f *Fetcher) fetchTimedText(ctx context.Context, videoID, lang string) (*types.Transcript, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	params.Set("fmt", "srv1")

	reqURL := fmt.Sprintf("%s?%s", f.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, ytkerrors.NewInternalError("transcript", fmt.Sprintf("build request: %v", err))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ytkerrors.NewUnavailableError("transcript", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ytkerrors.NewNotFoundError("transcript", fmt.Sprintf("no timedtext for video %q lang %q", videoID, lang))
	}
	if resp.StatusCode >= 400 {
		return nil, ytkerrors.NewUpstreamError("transcript", resp.StatusCode, fmt.Sprintf("timedtext returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBody))
	if err != nil {
		return nil, ytkerrors.NewUpstreamError("transcript", resp.StatusCode, fmt.Sprintf("read timedtext body: %v", err))
	}
	// An empty body means the track exists but has no cues in this
	// language; timedtext reports that as 200.
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ytkerrors.NewNotFoundError("transcript", fmt.Sprintf("empty timedtext for video %q lang %q", videoID, lang))
	}

	var parsed timedTextResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, ytkerrors.NewUpstreamError("transcript", resp.StatusCode, fmt.Sprintf("parse timedtext: %v", err))
	}

	segments := make([]types.TranscriptSegment, 0, len(parsed.Texts))
	for _, cue := range parsed.Texts {
		text := strings.TrimSpace(cue.Body)
		if text == "" {
			continue
		}
		segments = append(segments, types.TranscriptSegment{
			Start: time.Duration(cue.Start * float64(time.Second)),
			Dur:   time.Duration(cue.Dur * float64(time.Second)),
			Text:  text,
		})
	}

	return &types.Transcript{
		VideoID:  videoID,
		Language: lang,
		Segments: segments,
	}, nil
}
