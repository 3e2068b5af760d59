// Package tools implements the analysis operations exposed over MCP.
// Each tool composes the governed surfaces: the YouTube client for data,
// the transcript fetcher for cues, and the generation broker for model
// calls. Degradation policy lives here: past the prefer-cache threshold
// reads try the response cache before spending quota, and on budget
// exhaustion stale cache entries are served flagged as degraded rather
// than failing outright.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/efikuta/youtube-knowledge-mcp/internal/budget"
	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// Generator runs one brokered generation call.
type Generator interface {
	Generate(ctx context.Context, callerID string, req *types.GenerationRequest) (*types.GenerationResult, error)
}

// VideoAPI is the subset of the Data API client the tools consume.
type VideoAPI interface {
	SearchContent(ctx context.Context, query string, filters types.SearchFilters) ([]types.Video, error)
	ListComments(ctx context.Context, videoID string, max int) ([]types.Comment, error)
}

// TranscriptSource fetches transcripts, with a stale escape hatch.
type TranscriptSource interface {
	Get(ctx context.Context, videoID string, languages []string) (*types.Transcript, error)
	GetStale(ctx context.Context, videoID string, languages []string) (*types.Transcript, bool)
}

// Deps wires a Service.
type Deps struct {
	LLM         Generator
	Videos      VideoAPI
	Transcripts TranscriptSource
	Ledger      *budget.Ledger
	Cache       cache.Cache
	Logger      *slog.Logger
}

// Service hosts the analysis tool implementations.
type Service struct {
	llm         Generator
	videos      VideoAPI
	transcripts TranscriptSource
	ledger      *budget.Ledger
	cache       cache.Cache
	logger      *slog.Logger
}

// NewService validates the wiring. The cache is optional; without it the
// prefer-cache policy degrades to calling through.
func NewService(deps Deps) (*Service, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("tools: generator is required")
	}
	if deps.Videos == nil {
		return nil, fmt.Errorf("tools: video api is required")
	}
	if deps.Transcripts == nil {
		return nil, fmt.Errorf("tools: transcript source is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("tools: budget ledger is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		llm:         deps.LLM,
		videos:      deps.Videos,
		transcripts: deps.Transcripts,
		ledger:      deps.Ledger,
		cache:       deps.Cache,
		logger:      deps.Logger,
	}, nil
}

// SearchResult is the outcome of a video search.
type SearchResult struct {
	Videos   []types.Video `json:"videos"`
	Degraded bool          `json:"degraded,omitempty"`
}

// SearchVideos searches for content, caching result pages under the
// search category. Past the prefer-cache threshold the cache is consulted
// before spending the 100-unit search call; on budget exhaustion a stale
// page is served degraded when one exists.
func (s *Service) SearchVideos(ctx context.Context, callerID, query string, filters types.SearchFilters) (*SearchResult, error) {
	fingerprint := searchFingerprint(query, filters)

	if s.ledger.ShouldPreferCache() {
		if videos := s.cachedVideos(ctx, fingerprint); videos != nil {
			return &SearchResult{Videos: videos}, nil
		}
	}

	videos, err := s.videos.SearchContent(ctx, query, filters)
	if err != nil {
		if ytkerrors.IsBudgetDenial(err) {
			if stale := s.staleVideos(ctx, fingerprint); stale != nil {
				s.logger.Warn("serving stale search results under budget exhaustion",
					"caller_id", callerID,
					"query", query,
				)
				return &SearchResult{Videos: stale, Degraded: true}, nil
			}
		}
		return nil, err
	}

	s.storeJSON(ctx, fingerprint, videos)
	return &SearchResult{Videos: videos}, nil
}

// TranscriptResult is the outcome of a transcript fetch.
type TranscriptResult struct {
	Transcript *types.Transcript `json:"transcript"`
	Degraded   bool              `json:"degraded,omitempty"`
}

// GetTranscript returns a video transcript, falling back to a stale
// cached copy when the caption-track listing is denied by the budget.
func (s *Service) GetTranscript(ctx context.Context, callerID, videoID string, languages []string) (*TranscriptResult, error) {
	transcript, degraded, err := s.transcriptWithFallback(ctx, callerID, videoID, languages)
	if err != nil {
		return nil, err
	}
	return &TranscriptResult{Transcript: transcript, Degraded: degraded}, nil
}

func (s *Service) transcriptWithFallback(ctx context.Context, callerID, videoID string, languages []string) (*types.Transcript, bool, error) {
	transcript, err := s.transcripts.Get(ctx, videoID, languages)
	if err == nil {
		return transcript, false, nil
	}
	if !ytkerrors.IsBudgetDenial(err) {
		return nil, false, err
	}
	if stale, ok := s.transcripts.GetStale(ctx, videoID, languages); ok {
		s.logger.Warn("serving stale transcript under budget exhaustion",
			"caller_id", callerID,
			"video_id", videoID,
		)
		return stale, true, nil
	}
	return nil, false, err
}

// comments returns a video's top comments with the same cache policy as
// search, under the comments category.
func (s *Service) comments(ctx context.Context, callerID, videoID string, max int) ([]types.Comment, bool, error) {
	fingerprint := cache.Fingerprint(cache.CategoryComments, videoID, strconv.Itoa(max))

	if s.ledger.ShouldPreferCache() {
		if cached := s.cachedComments(ctx, fingerprint); cached != nil {
			return cached, false, nil
		}
	}

	comments, err := s.videos.ListComments(ctx, videoID, max)
	if err != nil {
		if ytkerrors.IsBudgetDenial(err) {
			if stale := s.staleComments(ctx, fingerprint); stale != nil {
				s.logger.Warn("serving stale comments under budget exhaustion",
					"caller_id", callerID,
					"video_id", videoID,
				)
				return stale, true, nil
			}
		}
		return nil, false, err
	}

	s.storeJSON(ctx, fingerprint, comments)
	return comments, false, nil
}

func searchFingerprint(query string, filters types.SearchFilters) string {
	payload, _ := json.Marshal(filters)
	return cache.Fingerprint(cache.CategorySearch, query, string(payload))
}

func (s *Service) cachedVideos(ctx context.Context, fingerprint string) []types.Video {
	payload := s.cachedPayload(ctx, fingerprint)
	if payload == nil {
		return nil
	}
	var videos []types.Video
	if err := json.Unmarshal(payload, &videos); err != nil {
		return nil
	}
	return videos
}

func (s *Service) staleVideos(ctx context.Context, fingerprint string) []types.Video {
	payload := s.stalePayload(ctx, fingerprint)
	if payload == nil {
		return nil
	}
	var videos []types.Video
	if err := json.Unmarshal(payload, &videos); err != nil {
		return nil
	}
	return videos
}

func (s *Service) cachedComments(ctx context.Context, fingerprint string) []types.Comment {
	payload := s.cachedPayload(ctx, fingerprint)
	if payload == nil {
		return nil
	}
	var comments []types.Comment
	if err := json.Unmarshal(payload, &comments); err != nil {
		return nil
	}
	return comments
}

func (s *Service) staleComments(ctx context.Context, fingerprint string) []types.Comment {
	payload := s.stalePayload(ctx, fingerprint)
	if payload == nil {
		return nil
	}
	var comments []types.Comment
	if err := json.Unmarshal(payload, &comments); err != nil {
		return nil
	}
	return comments
}

func (s *Service) cachedPayload(ctx context.Context, fingerprint string) []byte {
	if s.cache == nil {
		return nil
	}
	payload, err := s.cache.Get(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("cache lookup failed", "error", err)
		return nil
	}
	return payload
}

func (s *Service) stalePayload(ctx context.Context, fingerprint string) []byte {
	if s.cache == nil {
		return nil
	}
	payload, _, err := s.cache.GetStale(ctx, fingerprint)
	if err != nil {
		return nil
	}
	return payload
}

func (s *Service) storeJSON(ctx context.Context, fingerprint string, value any) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, fingerprint, payload, 0); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}
