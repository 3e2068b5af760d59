package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// SummaryResult is the outcome of summarize_video.
type SummaryResult struct {
	VideoID  string `json:"video_id"`
	Summary  string `json:"summary"`
	Language string `json:"language"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// SummarizeVideo fetches the transcript and produces a summary. style is
// one of "brief", "bullet" or "" for the default prose form.
func (s *Service) SummarizeVideo(ctx context.Context, callerID, videoID string, languages []string, style string) (*SummaryResult, error) {
	transcript, degraded, err := s.transcriptWithFallback(ctx, callerID, videoID, languages)
	if err != nil {
		return nil, err
	}

	result, err := s.llm.Generate(ctx, callerID, &types.GenerationRequest{
		System:   summarizeSystem,
		Prompt:   summarizePrompt(transcript, style),
		Shape:    types.OutputMarkdown,
		Metadata: map[string]string{"tool": "summarize_video", "video_id": videoID},
	})
	if err != nil {
		return nil, err
	}

	return &SummaryResult{
		VideoID:  videoID,
		Summary:  result.Content,
		Language: transcript.Language,
		Provider: result.Provider,
		Model:    result.Model,
		Degraded: degraded || result.Degraded,
	}, nil
}

// Chapter is one extracted chapter.
type Chapter struct {
	Start   time.Duration `json:"start"`
	Title   string        `json:"title"`
	Summary string        `json:"summary,omitempty"`
}

// ChaptersResult is the outcome of extract_chapters.
type ChaptersResult struct {
	VideoID  string    `json:"video_id"`
	Chapters []Chapter `json:"chapters"`
	Provider string    `json:"provider"`
	Degraded bool      `json:"degraded,omitempty"`
}

// ExtractChapters segments the transcript into timestamped chapters.
func (s *Service) ExtractChapters(ctx context.Context, callerID, videoID string, languages []string) (*ChaptersResult, error) {
	transcript, degraded, err := s.transcriptWithFallback(ctx, callerID, videoID, languages)
	if err != nil {
		return nil, err
	}

	result, err := s.llm.Generate(ctx, callerID, &types.GenerationRequest{
		System:   chaptersSystem,
		Prompt:   chaptersPrompt(transcript),
		Shape:    types.OutputJSON,
		Metadata: map[string]string{"tool": "extract_chapters", "video_id": videoID},
	})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Start   float64 `json:"start"`
		Title   string  `json:"title"`
		Summary string  `json:"summary"`
	}
	if err := decodeModelJSON(result, &raw); err != nil {
		return nil, err
	}

	chapters := make([]Chapter, 0, len(raw))
	for _, c := range raw {
		chapters = append(chapters, Chapter{
			Start:   time.Duration(c.Start * float64(time.Second)),
			Title:   c.Title,
			Summary: c.Summary,
		})
	}

	return &ChaptersResult{
		VideoID:  videoID,
		Chapters: chapters,
		Provider: result.Provider,
		Degraded: degraded || result.Degraded,
	}, nil
}

// TopicCluster is one topic group identified in a transcript.
type TopicCluster struct {
	Topic    string   `json:"topic"`
	Keywords []string `json:"keywords,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// TopicsResult is the outcome of cluster_topics.
type TopicsResult struct {
	VideoID  string         `json:"video_id"`
	Topics   []TopicCluster `json:"topics"`
	Provider string         `json:"provider"`
	Degraded bool           `json:"degraded,omitempty"`
}

// ClusterTopics groups the transcript content into topic clusters.
func (s *Service) ClusterTopics(ctx context.Context, callerID, videoID string, languages []string) (*TopicsResult, error) {
	transcript, degraded, err := s.transcriptWithFallback(ctx, callerID, videoID, languages)
	if err != nil {
		return nil, err
	}

	result, err := s.llm.Generate(ctx, callerID, &types.GenerationRequest{
		System:   topicsSystem,
		Prompt:   topicsPrompt(transcript),
		Shape:    types.OutputJSON,
		Metadata: map[string]string{"tool": "cluster_topics", "video_id": videoID},
	})
	if err != nil {
		return nil, err
	}

	var topics []TopicCluster
	if err := decodeModelJSON(result, &topics); err != nil {
		return nil, err
	}

	return &TopicsResult{
		VideoID:  videoID,
		Topics:   topics,
		Provider: result.Provider,
		Degraded: degraded || result.Degraded,
	}, nil
}

// SentimentResult is the outcome of analyze_sentiment.
type SentimentResult struct {
	VideoID      string   `json:"video_id"`
	Overall      string   `json:"overall"`
	Score        float64  `json:"score"`
	Themes       []string `json:"themes,omitempty"`
	CommentCount int      `json:"comment_count"`
	Provider     string   `json:"provider"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// defaultSentimentSample is how many top comments feed the analysis when
// the caller does not say.
const defaultSentimentSample = 50

// AnalyzeSentiment fetches top comments and scores their sentiment.
func (s *Service) AnalyzeSentiment(ctx context.Context, callerID, videoID string, maxComments int) (*SentimentResult, error) {
	if maxComments <= 0 {
		maxComments = defaultSentimentSample
	}

	comments, degraded, err := s.comments(ctx, callerID, videoID, maxComments)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, ytkerrors.NewNotFoundError("tools", fmt.Sprintf("video %q has no comments to analyze", videoID))
	}

	result, err := s.llm.Generate(ctx, callerID, &types.GenerationRequest{
		System:   sentimentSystem,
		Prompt:   sentimentPrompt(comments),
		Shape:    types.OutputJSON,
		Metadata: map[string]string{"tool": "analyze_sentiment", "video_id": videoID},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Overall string   `json:"overall"`
		Score   float64  `json:"score"`
		Themes  []string `json:"themes"`
	}
	if err := decodeModelJSON(result, &parsed); err != nil {
		return nil, err
	}

	return &SentimentResult{
		VideoID:      videoID,
		Overall:      parsed.Overall,
		Score:        parsed.Score,
		Themes:       parsed.Themes,
		CommentCount: len(comments),
		Provider:     result.Provider,
		Degraded:     degraded || result.Degraded,
	}, nil
}

// decodeModelJSON parses a JSON-shaped generation payload, tolerating the
// markdown fences some models wrap around it.
func decodeModelJSON(result *types.GenerationResult, into any) error {
	body := stripFences(result.Content)
	if err := json.Unmarshal([]byte(body), into); err != nil {
		return ytkerrors.NewUpstreamError(result.Provider, 0,
			fmt.Sprintf("model returned unparseable JSON: %v", err))
	}
	return nil
}
