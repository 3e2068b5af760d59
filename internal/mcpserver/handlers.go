package mcpserver

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("summarize_video",
		mcp.WithDescription("Summarize a YouTube video from its transcript."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video ID")),
		mcp.WithArray("languages", mcp.Description("Preferred transcript languages, best match wins"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("style", mcp.Description("Summary style"), mcp.Enum("brief", "bullet", "detailed")),
	), s.handleSummarize)

	s.mcp.AddTool(mcp.NewTool("extract_chapters",
		mcp.WithDescription("Extract timestamped chapters from a video transcript."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video ID")),
		mcp.WithArray("languages", mcp.Description("Preferred transcript languages"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.handleChapters)

	s.mcp.AddTool(mcp.NewTool("cluster_topics",
		mcp.WithDescription("Group the topics discussed in a video into clusters."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video ID")),
		mcp.WithArray("languages", mcp.Description("Preferred transcript languages"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.handleTopics)

	s.mcp.AddTool(mcp.NewTool("analyze_sentiment",
		mcp.WithDescription("Analyze the sentiment of a video's top comments."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video ID")),
		mcp.WithNumber("max_comments", mcp.Description("How many top comments to sample, default 50")),
	), s.handleSentiment)

	s.mcp.AddTool(mcp.NewTool("search_videos",
		mcp.WithDescription("Search YouTube for videos matching a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search terms")),
		mcp.WithNumber("max_results", mcp.Description("Result page size, reduced automatically under quota pressure")),
		mcp.WithString("channel_id", mcp.Description("Restrict results to one channel")),
		mcp.WithString("order", mcp.Description("Result ordering"), mcp.Enum("relevance", "date", "viewCount", "rating")),
		mcp.WithString("published_after", mcp.Description("RFC3339 lower bound on publish time")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("get_transcript",
		mcp.WithDescription("Fetch the transcript of a YouTube video."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video ID")),
		mcp.WithArray("languages", mcp.Description("Preferred transcript languages"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.handleTranscript)
}

func (s *Server) handleSummarize(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.SummarizeVideo(ctx, caller, videoID,
		request.GetStringSlice("languages", nil),
		request.GetString("style", ""),
	)
	return s.finish(ctx, "summarize_video", result, err)
}

func (s *Server) handleChapters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.ExtractChapters(ctx, caller, videoID,
		request.GetStringSlice("languages", nil))
	return s.finish(ctx, "extract_chapters", result, err)
}

func (s *Server) handleTopics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.ClusterTopics(ctx, caller, videoID,
		request.GetStringSlice("languages", nil))
	return s.finish(ctx, "cluster_topics", result, err)
}

func (s *Server) handleSentiment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.AnalyzeSentiment(ctx, caller, videoID,
		request.GetInt("max_comments", 0))
	return s.finish(ctx, "analyze_sentiment", result, err)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filters := types.SearchFilters{
		MaxResults: request.GetInt("max_results", 0),
		ChannelID:  request.GetString("channel_id", ""),
		Order:      request.GetString("order", ""),
	}
	if after := request.GetString("published_after", ""); after != "" {
		parsed, err := time.Parse(time.RFC3339, after)
		if err != nil {
			return mcp.NewToolResultError("published_after must be RFC3339: " + err.Error()), nil
		}
		filters.PublishedAfter = parsed
	}

	result, err := s.analyzer.SearchVideos(ctx, caller, query, filters)
	return s.finish(ctx, "search_videos", result, err)
}

func (s *Server) handleTranscript(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return mcp.NewToolResultError("unauthorized: " + err.Error()), nil
	}
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.analyzer.GetTranscript(ctx, caller, videoID,
		request.GetStringSlice("languages", nil))
	return s.finish(ctx, "get_transcript", result, err)
}

// finish converts a tool outcome into an MCP result. Domain errors are
// reported as tool errors so clients see the taxonomy type; only encoding
// failures surface as protocol errors.
func (s *Server) finish(ctx context.Context, tool string, result any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.logger.Warn("tool call failed", "tool", tool, "error", err)
		var apiErr *ytkerrors.Error
		if errors.As(err, &apiErr) {
			return mcp.NewToolResultError(apiErr.Error()), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
