// Package mcpserver exposes the analysis tools over the Model Context
// Protocol. The default transport is stdio; a streamable HTTP transport
// with JWT caller authentication is available behind configuration. A
// separate listener serves Prometheus metrics plus health and usage
// endpoints.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	"github.com/efikuta/youtube-knowledge-mcp/internal/tools"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// Transport selects how the MCP server speaks to clients.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Analyzer is the tool surface the server exposes. Implemented by
// tools.Service.
type Analyzer interface {
	SummarizeVideo(ctx context.Context, callerID, videoID string, languages []string, style string) (*tools.SummaryResult, error)
	ExtractChapters(ctx context.Context, callerID, videoID string, languages []string) (*tools.ChaptersResult, error)
	ClusterTopics(ctx context.Context, callerID, videoID string, languages []string) (*tools.TopicsResult, error)
	AnalyzeSentiment(ctx context.Context, callerID, videoID string, maxComments int) (*tools.SentimentResult, error)
	SearchVideos(ctx context.Context, callerID, query string, filters types.SearchFilters) (*tools.SearchResult, error)
	GetTranscript(ctx context.Context, callerID, videoID string, languages []string) (*tools.TranscriptResult, error)
}

// UsageSource reports the current quota state for the usage endpoint.
type UsageSource interface {
	Snapshot() types.UsageSnapshot
}

// Config holds server settings.
type Config struct {
	Transport     Transport
	Listen        string
	MetricsListen string
	JWTSecret     string

	Name    string
	Version string
}

// Server ties the MCP server, its transport, and the metrics listener
// together.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	analyzer Analyzer
	usage    UsageSource
	windows  func() []types.ProviderWindow
	logger   *slog.Logger
}

// New builds the server and registers every tool. usage and windows are
// optional; without them the usage endpoint reports an empty body.
func New(cfg Config, analyzer Analyzer, usage UsageSource, windows func() []types.ProviderWindow, logger *slog.Logger) (*Server, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("mcpserver: analyzer is required")
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.Transport == TransportHTTP && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("mcpserver: http transport requires a jwt secret")
	}
	if cfg.Name == "" {
		cfg.Name = "youtube-knowledge-mcp"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg: cfg,
		mcp: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		analyzer: analyzer,
		usage:    usage,
		windows:  windows,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves until ctx is cancelled. The metrics listener runs alongside
// whichever MCP transport is configured.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	var metricsServer *http.Server
	if s.cfg.MetricsListen != "" {
		metricsServer = &http.Server{
			Addr:              s.cfg.MetricsListen,
			Handler:           metrics.Middleware(s.metricsMux()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			s.logger.Info("metrics listener started", "addr", s.cfg.MetricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	var shutdownHTTP func(context.Context) error
	switch s.cfg.Transport {
	case TransportHTTP:
		httpServer := server.NewStreamableHTTPServer(s.mcp,
			server.WithHTTPContextFunc(httpContextFunc([]byte(s.cfg.JWTSecret))),
		)
		shutdownHTTP = httpServer.Shutdown
		go func() {
			s.logger.Info("mcp http transport started", "addr", s.cfg.Listen)
			if err := httpServer.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("mcp http transport: %w", err)
			}
		}()
	case TransportStdio:
		stdio := server.NewStdioServer(s.mcp)
		go func() {
			s.logger.Info("mcp stdio transport started")
			errCh <- stdio.Listen(ctx, os.Stdin, os.Stdout)
		}()
	default:
		return fmt.Errorf("mcpserver: unknown transport %q", s.cfg.Transport)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownHTTP != nil {
		if err := shutdownHTTP(shutdownCtx); err != nil {
			s.logger.Warn("mcp http shutdown failed", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics listener shutdown failed", "error", err)
		}
	}
	return runErr
}

func (s *Server) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/usage", s.handleUsage)
	return mux
}

type usageResponse struct {
	Quota     *types.UsageSnapshot  `json:"quota,omitempty"`
	Providers []types.ProviderWindow `json:"providers,omitempty"`
}

func (s *Server) handleUsage(w http.ResponseWriter, _ *http.Request) {
	var body usageResponse
	if s.usage != nil {
		snap := s.usage.Snapshot()
		body.Quota = &snap
	}
	if s.windows != nil {
		body.Providers = s.windows()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("usage response encoding failed", "error", err)
	}
}
