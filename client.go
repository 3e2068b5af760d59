package ytkmcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/efikuta/youtube-knowledge-mcp/internal/cache"
	"github.com/efikuta/youtube-knowledge-mcp/internal/guard"
	"github.com/efikuta/youtube-knowledge-mcp/internal/metrics"
	"github.com/efikuta/youtube-knowledge-mcp/internal/observability"
	"github.com/efikuta/youtube-knowledge-mcp/internal/provider/providers"
	"github.com/efikuta/youtube-knowledge-mcp/internal/ratelimit"
	"github.com/efikuta/youtube-knowledge-mcp/internal/schedule"
	"github.com/efikuta/youtube-knowledge-mcp/internal/tokenizer"
	ytkerrors "github.com/efikuta/youtube-knowledge-mcp/pkg/errors"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/provider"
	"github.com/efikuta/youtube-knowledge-mcp/pkg/types"
)

// maxErrorBody caps how much of a provider error response gets read for
// error mapping.
const maxErrorBody = 64 * 1024

// Client brokers generation requests across the configured provider chain.
// One request runs at most one pass over the chain in priority order,
// charging at most one provider.
type Client struct {
	registry  *provider.Registry
	tracker   *ratelimit.Tracker
	guard     *guard.Guard
	cache     Cache
	callbacks *observability.CallbackManager
	tracer    trace.Tracer

	httpClient *http.Client
	backoff    Strategy
	logger     *slog.Logger
	config     *ClientConfig

	scheduler *schedule.Runner
}

// New creates a broker client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for name, factory := range providers.Factories {
		cfg.Factories[name] = factory
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		registry: provider.NewRegistry(),
		backoff:  cfg.Backoff,
		logger:   cfg.Logger,
		config:   cfg,
	}

	c.scheduler = schedule.NewRunner(cfg.Logger, schedule.SystemClock())
	c.tracker = ratelimit.NewTracker(cfg.TrackerConfig, c.scheduler, cfg.Logger)
	if !cfg.GuardDisabled {
		c.guard = guard.NewGuard(cfg.GuardConfig, c.scheduler, cfg.Logger)
	}

	c.httpClient = cfg.HTTPClient
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	c.cache = cfg.Cache
	c.callbacks = cfg.Callbacks
	if c.callbacks == nil {
		c.callbacks = observability.NewCallbackManager(cfg.Logger)
	}
	c.tracer = cfg.Tracer
	if c.tracer == nil {
		c.tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}

	for _, setup := range cfg.Providers {
		prov := setup.instance
		if prov == nil {
			factory, ok := cfg.Factories[setup.descriptor.Name]
			if !ok {
				c.close()
				return nil, fmt.Errorf("no factory for provider %q", setup.descriptor.Name)
			}
			var err error
			prov, err = factory(*setup.config)
			if err != nil {
				c.close()
				return nil, fmt.Errorf("build provider %s: %w", setup.descriptor.Name, err)
			}
		}
		if err := c.registry.Register(setup.descriptor, prov); err != nil {
			c.close()
			return nil, err
		}
		c.tracker.Register(setup.descriptor.Name, ratelimit.Limits{
			RequestsPerWindow:  setup.descriptor.RequestLimitPerWindow,
			SizeUnitsPerWindow: setup.descriptor.SizeUnitLimitPerWindow,
		})
	}

	c.logger.Info("generation broker initialized",
		"providers", c.registry.Names(),
		"cache_enabled", c.cache != nil,
		"guard_enabled", c.guard != nil,
	)

	return c, nil
}

// Generate runs one generation request through admission, cache, and the
// provider chain. callerID attributes usage to a caller for quota purposes;
// empty means anonymous.
func (c *Client) Generate(ctx context.Context, callerID string, req *types.GenerationRequest) (*types.GenerationResult, error) {
	if req == nil {
		return nil, ytkerrors.NewInvalidRequestError("", "request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, ytkerrors.NewInvalidRequestError("", err.Error())
	}
	if callerID == "" {
		callerID = "anonymous"
	}

	ctx, requestID := observability.GetOrCreateRequestID(ctx)
	start := time.Now()

	event := &observability.GenerationEvent{
		RequestID: requestID,
		CallerID:  callerID,
		ModelHint: req.ModelHint,
		StartTime: start,
		Metadata:  req.Metadata,
	}

	ctx, span := c.tracer.Start(ctx, "generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	estimate := tokenizer.EstimateRequestUnits(req.ModelHint, req)
	event.EstimatedUnits = int(estimate)

	if c.guard != nil {
		if err := c.guard.Admit(callerID, estimate); err != nil {
			c.logger.Warn("caller admission refused",
				"request_id", requestID,
				"caller_id", callerID,
				"estimated_units", estimate,
			)
			return nil, c.finishFailure(ctx, span, event, err)
		}
	}

	fingerprint := generationFingerprint(req)
	if c.cache != nil {
		if result := c.lookupCache(ctx, fingerprint); result != nil {
			result.LatencyMs = time.Since(start).Milliseconds()
			c.logger.Debug("generation served from cache",
				"request_id", requestID,
				"fingerprint", fingerprint,
			)
			c.finishSuccess(ctx, span, event, result)
			return result, nil
		}
	}

	result, err := c.iterate(ctx, callerID, req, estimate, event)
	if err != nil {
		return nil, c.finishFailure(ctx, span, event, err)
	}

	if c.cache != nil {
		c.storeInCache(ctx, fingerprint, result)
	}
	c.finishSuccess(ctx, span, event, result)
	return result, nil
}

// iterate walks the provider chain in priority order. It returns the first
// successful result, a fatal error, or an aggregate error after exhaustion.
func (c *Client) iterate(
	ctx context.Context,
	callerID string,
	req *types.GenerationRequest,
	estimate int64,
	event *observability.GenerationEvent,
) (*types.GenerationResult, error) {
	var (
		attempts     []ytkerrors.Attempt
		failures     int
		delayPending bool
	)

	for _, entry := range c.registry.ByPriority() {
		name := entry.Descriptor.Name
		model := entry.Provider.Model(req.ModelHint)

		if !c.tracker.CanUse(name, estimate) {
			metrics.ProviderSkips.WithLabelValues(name, "rate_limited").Inc()
			attempts = append(attempts, ytkerrors.Attempt{
				Provider: name,
				Skipped:  true,
				Reason:   "rate window exhausted",
			})
			event.Attempts = append(event.Attempts, observability.AttemptRecord{
				Provider: name,
				Model:    model,
				Skipped:  true,
				Reason:   "rate_limited",
			})
			c.logger.Debug("provider skipped by rate window",
				"request_id", event.RequestID,
				"provider", name,
				"estimated_units", estimate,
			)
			continue
		}

		if delayPending {
			delay := c.backoff(failures)
			if delay > 0 {
				metrics.BackoffDelays.Observe(delay.Seconds())
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			delayPending = false
		}

		result, err := c.executeAttempt(ctx, entry, model, req)
		if err == nil {
			actual := int64(result.Usage.TotalUnits)
			c.tracker.RecordUse(name, actual)
			if c.guard != nil {
				c.guard.RecordUsage(callerID, actual)
			}
			event.Attempts = append(event.Attempts, observability.AttemptRecord{
				Provider:  name,
				Model:     result.Model,
				LatencyMs: result.LatencyMs,
			})
			c.logger.Info("generation complete",
				"request_id", event.RequestID,
				"provider", name,
				"model", result.Model,
				"total_units", result.Usage.TotalUnits,
				"latency_ms", result.LatencyMs,
			)
			return result, nil
		}

		failures++
		reason := errorType(err)
		attempts = append(attempts, ytkerrors.Attempt{
			Provider: name,
			Reason:   reason,
			Err:      err,
		})
		event.Attempts = append(event.Attempts, observability.AttemptRecord{
			Provider: name,
			Model:    model,
			Reason:   reason,
		})

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !ytkerrors.IsRetryable(err) {
			c.logger.Warn("provider returned fatal error, aborting fallback",
				"request_id", event.RequestID,
				"provider", name,
				"error", err,
			)
			return nil, err
		}

		c.logger.Warn("provider attempt failed, continuing",
			"request_id", event.RequestID,
			"provider", name,
			"attempt", failures,
			"error", err,
		)
		delayPending = true
	}

	return nil, &ytkerrors.AggregateError{Attempts: attempts}
}

// executeAttempt runs one provider call under the descriptor's deadline.
func (c *Client) executeAttempt(
	ctx context.Context,
	entry provider.Entry,
	model string,
	req *types.GenerationRequest,
) (*types.GenerationResult, error) {
	timeout := entry.Descriptor.Timeout
	if timeout <= 0 {
		timeout = c.config.DefaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	creativity := 0.0
	if req.Creativity != nil {
		creativity = *req.Creativity
	}
	attemptCtx, span := observability.StartGenerationSpan(attemptCtx, c.tracer, "generate_attempt",
		observability.GenerationSpanAttributes{
			Provider:       entry.Descriptor.Name,
			Model:          model,
			MaxOutputUnits: req.MaxOutputUnits,
			Creativity:     creativity,
		})
	defer span.End()

	start := time.Now()

	httpReq, err := entry.Provider.BuildRequest(attemptCtx, req)
	if err != nil {
		err = ytkerrors.NewInternalError(entry.Descriptor.Name, fmt.Sprintf("build request: %v", err))
		observability.RecordError(span, err)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		mapped := classifyTransportError(ctx, entry.Descriptor.Name, err)
		observability.RecordError(span, mapped)
		return nil, mapped
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		mapped := entry.Provider.MapError(resp.StatusCode, body)
		observability.RecordError(span, mapped)
		return nil, mapped
	}

	result, err := entry.Provider.ParseResponse(resp)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	result.Provider = entry.Descriptor.Name
	if result.Model == "" {
		result.Model = model
	}
	result.LatencyMs = latency.Milliseconds()
	observability.RecordGenerationUsage(span, result.Usage.PromptUnits, result.Usage.CompletionUnits)
	return result, nil
}

// classifyTransportError maps http.Client failures onto the error taxonomy.
// Parent-context cancellation passes through untyped so callers can
// distinguish their own cancellation from provider trouble.
func classifyTransportError(parent context.Context, providerName string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ytkerrors.NewTimeoutError(providerName, "attempt deadline exceeded")
	}
	return ytkerrors.NewUnavailableError(providerName, err.Error())
}

func (c *Client) lookupCache(ctx context.Context, fingerprint string) *types.GenerationResult {
	payload, err := c.cache.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn("cache lookup failed", "error", err)
		metrics.RecordCacheLookup(string(cache.CategoryGeneration), false)
		return nil
	}
	if payload == nil {
		metrics.RecordCacheLookup(string(cache.CategoryGeneration), false)
		return nil
	}

	var result types.GenerationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		c.logger.Warn("cache payload corrupt, treating as miss", "error", err)
		metrics.RecordCacheLookup(string(cache.CategoryGeneration), false)
		return nil
	}

	metrics.RecordCacheLookup(string(cache.CategoryGeneration), true)
	result.CacheHit = true
	return &result
}

func (c *Client) storeInCache(ctx context.Context, fingerprint string, result *types.GenerationResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache marshal failed", "error", err)
		return
	}
	if err := c.cache.Set(ctx, fingerprint, payload, 0); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}

// generationFingerprint derives the cache key from everything that affects
// the generated content.
func generationFingerprint(req *types.GenerationRequest) string {
	creativity := ""
	if req.Creativity != nil {
		creativity = strconv.FormatFloat(*req.Creativity, 'f', -1, 64)
	}
	return cache.Fingerprint(cache.CategoryGeneration,
		req.System,
		req.Prompt,
		string(req.Shape),
		req.ModelHint,
		strconv.Itoa(req.MaxOutputUnits),
		creativity,
	)
}

func (c *Client) finishSuccess(ctx context.Context, span trace.Span, event *observability.GenerationEvent, result *types.GenerationResult) {
	event.Status = observability.StatusSuccess
	event.Provider = result.Provider
	event.Model = result.Model
	event.PromptUnits = result.Usage.PromptUnits
	event.CompletionUnits = result.Usage.CompletionUnits
	event.TotalUnits = result.Usage.TotalUnits
	event.CacheHit = result.CacheHit
	event.Degraded = result.Degraded
	event.EndTime = time.Now()
	event.LatencyMs = event.EndTime.Sub(event.StartTime).Milliseconds()

	observability.RecordGenerationUsage(span, result.Usage.PromptUnits, result.Usage.CompletionUnits)
	c.callbacks.LogSuccessEvent(ctx, event)
}

func (c *Client) finishFailure(ctx context.Context, span trace.Span, event *observability.GenerationEvent, err error) error {
	event.Status = observability.StatusFailure
	event.ErrorType = errorType(err)
	event.EndTime = time.Now()
	event.LatencyMs = event.EndTime.Sub(event.StartTime).Milliseconds()

	observability.RecordError(span, err)
	c.callbacks.LogFailureEvent(ctx, event, err)
	return err
}

// errorType extracts the taxonomy type from an error for labels and logs.
func errorType(err error) string {
	var apiErr *ytkerrors.Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	var agg *ytkerrors.AggregateError
	if errors.As(err, &agg) {
		return ytkerrors.TypeExhausted
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ytkerrors.TypeTimeout
	}
	return ytkerrors.TypeInternal
}

// Providers returns the registered provider names in priority order.
func (c *Client) Providers() []string {
	entries := c.registry.ByPriority()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Descriptor.Name
	}
	return names
}

// ProviderWindows reports each provider's current rate-window state.
func (c *Client) ProviderWindows() []types.ProviderWindow {
	return c.tracker.Snapshot()
}

// CallerUsage reports a caller's quota consumption. Zero value when the
// guard is disabled.
func (c *Client) CallerUsage(callerID string) types.CallerUsage {
	if c.guard == nil {
		return types.CallerUsage{CallerID: callerID}
	}
	return c.guard.Usage(callerID)
}

// Close releases broker-owned resources. The cache is not closed; its owner
// injected it and keeps it.
func (c *Client) Close() error {
	c.close()
	return nil
}

func (c *Client) close() {
	if c.tracker != nil {
		c.tracker.Close()
	}
	if c.guard != nil {
		c.guard.Close()
	}
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
}
