package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRetries is the number of re-attempts after the first call, giving
// MaxRetries+1 total attempts per gateway call.
const MaxRetries = 3

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "acadex",
		Subsystem: "ai",
		Name:      "call_duration_seconds",
		Help:      "Duration of LLM gateway calls",
	}, []string{"operation"})

	callAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acadex",
		Subsystem: "ai",
		Name:      "call_attempts_total",
		Help:      "Number of individual LLM attempts including retries",
	}, []string{"operation"})

	callFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "acadex",
		Subsystem: "ai",
		Name:      "call_failures_total",
		Help:      "Number of LLM gateway calls that returned an error",
	}, []string{"operation", "kind"})
)

var retryableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

var retryableFragments = []string{"overloaded", "timeout", "deadline", "connection", "rate limit", "busy"}

// chatClient is the slice of the OpenAI client the gateway needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config defines the fixed parameters of the gateway. Model and Temperature
// are process-wide constants for the life of the gateway; varying them per
// call would break the reproducibility contract.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout bounds a single attempt, not the whole retry loop. Zero means
	// the caller's context is the only deadline.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Gateway is the single point of contact with the remote model. It owns the
// retry/backoff loop, error classification, and structured-output validation.
type Gateway struct {
	client      chatClient
	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	timeout     time.Duration
	sleep       func(time.Duration)
	tracer      trace.Tracer
	logger      zerolog.Logger
}

// NewGateway builds the gateway. A missing API key does not fail construction;
// calls made without a client return a CONFIG error so that a misconfigured
// deployment degrades to explicit per-call failures instead of crashing.
func NewGateway(cfg Config) *Gateway {
	var client chatClient
	if cfg.APIKey != "" {
		client = openai.NewClientWithConfig(openai.DefaultConfig(cfg.APIKey))
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	return &Gateway{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  MaxRetries,
		timeout:     cfg.Timeout,
		sleep:       time.Sleep,
		tracer:      otel.Tracer("github.com/acadex/acadex-api/pkg/ai"),
		logger:      cfg.Logger.With().Str("component", "ai_gateway").Logger(),
	}
}

// NewGatewayWithClient injects a custom transport. Used by tests.
func NewGatewayWithClient(client chatClient, cfg Config) *Gateway {
	gw := NewGateway(cfg)
	gw.client = client
	return gw
}

// WithSleep overrides the backoff sleeper. Used by tests to count delays.
func (g *Gateway) WithSleep(sleep func(time.Duration)) *Gateway {
	g.sleep = sleep
	return g
}

// Call performs one evaluation call with retry, classification, and
// structured-output validation. It never returns a Go error: every outcome
// is encoded in the Result variant.
func (g *Gateway) Call(parent context.Context, req Request) Result {
	ctx, span := g.tracer.Start(parent, "ai.call", trace.WithAttributes(
		attribute.String("ai.operation", req.Operation),
		attribute.String("ai.model", g.model),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		callDuration.WithLabelValues(req.Operation).Observe(time.Since(start).Seconds())
	}()

	if g.client == nil {
		return g.fail(span, req.Operation, &CallError{
			Kind:    KindConfig,
			Message: "LLM API key is missing",
			Raw:     "client not initialized",
		})
	}

	chatReq := g.buildChatRequest(req)

	var lastMsg string
	var lastStatus int

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		callAttempts.WithLabelValues(req.Operation).Inc()
		g.logger.Debug().
			Str("operation", req.Operation).
			Int("attempt", attempt+1).
			Str("model", g.model).
			Msg("issuing llm call")

		resp, err := g.attempt(ctx, chatReq)
		if err == nil {
			raw := ""
			if len(resp.Choices) > 0 {
				raw = strings.TrimSpace(resp.Choices[0].Message.Content)
			}

			g.logger.Debug().
				Str("operation", req.Operation).
				Int("attempt", attempt+1).
				Int("output_bytes", len(raw)).
				Msg("llm call succeeded")

			if req.Schema == nil {
				return Result{OK: true, Text: raw}
			}

			if err := req.Schema.Validate(raw); err != nil {
				// Terminal: the call itself succeeded, the model just did
				// not conform. Re-sending the same prompt will not help.
				return g.fail(span, req.Operation, &CallError{
					Kind:       KindParseError,
					Message:    fmt.Sprintf("failed to parse structured output from %s", req.Operation),
					StatusCode: 200,
					Raw:        err.Error(),
				})
			}

			return Result{OK: true, Text: raw, JSON: []byte(raw)}
		}

		lastMsg = err.Error()
		lastStatus = statusCodeOf(err)

		if isRetryable(lastStatus, lastMsg) && attempt < g.maxRetries {
			delay := time.Duration(1<<attempt) * time.Second
			g.logger.Warn().
				Str("operation", req.Operation).
				Int("status", lastStatus).
				Dur("delay", delay).
				Int("attempt", attempt+1).
				Msg("llm call failed, retrying")
			g.sleep(delay)
			continue
		}

		break
	}

	return g.fail(span, req.Operation, &CallError{
		Kind:       KindUnavailable,
		Message:    "LLM service unavailable after retries, please try again later",
		StatusCode: lastStatus,
		Raw:        lastMsg,
	})
}

func (g *Gateway) attempt(ctx context.Context, chatReq openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.client.CreateChatCompletion(ctx, chatReq)
}

func (g *Gateway) fail(span trace.Span, operation string, callErr *CallError) Result {
	callFailures.WithLabelValues(operation, string(callErr.Kind)).Inc()
	span.RecordError(callErr)
	span.SetStatus(codes.Error, string(callErr.Kind))
	g.logger.Error().
		Str("operation", operation).
		Str("kind", string(callErr.Kind)).
		Int("status", callErr.StatusCode).
		Str("raw", callErr.Raw).
		Msg("llm call failed permanently")
	return Result{Err: callErr}
}

func (g *Gateway) buildChatRequest(req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	hasImages := false
	for _, part := range req.Parts {
		if len(part.ImagePNG) > 0 {
			hasImages = true
			break
		}
	}

	if !hasImages {
		texts := make([]string, 0, len(req.Parts))
		for _, part := range req.Parts {
			texts = append(texts, part.Text)
		}
		chatReq.Messages = []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: strings.Join(texts, "\n")},
		}
		return chatReq
	}

	parts := make([]openai.ChatMessagePart, 0, len(req.Parts))
	for _, part := range req.Parts {
		if len(part.ImagePNG) > 0 {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(part.ImagePNG),
					Detail: openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: part.Text,
		})
	}

	chatReq.Messages = []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
	return chatReq
}

// statusCodeOf extracts an HTTP status from OpenAI SDK errors, falling back
// to scanning the message for known retryable codes.
func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode
	}

	msg := err.Error()
	for code := range retryableStatuses {
		if strings.Contains(msg, fmt.Sprintf("%d", code)) {
			return code
		}
	}

	return 0
}

func isRetryable(status int, message string) bool {
	if retryableStatuses[status] {
		return true
	}

	lowered := strings.ToLower(message)
	for _, fragment := range retryableFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}

	return false
}
