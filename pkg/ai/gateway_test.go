package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

type scriptedStep struct {
	content string
	err     error
}

type fakeChatClient struct {
	steps []scriptedStep
	calls int
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	step := f.steps[len(f.steps)-1]
	if f.calls < len(f.steps) {
		step = f.steps[f.calls]
	}
	f.calls++

	if step.err != nil {
		return openai.ChatCompletionResponse{}, step.err
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: step.content}},
		},
	}, nil
}

func newTestGateway(client chatClient) (*Gateway, *[]time.Duration) {
	delays := &[]time.Duration{}
	gw := NewGatewayWithClient(client, Config{
		Model:       "test-model",
		Temperature: 0,
		Logger:      zerolog.Nop(),
	}).WithSleep(func(d time.Duration) {
		*delays = append(*delays, d)
	})
	return gw, delays
}

var testSchema = MustCompileSchema("verdict", `{
	"type": "object",
	"properties": {
		"verdict": {"type": "string"},
		"score": {"type": "number"}
	},
	"required": ["verdict", "score"]
}`)

func TestGatewayMissingCredentialFailsWithoutRetry(t *testing.T) {
	gw := NewGateway(Config{Model: "test-model", Logger: zerolog.Nop()})

	res := gw.Call(context.Background(), Request{Operation: "qa-evaluation", Parts: []Part{TextPart("grade this")}})
	require.False(t, res.OK)
	require.Equal(t, KindConfig, res.Err.Kind)
}

func TestGatewayRawTextSuccess(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{{content: "  hello grader  "}}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{Operation: "generate", Parts: []Part{TextPart("hi")}})
	require.True(t, res.OK)
	require.Equal(t, "hello grader", res.Text)
	require.Nil(t, res.JSON)
	require.Empty(t, *delays)
}

func TestGatewayRetriesTransientStatusThenSucceeds(t *testing.T) {
	transient := &openai.APIError{HTTPStatusCode: 503, Message: "model overloaded"}
	client := &fakeChatClient{steps: []scriptedStep{
		{err: transient},
		{err: transient},
		{content: `{"verdict": "correct", "score": 1.0}`},
	}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{
		Operation: "qa-evaluation",
		Parts:     []Part{TextPart("grade this")},
		Schema:    testSchema,
	})
	require.True(t, res.OK)
	require.JSONEq(t, `{"verdict": "correct", "score": 1.0}`, string(res.JSON))
	require.Equal(t, 3, client.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestGatewayExhaustsRetries(t *testing.T) {
	transient := &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
	client := &fakeChatClient{steps: []scriptedStep{{err: transient}}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{Operation: "qa-evaluation", Parts: []Part{TextPart("grade this")}})
	require.False(t, res.OK)
	require.Equal(t, KindUnavailable, res.Err.Kind)
	require.Equal(t, 429, res.Err.StatusCode)
	require.Equal(t, MaxRetries+1, client.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)
}

func TestGatewayNonRetryableErrorFailsFast(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{{err: errors.New("invalid request: context length exceeded")}}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{Operation: "qa-evaluation", Parts: []Part{TextPart("grade this")}})
	require.False(t, res.OK)
	require.Equal(t, KindUnavailable, res.Err.Kind)
	require.Equal(t, 1, client.calls)
	require.Empty(t, *delays)
}

func TestGatewayRetryableBySubstring(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{
		{err: errors.New("upstream connection reset")},
		{content: "recovered"},
	}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{Operation: "generate", Parts: []Part{TextPart("hi")}})
	require.True(t, res.OK)
	require.Equal(t, "recovered", res.Text)
	require.Equal(t, []time.Duration{time.Second}, *delays)
}

func TestGatewayParseErrorIsTerminal(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{{content: `{"verdict": "correct"}`}}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{
		Operation: "qa-evaluation",
		Parts:     []Part{TextPart("grade this")},
		Schema:    testSchema,
	})
	require.False(t, res.OK)
	require.Equal(t, KindParseError, res.Err.Kind)
	require.Equal(t, 200, res.Err.StatusCode)
	require.Equal(t, 1, client.calls, "parse errors must not be retried")
	require.Empty(t, *delays)
}

func TestGatewayMalformedJSONIsParseError(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{{content: "certainly! here is the grade"}}}
	gw, _ := newTestGateway(client)

	res := gw.Call(context.Background(), Request{
		Operation: "qa-evaluation",
		Parts:     []Part{TextPart("grade this")},
		Schema:    testSchema,
	})
	require.False(t, res.OK)
	require.Equal(t, KindParseError, res.Err.Kind)
	require.Equal(t, 1, client.calls)
}

func TestGatewayStatusCodeScannedFromMessage(t *testing.T) {
	client := &fakeChatClient{steps: []scriptedStep{
		{err: errors.New("unexpected response: 502 bad gateway")},
		{content: "ok"},
	}}
	gw, delays := newTestGateway(client)

	res := gw.Call(context.Background(), Request{Operation: "generate", Parts: []Part{TextPart("hi")}})
	require.True(t, res.OK)
	require.Len(t, *delays, 1)
}

func TestGatewayVisionRequestBuildsMultiContent(t *testing.T) {
	gw := NewGateway(Config{Model: "test-model", Logger: zerolog.Nop()})

	req := gw.buildChatRequest(Request{
		Operation: "slide-design",
		Parts:     []Part{TextPart("judge the design"), ImagePart([]byte{0x89, 0x50})},
	})
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].MultiContent, 2)
	require.Equal(t, openai.ChatMessagePartTypeText, req.Messages[0].MultiContent[0].Type)
	require.Equal(t, openai.ChatMessagePartTypeImageURL, req.Messages[0].MultiContent[1].Type)
	require.Contains(t, req.Messages[0].MultiContent[1].ImageURL.URL, "data:image/png;base64,")
}
