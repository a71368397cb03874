package openrouter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grahamking/ort/pkg/httpstream"
	"github.com/grahamking/ort/pkg/metrics"
)

func TestMarshalRequestShape(t *testing.T) {
	req := ChatRequest{
		Model: "anthropic/claude-sonnet-4.5",
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
		},
		Stream:       true,
		UsageInclude: true,
	}
	body, err := marshalRequest(req)
	require.NoError(t, err)

	s := string(body)
	assert.Contains(t, s, `"model":"anthropic/claude-sonnet-4.5"`)
	assert.Contains(t, s, `"role":"system"`)
	assert.Contains(t, s, `"stream":true`)
	assert.Contains(t, s, `"usage":{"include":true}`)
}

func TestMarshalRequestOmitsOptionals(t *testing.T) {
	body, err := marshalRequest(ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "q"}}})
	require.NoError(t, err)
	s := string(body)
	assert.NotContains(t, s, `"stream"`)
	assert.NotContains(t, s, `"usage"`)
}

func TestStreamDeltas(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"cost\":0.000012}}\n\n" +
		"data: [DONE]\n\n"

	c := New(Options{APIKey: "k"})
	stats := &metrics.RequestStats{}
	var out strings.Builder
	err := c.stream(strings.NewReader(body), func(delta string) error {
		out.WriteString(delta)
		return nil
	}, nil, time.Now(), stats)
	require.NoError(t, err)

	assert.Equal(t, "Hello", out.String())
	assert.Equal(t, 3, stats.PromptTokens)
	assert.Equal(t, 2, stats.CompletionTokens)
	assert.InDelta(t, 0.000012, stats.Cost, 1e-12)
	assert.Equal(t, 4, stats.Events)
	assert.Greater(t, stats.FirstToken, time.Duration(0))
}

func TestStreamSkipsUnparsablePayloads(t *testing.T) {
	body := "data: not json\n\ndata: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n"
	c := New(Options{APIKey: "k"})
	var out strings.Builder
	err := c.stream(strings.NewReader(body), func(d string) error {
		out.WriteString(d)
		return nil
	}, nil, time.Now(), &metrics.RequestStats{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.String())
}

func TestWholeResponse(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"forty-two"}}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":4,"cost":0.0001}}`

	c := New(Options{APIKey: "k"})
	stats := &metrics.RequestStats{}
	var got string
	err := c.whole(strings.NewReader(body), func(s string) error {
		got = s
		return nil
	}, stats)
	require.NoError(t, err)
	assert.Equal(t, "forty-two", got)
	assert.Equal(t, 10, stats.PromptTokens)
}

func TestWholeResponseNoChoices(t *testing.T) {
	c := New(Options{APIKey: "k"})
	err := c.whole(strings.NewReader(`{"choices":[]}`), func(string) error { return nil }, &metrics.RequestStats{})
	assert.Error(t, err)
}

func TestReadErrorPrefersAPIMessage(t *testing.T) {
	raw := "HTTP/1.1 402 Payment Required\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 62\r\n\r\n" +
		`{"error":{"code":402,"message":"Insufficient credits on key"}}`
	resp, err := httpstream.ReadResponse(strings.NewReader(raw))
	require.NoError(t, err)

	c := New(Options{APIKey: "k"})
	got := c.readError(resp)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "402")
	assert.Contains(t, got.Error(), "Insufficient credits")
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{APIKey: "k"})
	assert.Equal(t, DefaultHost, c.opts.Host)
	assert.True(t, strings.HasPrefix(c.opts.UserAgent, "ort/v"))
}
