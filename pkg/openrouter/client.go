// Package openrouter implements the chat-completions client: it shapes
// the JSON request, drives one TLS connection per request, and streams
// response deltas to a caller-supplied sink.
package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/httpstream"
	"github.com/grahamking/ort/pkg/metrics"
	"github.com/grahamking/ort/pkg/tls13"
)

// DefaultHost is the OpenRouter API endpoint.
const DefaultHost = "openrouter.ai"

// completionsPath is the chat-completions resource.
const completionsPath = "/api/v1/chat/completions"

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the server-reported token accounting.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// ChatRequest is the request body for a completion.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`

	// UsageInclude asks the server to append a usage object to the
	// final stream event.
	UsageInclude bool `json:"-"`
}

// chatRequestWire adds the nested usage option OpenRouter expects.
type chatRequestWire struct {
	ChatRequest
	Usage *struct {
		Include bool `json:"include"`
	} `json:"usage,omitempty"`
}

// streamChunk is one SSE payload of a streamed completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// completion is a non-streamed response body.
type completion struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// apiError is the error envelope the API returns on non-200 statuses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Options configures a Client.
type Options struct {
	// Host overrides DefaultHost.
	Host string

	// Port overrides 443.
	Port uint16

	// Addrs optionally bypasses DNS with candidate IP addresses.
	Addrs []string

	// APIKey is the bearer token.
	APIKey string

	// Timeout bounds dial and socket reads/writes.
	Timeout time.Duration

	// UserAgent overrides the default.
	UserAgent string

	Tracer metrics.Tracer
	Logger *zap.Logger
}

// Client sends chat-completion requests. One connection is made per
// request; nothing is cached between calls.
type Client struct {
	opts   Options
	tracer metrics.Tracer
	log    *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ort/" + versionString()
	}
	c := &Client{opts: opts, tracer: opts.Tracer, log: opts.Logger}
	if c.tracer == nil {
		c.tracer = metrics.NoOpTracer{}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Chat sends req and feeds response text to sink as it arrives. For
// streamed requests the sink sees each content delta; otherwise it sees
// the whole message once. cont, when non-nil, is consulted between
// stream events; returning false shuts the stream down cleanly.
func (c *Client) Chat(ctx context.Context, req ChatRequest, sink func(string) error, cont func() bool) (*metrics.RequestStats, error) {
	body, err := marshalRequest(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	conn, err := tls13.Connect(ctx, tls13.Config{
		Host:    c.opts.Host,
		Port:    c.opts.Port,
		Addrs:   c.opts.Addrs,
		Timeout: c.opts.Timeout,
		Tracer:  c.tracer,
	})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	c.log.Debug("connected",
		zap.String("host", c.opts.Host),
		zap.Duration("handshake", conn.Stats().HandshakeTime))

	stats := &metrics.RequestStats{}
	_, endReq := c.tracer.StartSpan(ctx, "openrouter.chat")
	err = c.send(conn, req, body, sink, cont, start, stats)
	endReq(err)

	stats.Connection = conn.Stats()
	stats.Total = time.Since(start)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

func (c *Client) send(conn *tls13.Conn, req ChatRequest, body []byte, sink func(string) error, cont func() bool, start time.Time, stats *metrics.RequestStats) error {
	accept := "application/json"
	if req.Stream {
		accept = "text/event-stream"
	}
	httpReq := &httpstream.Request{
		Method:      "POST",
		Path:        completionsPath,
		Host:        c.opts.Host,
		UserAgent:   c.opts.UserAgent,
		Bearer:      c.opts.APIKey,
		Accept:      accept,
		ContentType: "application/json",
		Body:        body,
	}
	if _, err := httpReq.WriteTo(conn); err != nil {
		return err
	}

	resp, err := httpstream.ReadResponse(conn)
	if err != nil {
		if qerrors.Is(err, io.EOF) {
			return fmt.Errorf("server closed before responding: %w", err)
		}
		return err
	}
	if resp.StatusCode != 200 {
		return c.readError(resp)
	}

	respBody, err := resp.Body()
	if err != nil {
		return err
	}

	if req.Stream && resp.IsEventStream() {
		return c.stream(respBody, sink, cont, start, stats)
	}
	return c.whole(respBody, sink, stats)
}

// stream consumes SSE payloads, forwarding content deltas.
func (c *Client) stream(body io.Reader, sink func(string) error, cont func() bool, start time.Time, stats *metrics.RequestStats) error {
	return httpstream.StreamSSE(body, func(payload []byte) error {
		stats.Events++

		var chunk streamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			// Keep-alive or vendor extras; not fatal.
			c.log.Debug("skipping unparsable stream payload", zap.Error(err))
			return nil
		}
		if chunk.Usage != nil {
			stats.PromptTokens = chunk.Usage.PromptTokens
			stats.CompletionTokens = chunk.Usage.CompletionTokens
			stats.Cost = chunk.Usage.Cost
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			return nil
		}
		if stats.FirstToken == 0 {
			stats.FirstToken = time.Since(start)
		}
		return sink(delta)
	}, cont)
}

// whole reads a non-streamed body and delivers the single message.
func (c *Client) whole(body io.Reader, sink func(string) error, stats *metrics.RequestStats) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	var comp completion
	if err := json.Unmarshal(data, &comp); err != nil {
		return fmt.Errorf("unexpected response body: %w", err)
	}
	if comp.Usage != nil {
		stats.PromptTokens = comp.Usage.PromptTokens
		stats.CompletionTokens = comp.Usage.CompletionTokens
		stats.Cost = comp.Usage.Cost
	}
	if len(comp.Choices) == 0 {
		return fmt.Errorf("response carried no choices")
	}
	return sink(comp.Choices[0].Message.Content)
}

// readError turns a non-200 response into an error, preferring the API's
// own message.
func (c *Client) readError(resp *httpstream.Response) error {
	body, err := resp.Body()
	if err != nil {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(io.LimitReader(body, 1<<16))
	var ae apiError
	if json.Unmarshal(data, &ae) == nil && ae.Error.Message != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, ae.Error.Message)
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}

// marshalRequest shapes the wire body, attaching the usage include option
// whenever UsageInclude is set (streamed or not) so the response reports cost.
func marshalRequest(req ChatRequest) ([]byte, error) {
	wire := chatRequestWire{ChatRequest: req}
	if req.UsageInclude {
		wire.Usage = &struct {
			Include bool `json:"include"`
		}{Include: true}
	}
	return json.Marshal(wire)
}
