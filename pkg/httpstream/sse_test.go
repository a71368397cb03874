package httpstream_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/grahamking/ort/internal/errors"
	"github.com/grahamking/ort/pkg/httpstream"
)

func collect(t *testing.T, body string, cont func() bool) ([]string, error) {
	t.Helper()
	var got []string
	err := httpstream.StreamSSE(strings.NewReader(body), func(p []byte) error {
		got = append(got, string(p))
		return nil
	}, cont)
	return got, err
}

func TestStreamSSEBasic(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n" +
		"\n" +
		"data: [DONE]\n" +
		"\n"

	got, err := collect(t, body, nil)
	require.NoError(t, err)
	// Exactly two sink calls: the delta payload and the sentinel.
	assert.Equal(t, []string{`{"choices":[{"delta":{"content":"Hi"}}]}`, "[DONE]"}, got)
}

func TestStreamSSETwoEvents(t *testing.T) {
	body := "data: one\n\ndata: two\n\ndata: [DONE]\n\n"
	got, err := collect(t, body, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "[DONE]"}, got)
}

func TestStreamSSECRLF(t *testing.T) {
	body := "data: a\r\n\r\ndata: [DONE]\r\n\r\n"
	got, err := collect(t, body, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "[DONE]"}, got)
}

func TestStreamSSESkipsNonData(t *testing.T) {
	body := ": keep-alive comment\n" +
		"event: message\n" +
		"id: 42\n" +
		"data: payload\n" +
		"\n" +
		"data: [DONE]\n\n"
	got, err := collect(t, body, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"payload", "[DONE]"}, got)
}

func TestStreamSSENoSpaceAfterColon(t *testing.T) {
	got, err := collect(t, "data:tight\n\ndata: [DONE]\n\n", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tight", "[DONE]"}, got)
}

func TestStreamSSEDoneIsCaseSensitive(t *testing.T) {
	got, err := collect(t, "data: [done]\n\ndata: [DONE]\n\n", nil)
	require.NoError(t, err)
	// Lowercase sentinel is just a payload and does not terminate.
	assert.Equal(t, []string{"[done]", "[DONE]"}, got)
}

func TestStreamSSEEOFWithoutSentinel(t *testing.T) {
	got, err := collect(t, "data: only\n\n", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got)
}

func TestStreamSSECancellation(t *testing.T) {
	calls := 0
	_, err := collect(t, "data: a\n\ndata: b\n\ndata: [DONE]\n\n", func() bool {
		calls++
		return calls <= 2
	})
	assert.ErrorIs(t, err, qerrors.ErrStreamCancelled)
}

func TestStreamSSESinkErrorPropagates(t *testing.T) {
	sentinel := assert.AnError
	err := httpstream.StreamSSE(strings.NewReader("data: x\n\n"), func(p []byte) error {
		return sentinel
	}, nil)
	assert.ErrorIs(t, err, sentinel)
}
