// sse.go reads a text/event-stream body and hands each data payload to
// the caller.
package httpstream

import (
	"bufio"
	"io"
	"strings"

	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
)

// DoneSentinel is the payload that ends an OpenAI-style stream.
const DoneSentinel = "[DONE]"

// Sink receives one SSE data payload. Returning an error aborts the
// stream and propagates to the StreamSSE caller.
type Sink func(payload []byte) error

// StreamSSE reads `data:` lines from body, invoking sink for each
// payload. Events are separated by blank lines; non-data fields
// (comments, event:, id:) are skipped. The stream ends cleanly on the
// [DONE] sentinel or on EOF. Between events the cont predicate, when
// non-nil, may stop the loop; the caller then performs its clean
// shutdown and StreamSSE returns ErrStreamCancelled.
func StreamSSE(body io.Reader, sink Sink, cont func() bool) error {
	br := bufio.NewReaderSize(body, 4096)
	for {
		if cont != nil && !cont() {
			return qerrors.ErrStreamCancelled
		}

		line, err := readSSELine(br)
		if err != nil {
			if qerrors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		payload, ok := cutData(line)
		if !ok {
			// Blank separators, comments, and other fields.
			continue
		}
		// Every payload reaches the sink, the sentinel included; the
		// sentinel then ends the stream without waiting for EOF.
		if err := sink([]byte(payload)); err != nil {
			return err
		}
		if payload == DoneSentinel {
			return nil
		}
	}
}

// cutData extracts the payload of a data line. "data:" with and without
// the conventional following space are both accepted.
func cutData(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(rest, " "), true
}

// readSSELine reads one line, accepting \r\n or \n, bounded.
func readSSELine(br *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		chunk, err := br.ReadString('\n')
		b.WriteString(chunk)
		if b.Len() > constants.MaxSSELineBytes {
			return "", qerrors.ErrMalformedResponse
		}
		if err != nil {
			if err == io.EOF && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				// Final unterminated line: deliver it before EOF.
				return strings.TrimRight(b.String(), "\r\n"), nil
			}
			if err == io.EOF {
				return "", io.EOF
			}
			return "", qerrors.New(qerrors.KindIo, "read_sse", err)
		}
		return strings.TrimRight(b.String(), "\r\n"), nil
	}
}
