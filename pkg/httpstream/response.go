// response.go parses the HTTP/1.1 response head and hands back a body
// reader matched to the transfer framing.
package httpstream

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grahamking/ort/internal/constants"
	qerrors "github.com/grahamking/ort/internal/errors"
)

// Response is a parsed response head plus the framed body.
type Response struct {
	StatusCode int
	Status     string // full status line reason, e.g. "OK"

	headers map[string][]string

	br        *bufio.Reader
	headBytes int
}

// ReadResponse reads the status line and headers from r. Line
// terminators may be \r\n or bare \n; header names compare
// case-insensitively; values are trimmed of surrounding whitespace.
func ReadResponse(r io.Reader) (*Response, error) {
	resp := &Response{
		headers: make(map[string][]string),
		br:      bufio.NewReaderSize(r, 4096),
	}

	status, err := resp.readLine()
	if err != nil {
		return nil, err
	}
	if err := resp.parseStatusLine(status); err != nil {
		return nil, err
	}

	for {
		line, err := resp.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			return nil, qerrors.ErrMalformedResponse
		}
		key := strings.ToLower(strings.TrimSpace(name))
		resp.headers[key] = append(resp.headers[key], strings.TrimSpace(value))
	}
	return resp, nil
}

func (r *Response) parseStatusLine(line string) error {
	// "HTTP/1.1 200 OK" — the reason phrase is optional.
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/1.") {
		return qerrors.ErrMalformedResponse
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 599 {
		return qerrors.ErrMalformedResponse
	}
	r.StatusCode = code
	r.Status = reason
	return nil
}

// readLine reads one header line, accepting \r\n or \n, bounded by the
// header block limit.
func (r *Response) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return "", qerrors.New(qerrors.KindIo, "read_response", err)
	}
	r.headBytes += len(line)
	if r.headBytes > constants.MaxHeaderBytes {
		return "", qerrors.ErrHeaderTooLarge
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// Header returns the first value for the (case-insensitive) header name.
func (r *Response) Header(name string) string {
	vals := r.headers[strings.ToLower(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// IsEventStream reports whether the body is text/event-stream.
func (r *Response) IsEventStream() bool {
	ct := r.Header("Content-Type")
	mediatype, _, _ := strings.Cut(ct, ";")
	return strings.EqualFold(strings.TrimSpace(mediatype), "text/event-stream")
}

// Body returns a reader over the decoded body bytes: exactly
// Content-Length bytes when declared, de-chunked bytes under chunked
// transfer coding, and everything until EOF otherwise.
func (r *Response) Body() (io.Reader, error) {
	if strings.EqualFold(r.Header("Transfer-Encoding"), "chunked") {
		return &chunkedReader{br: r.br}, nil
	}
	if cl := r.Header("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, qerrors.ErrMalformedResponse
		}
		return io.LimitReader(r.br, n), nil
	}
	return r.br, nil
}

// chunkedReader decodes the chunked transfer coding: a hex size line,
// the chunk bytes, a CRLF, terminated by a zero-size chunk and optional
// trailers.
type chunkedReader struct {
	br        *bufio.Reader
	remaining int64
	done      bool
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.remaining == 0 {
		if err := c.nextChunk(); err != nil {
			return 0, err
		}
		if c.done {
			return 0, io.EOF
		}
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.br.Read(p)
	c.remaining -= int64(n)
	if c.remaining == 0 && err == nil {
		err = c.consumeCRLF()
	}
	return n, err
}

func (c *chunkedReader) nextChunk() error {
	line, err := readChunkLine(c.br)
	if err != nil {
		return err
	}
	// Chunk extensions after ';' are ignored.
	sizeStr, _, _ := strings.Cut(line, ";")
	size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
	if err != nil || size < 0 {
		return qerrors.ErrBadChunk
	}
	if size == 0 {
		c.done = true
		// Consume trailers up to the final blank line.
		for {
			t, err := readChunkLine(c.br)
			if err != nil || t == "" {
				return err
			}
		}
	}
	c.remaining = size
	return nil
}

func (c *chunkedReader) consumeCRLF() error {
	_, err := readChunkLine(c.br)
	return err
}

func readChunkLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", qerrors.New(qerrors.KindIo, "read_chunk", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
