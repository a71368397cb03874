// Package httpstream is the thin HTTP/1.1 layer that sits directly on the
// decrypted TLS byte stream: a minimal request writer and a response
// reader that understands Content-Length, chunked transfer coding, and
// text/event-stream bodies.
//
// net/http cannot be used here: the transport below is a hand-rolled
// record layer exposed as an io.ReadWriter, and the streaming read loop
// needs to share its buffering discipline. The framing is small enough to
// write directly.
package httpstream

import (
	"fmt"
	"io"
	"strings"
)

// Request is a minimal HTTP/1.1 request.
type Request struct {
	Method    string
	Path      string
	Host      string
	UserAgent string

	// Bearer, when set, becomes an Authorization: Bearer header.
	Bearer string

	Accept      string
	ContentType string

	// Extra headers appended verbatim (name, value pairs).
	Extra [][2]string

	Body []byte
}

// WriteTo serializes the request onto w. Content-Length is included
// whenever a body is present. The writer below (the TLS connection)
// splits large bodies into records itself.
func (r *Request) WriteTo(w io.Writer) (int64, error) {
	var head strings.Builder
	method := r.Method
	if method == "" {
		method = "GET"
	}
	path := r.Path
	if path == "" {
		path = "/"
	}

	fmt.Fprintf(&head, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(&head, "Host: %s\r\n", r.Host)
	if r.UserAgent != "" {
		fmt.Fprintf(&head, "User-Agent: %s\r\n", r.UserAgent)
	}
	if r.Bearer != "" {
		fmt.Fprintf(&head, "Authorization: Bearer %s\r\n", r.Bearer)
	}
	if r.Accept != "" {
		fmt.Fprintf(&head, "Accept: %s\r\n", r.Accept)
	}
	if r.ContentType != "" {
		fmt.Fprintf(&head, "Content-Type: %s\r\n", r.ContentType)
	}
	for _, kv := range r.Extra {
		fmt.Fprintf(&head, "%s: %s\r\n", kv[0], kv[1])
	}
	if len(r.Body) > 0 {
		fmt.Fprintf(&head, "Content-Length: %d\r\n", len(r.Body))
	}
	head.WriteString("Connection: close\r\n\r\n")

	var total int64
	n, err := io.WriteString(w, head.String())
	total += int64(n)
	if err != nil {
		return total, err
	}
	if len(r.Body) > 0 {
		n, err := w.Write(r.Body)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
