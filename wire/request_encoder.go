package wire

import (
	"bufio"
	"fmt"
	"io"
)

// RequestEncoder is the default Encoder: a textual HTTP/1.1 request line, header
// block, and body, framed the same way net/http itself would frame an outbound
// request. Body streaming beyond a single buffered read is out of spec's scope
// (§1 Non-goals), so the body is read fully into memory once and written as a
// single Content-Length-framed chunk.
type RequestEncoder struct {
	req *Request
}

// NewRequestEncoder loads req for writing. The body, if any, is read eagerly so
// Content-Length can be computed; spec.md explicitly excludes body streaming beyond
// what the supplied encoder produces.
func NewRequestEncoder(req *Request) (*RequestEncoder, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = nil
		req.bodyBytes = body
	}
	return &RequestEncoder{req: req}, nil
}

// WriteTo writes the request line, the header block (synthesizing Content-Length if
// the caller didn't supply one and a body is present), and the body.
func (e *RequestEncoder) WriteTo(w *bufio.Writer) error {
	req := e.req
	if _, err := fmt.Fprintf(w, "%s %s %s\r\n", req.Method, req.Target, req.Version); err != nil {
		return err
	}

	_, hasLength := Get(req.Header, "Content-Length")
	for _, f := range req.Header {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return err
		}
	}
	if !hasLength && len(req.bodyBytes) > 0 {
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n", len(req.bodyBytes)); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if len(req.bodyBytes) > 0 {
		if _, err := w.Write(req.bodyBytes); err != nil {
			return err
		}
	}
	return w.Flush()
}
