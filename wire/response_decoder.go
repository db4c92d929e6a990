package wire

import (
	"bufio"
	"fmt"
	"io"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
)

// ResponseDecoder is the default Decoder. It parses a status line, a MIME header
// block (via net/textproto, the same building block net/http's own ReadResponse
// uses), and a body framed by Content-Length, chunked transfer-encoding, or — for
// responses with neither — read-until-EOF, matching HTTP/1.0's historical framing.
type ResponseDecoder struct {
	method   string // the request method, needed to know HEAD gets no body
	resp     Response
	finished bool
}

// NewResponseDecoder prepares a decoder for the response to a request issued with
// the given method.
func NewResponseDecoder(method string) *ResponseDecoder {
	return &ResponseDecoder{method: method}
}

func (d *ResponseDecoder) Response() *Response {
	if !d.finished {
		return nil
	}
	return &d.resp
}

// ReadFrom blocks until a complete response has been parsed from r.
func (d *ResponseDecoder) ReadFrom(r *bufio.Reader) error {
	tp := textproto.NewReader(r)

	statusLine, err := tp.ReadLine()
	if err != nil {
		return err
	}
	proto, statusCode, status, err := parseStatusLine(statusLine)
	if err != nil {
		return err
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return err
	}

	header := make([]HeaderField, 0, len(mimeHeader))
	for name, values := range mimeHeader {
		for _, v := range values {
			header = append(header, HeaderField{Name: name, Value: v})
		}
	}

	body, err := readBody(r, header, d.method, statusCode)
	if err != nil {
		return err
	}

	d.resp = Response{
		Proto:      proto,
		StatusCode: statusCode,
		Status:     status,
		Header:     header,
		Body:       body,
	}
	d.finished = true
	return nil
}

func parseStatusLine(line string) (proto string, code int, status string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("wire: malformed status line %q", line)
	}
	code, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("wire: malformed status code in %q: %w", line, err)
	}
	status = parts[1]
	if len(parts) == 3 {
		status = parts[1] + " " + parts[2]
	}
	return parts[0], code, status, nil
}

// hasNoBody reports whether status (per RFC 7230 §3.3.3) or a HEAD request implies a
// response carries no body regardless of headers.
func hasNoBody(method string, statusCode int) bool {
	if equalFold(method, "HEAD") {
		return true
	}
	if statusCode >= 100 && statusCode < 200 {
		return true
	}
	return statusCode == 204 || statusCode == 304
}

func readBody(r *bufio.Reader, header []HeaderField, method string, statusCode int) ([]byte, error) {
	if hasNoBody(method, statusCode) {
		return nil, nil
	}

	if te, ok := Get(header, "Transfer-Encoding"); ok && equalFold(te, "chunked") {
		cr := httputil.NewChunkedReader(r)
		return io.ReadAll(cr)
	}

	if cl, ok := Get(header, "Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil {
			return nil, fmt.Errorf("wire: malformed Content-Length %q: %w", cl, err)
		}
		if n == 0 {
			return nil, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	// Neither Content-Length nor chunked: legacy HTTP/1.0 framing, body runs to EOS.
	return io.ReadAll(r)
}
