// Package httpreq assembles an HTTP/1.1 request and drives it to completion over an
// acquired connection, per spec §4.4.
package httpreq

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/http/httpguts"

	"fibers-http-client/acquire"
	"fibers-http-client/exec"
	"fibers-http-client/herr"
	"fibers-http-client/netaddr"
	"fibers-http-client/wire"
)

// EncoderFunc builds the wire.Encoder for an assembled request. The default is
// wire.NewRequestEncoder.
type EncoderFunc func(*wire.Request) (wire.Encoder, error)

// DecoderFunc builds the wire.Decoder for the response to a request issued with the
// given method. The default is wire.NewResponseDecoder.
type DecoderFunc func(method string) wire.Decoder

// Builder assembles one request: a connection acquirer, a target URL, header
// fields, an optional body, an optional overall timeout, and the encoder/decoder
// pair that frame the body of the request and the response.
type Builder struct {
	acquirer acquire.Acquirer
	rawURL   string
	headers  []wire.HeaderField
	timeout  time.Duration
	resolver *net.Resolver
	encoder  EncoderFunc
	decoder  DecoderFunc
}

// New starts building a request against targetURL, acquired via a.
func New(a acquire.Acquirer, targetURL string) *Builder {
	return &Builder{acquirer: a, rawURL: targetURL}
}

// Encoder overrides the encoder used to serialize the assembled request (request
// line, header block and body). It is used for every method, bodyless ones included.
func (b *Builder) Encoder(f EncoderFunc) *Builder {
	b.encoder = f
	return b
}

// Decoder overrides the decoder used to deserialize the response. It is called for
// every method, HEAD included, with the request method as its argument.
func (b *Builder) Decoder(f DecoderFunc) *Builder {
	b.decoder = f
	return b
}

// Header appends a header field, preserving caller order.
func (b *Builder) Header(name, value string) *Builder {
	b.headers = append(b.headers, wire.HeaderField{Name: name, Value: value})
	return b
}

// Timeout bounds the whole chain — acquire plus execute — in a single deadline.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// Resolver overrides the host resolver used for step 4's address lookup. Exposed
// for tests; nil means net.DefaultResolver.
func (b *Builder) Resolver(r *net.Resolver) *Builder {
	b.resolver = r
	return b
}

// Get performs a bodyless GET.
func (b *Builder) Get(ctx context.Context) (*wire.Response, error) {
	return b.do(ctx, "GET", nil)
}

// Head performs a bodyless HEAD.
func (b *Builder) Head(ctx context.Context) (*wire.Response, error) {
	return b.do(ctx, "HEAD", nil)
}

// Delete performs a bodyless DELETE.
func (b *Builder) Delete(ctx context.Context) (*wire.Response, error) {
	return b.do(ctx, "DELETE", nil)
}

// Put performs a PUT with body.
func (b *Builder) Put(ctx context.Context, body io.Reader) (*wire.Response, error) {
	return b.do(ctx, "PUT", body)
}

// Post performs a POST with body.
func (b *Builder) Post(ctx context.Context, body io.Reader) (*wire.Response, error) {
	return b.do(ctx, "POST", body)
}

func (b *Builder) do(ctx context.Context, method string, body io.Reader) (*wire.Response, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	u, err := url.Parse(b.rawURL)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "httpreq.Builder", err)
	}
	if u.Scheme != "http" {
		return nil, herr.New(herr.InvalidInput, "httpreq.Builder", "scheme must be http, got "+u.Scheme)
	}

	header := make([]wire.HeaderField, 0, len(b.headers)+1)
	header = append(header, b.headers...)
	if _, ok := wire.Get(header, "Host"); !ok {
		header = append(header, wire.HeaderField{Name: "Host", Value: u.Host})
	}
	for _, h := range header {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, herr.New(herr.InvalidInput, "httpreq.Builder", "invalid header field: "+h.Name)
		}
	}

	target := u.Path
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	host, portStr, err := splitHostPort(u)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "httpreq.Builder", err)
	}
	addr, err := netaddr.Resolve(ctx, b.resolver, host, port)
	if err != nil {
		return nil, herr.Wrap(herr.InvalidInput, "httpreq.Builder", err)
	}

	rented, err := b.acquirer.Acquire(ctx, addr)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !herr.Is(err, herr.Timeout) {
			return nil, herr.Wrap(herr.Timeout, "httpreq.Builder", err)
		}
		return nil, err
	}
	defer rented.Close()

	if deadline, ok := ctx.Deadline(); ok {
		rented.Conn().SetDeadline(deadline)
	}

	req := &wire.Request{Method: method, Target: target, Version: "HTTP/1.1", Header: header, Body: body}

	newEncoder := b.encoder
	if newEncoder == nil {
		newEncoder = func(r *wire.Request) (wire.Encoder, error) { return wire.NewRequestEncoder(r) }
	}
	enc, err := newEncoder(req)
	if err != nil {
		return nil, herr.Wrap(herr.Other, "httpreq.Builder", err)
	}

	newDecoder := b.decoder
	if newDecoder == nil {
		newDecoder = func(method string) wire.Decoder { return wire.NewResponseDecoder(method) }
	}
	dec := newDecoder(method)

	resp, err := exec.Execute(rented.Conn(), enc, dec)
	if err != nil && (errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return nil, herr.Wrap(herr.Timeout, "httpreq.Builder", err)
	}
	return resp, err
}

func splitHostPort(u *url.URL) (host, port string, err error) {
	host = u.Hostname()
	if host == "" {
		return "", "", herr.New(herr.InvalidInput, "httpreq.splitHostPort", "empty host")
	}
	port = u.Port()
	if port == "" {
		port = "80"
	}
	return host, port, nil
}
