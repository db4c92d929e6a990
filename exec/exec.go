// Package exec drives one HTTP/1.1 request/response exchange to completion over an
// acquired connection and assigns its post-exchange disposition, per spec §4.5.
package exec

import (
	"errors"
	"io"
	"strings"

	"fibers-http-client/conn"
	"fibers-http-client/herr"
	"fibers-http-client/wire"
)

// Execute writes req via enc and reads the response via dec over c, then classifies
// c's final disposition (Recyclable or Closed) before returning.
//
// The cooperative "non-blocking I/O, fill buffers, check finished, check
// would-block" loop spec §4.5 describes for a poll-based runtime collapses here into
// two goroutines blocking on real I/O: one drains enc into c's writer, the other
// fills dec from c's reader. Which one finishes first is exactly the signal spec
// §4.5 uses to flag "decoder finished but encoder not yet drained" as non-recyclable.
func Execute(c *conn.Connection, enc wire.Encoder, dec wire.Decoder) (*wire.Response, error) {
	writeDone := make(chan error, 1)
	go func() {
		err := enc.WriteTo(c.Writer())
		writeDone <- err
	}()

	readErr := dec.ReadFrom(c.Reader())

	var encoderFinished bool
	select {
	case werr := <-writeDone:
		// The write side had already finished by the time the response arrived.
		encoderFinished = werr == nil
	default:
		// The response arrived before the request finished draining. Still wait for
		// the write goroutine so it doesn't leak, but the connection is not
		// recyclable regardless of how the write eventually turns out.
		<-writeDone
		encoderFinished = false
	}

	if readErr != nil {
		c.SetState(conn.InUse) // leaves disposition to the caller's Discard{RequestFailed}
		return nil, herr.Wrap(decodeErrorKind(readErr), "exec.Execute", readErr)
	}

	resp := dec.Response()
	c.SetState(classify(resp, encoderFinished))
	return resp, nil
}

// classify implements spec §4.5's disposition table.
func classify(resp *wire.Response, encoderFinished bool) conn.State {
	if !encoderFinished {
		return conn.Closed
	}

	connHeader, _ := wire.Get(resp.Header, "Connection")
	connHeader = strings.ToLower(strings.TrimSpace(connHeader))

	if isHTTP11(resp.Proto) {
		if connHeader == "close" {
			return conn.Closed
		}
		return conn.Recyclable
	}
	// HTTP/1.0: keep-alive must be explicit.
	if connHeader == "keep-alive" {
		return conn.Recyclable
	}
	return conn.Closed
}

func isHTTP11(proto string) bool {
	return strings.HasPrefix(proto, "HTTP/1.1") || proto == "1.1"
}

// decodeErrorKind picks the error taxonomy kind for a decoder failure. Only a true
// end-of-stream — the peer closing the connection before the decoder finished a
// response — is UnexpectedEOS; a malformed status line, a bad Content-Length, or any
// other parse failure is Other, matching error.rs's bytecodec::Error conversion
// (InvalidInput and UnexpectedEos pass through, everything else falls to Other).
func decodeErrorKind(err error) herr.Kind {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return herr.UnexpectedEOS
	}
	return herr.Other
}
