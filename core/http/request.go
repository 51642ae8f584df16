package http

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformedRequest = errors.New("malformed HTTP request")
	ErrInvalidMethod    = errors.New("invalid HTTP method")
	ErrHeaderTooLong    = errors.New("header line exceeds limit")
)

// Request is a parsed request head. The body is left unread in Body.
type Request struct {
	Method Method
	Path   string
	Proto  string

	headers map[string]string

	// Body is positioned right after the blank line ending the header block.
	Body io.Reader
}

// NewRequest builds a request without reading from the wire.
func NewRequest(method Method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Proto:   "HTTP/1.1",
		headers: make(map[string]string),
		Body:    bytes.NewReader(nil),
	}
}

// ReadRequest reads a start line and header block from r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty start line", ErrMalformedRequest)
	}

	req := &Request{
		Method:  ParseMethod(fields[0]),
		headers: make(map[string]string),
		Body:    r,
	}
	if req.Method == UNKNOWN {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, fields[0])
	}
	if len(fields) > 1 {
		req.Path = fields[1]
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return req, nil
		}
		key, value, _ := strings.Cut(line, ":")
		req.SetHeader(strings.TrimSpace(key), strings.TrimSpace(value))
	}
}

// readLine returns one CRLF-terminated line without its terminator. A bare
// LF does not end a line; it stays part of the value.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for !bytes.HasSuffix(line, []byte("\r\n")) {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxHeaderLineLength {
			return "", ErrHeaderTooLong
		}
		if err == nil || errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: line not terminated by CRLF", ErrMalformedRequest)
		}
		return "", err
	}
	return string(line[:len(line)-2]), nil
}

// Header returns the value of key, or "" if absent.
func (r *Request) Header(key string) string {
	return r.headers[key]
}

// Headers returns a copy of the header map.
func (r *Request) Headers() map[string]string {
	h := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		h[k] = v
	}
	return h
}

// SetHeader sets a header; a repeated key overwrites the earlier value.
func (r *Request) SetHeader(key, value string) {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
}
