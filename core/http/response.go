package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// ErrAlreadyResponded is returned by a second call to Respond.
var ErrAlreadyResponded = errors.New("HTTP already responded")

// ResponseVersion is written at the start of every status line.
const ResponseVersion = "HTTP/1.x"

// Response accumulates a status and headers and writes them with the body
// in a single Respond call.
type Response struct {
	w          *bufio.Writer
	statusCode int
	status     string
	headers    map[string]string
	responded  bool
}

// NewResponse creates a response writing to w with status 200 OK.
func NewResponse(w io.Writer) *Response {
	return &Response{
		w:          bufio.NewWriter(w),
		statusCode: 200,
		status:     "OK",
		headers:    make(map[string]string),
	}
}

// SetStatus sets the status code and reason text.
func (r *Response) SetStatus(code int, status string) {
	r.statusCode = code
	r.status = status
}

// SetHeader sets a response header, returning the previous value if any.
func (r *Response) SetHeader(key, value string) (string, bool) {
	prev, ok := r.headers[key]
	r.headers[key] = value
	return prev, ok
}

// Respond writes the status line, Content-Length, the headers, a blank line
// and body, then flushes. Header order is unspecified. A failed write still
// counts as the response.
func (r *Response) Respond(body []byte) error {
	if r.responded {
		return ErrAlreadyResponded
	}
	r.responded = true

	buf := make([]byte, 0, 128)
	buf = append(buf, ResponseVersion...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(r.statusCode), 10)
	buf = append(buf, ' ')
	buf = append(buf, r.status...)
	buf = append(buf, "\r\n"...)
	buf = append(buf, HeaderContentLength...)
	buf = append(buf, ": "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n"...)
	for k, v := range r.headers {
		if k == HeaderContentLength {
			continue
		}
		buf = append(buf, k...)
		buf = append(buf, ": "...)
		buf = append(buf, v...)
		buf = append(buf, "\r\n"...)
	}
	buf = append(buf, "\r\n"...)

	if _, err := r.w.Write(buf); err != nil {
		return err
	}
	if _, err := r.w.Write(body); err != nil {
		return err
	}
	return r.w.Flush()
}

// String responds with a plain-text body.
func (r *Response) String(code int, status, s string) error {
	r.SetStatus(code, status)
	if _, ok := r.headers[HeaderContentType]; !ok {
		r.headers[HeaderContentType] = "text/plain; charset=utf-8"
	}
	return r.Respond([]byte(s))
}

// JSON responds with v encoded as JSON.
func (r *Response) JSON(code int, status string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.SetStatus(code, status)
	r.headers[HeaderContentType] = "application/json"
	return r.Respond(data)
}

// Error responds with the status text as body.
func (r *Response) Error(code int, status string) error {
	r.SetStatus(code, status)
	return r.Respond([]byte(status))
}

func (r *Response) StatusCode() int { return r.statusCode }

func (r *Response) Status() string { return r.status }

func (r *Response) Responded() bool { return r.responded }
