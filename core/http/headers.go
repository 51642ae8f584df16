package http

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderUserAgent     = "User-Agent"
	HeaderAccept        = "Accept"
	HeaderHost          = "Host"
	HeaderConnection    = "Connection"
	HeaderCookie        = "Cookie"
	HeaderAuthorization = "Authorization"
	HeaderOrigin        = "Origin"
)

// MaxHeaderLineLength bounds the start line and every header line, CRLF included.
const MaxHeaderLineLength = 4096
