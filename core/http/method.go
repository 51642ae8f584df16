package http

// Method is an HTTP request method. The declaration order is the priority
// order terminals are kept in by the router.
type Method uint8

const (
	GET Method = iota
	POST
	PUT
	DELETE
	UNKNOWN
)

var methodNames = [...]string{
	GET:     "GET",
	POST:    "POST",
	PUT:     "PUT",
	DELETE:  "DELETE",
	UNKNOWN: "UNKNOWN",
}

// ParseMethod maps a request-line token to a Method. Tokens are case sensitive.
func ParseMethod(s string) Method {
	switch s {
	case "GET":
		return GET
	case "POST":
		return POST
	case "PUT":
		return PUT
	case "DELETE":
		return DELETE
	default:
		return UNKNOWN
	}
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return methodNames[UNKNOWN]
}
