package protocol

import (
	"errors"
	"fmt"
	"strings"

	"udpforum/internal/common"
)

// Response lines carry a status as the first token: "OK" or "ERR <kind>".
// Multi-line payloads (thread listings, thread contents) follow the status
// line separated by newlines.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// Error kinds reported to clients.
const (
	KindAuth      = "AUTH"
	KindMalformed = "MALFORMED"
	KindNotFound  = "NOTFOUND"
	KindForbidden = "FORBIDDEN"
	KindExists    = "EXISTS"
	KindTransfer  = "TRANSFER"
	KindInternal  = "INTERNAL"
)

// OK formats a success response line.
func OK(format string, args ...any) string {
	return StatusOK + " " + fmt.Sprintf(format, args...)
}

// OKBody formats a success line followed by a multi-line body.
func OKBody(head string, body []string) string {
	if len(body) == 0 {
		return StatusOK + " " + head
	}
	return StatusOK + " " + head + "\n" + strings.Join(body, "\n")
}

// Errf formats an error response line of the given kind.
func Errf(kind, format string, args ...any) string {
	return StatusErr + " " + kind + " " + fmt.Sprintf(format, args...)
}

// ErrResponse maps a sentinel error from the store or auth layer to a
// response line. Unknown errors are reported as INTERNAL without detail.
func ErrResponse(err error) string {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return Errf(KindNotFound, "%s", err)
	case errors.Is(err, common.ErrForbidden):
		return Errf(KindForbidden, "%s", err)
	case errors.Is(err, common.ErrAlreadyExists):
		return Errf(KindExists, "%s", err)
	case errors.Is(err, common.ErrMalformed):
		return Errf(KindMalformed, "%s", err)
	case errors.Is(err, common.ErrUnauthorized):
		return Errf(KindAuth, "%s", err)
	default:
		return Errf(KindInternal, "server error")
	}
}

// ParseResponse splits a response into its status line and body lines.
// ok reports whether the status token is OK.
func ParseResponse(resp string) (head string, body []string, ok bool) {
	lines := strings.Split(resp, "\n")
	head = lines[0]
	if len(lines) > 1 {
		body = lines[1:]
	}
	return head, body, strings.HasPrefix(head, StatusOK+" ") || head == StatusOK
}
