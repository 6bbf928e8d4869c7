package forwarder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorKind classifies a failed send attempt. Kinds, not concrete types,
// are what surfaces to callers and logs.
type ErrorKind string

const (
	// KindTimeout covers deadline and i/o timeout failures.
	KindTimeout ErrorKind = "timeout"
	// KindConnection covers refused/reset/unreachable dial failures.
	KindConnection ErrorKind = "connection_error"
	// KindProxy covers failures of the proxy hop itself.
	KindProxy ErrorKind = "proxy_error"
	// KindHTTPStatus covers error statuses surfaced as errors.
	KindHTTPStatus ErrorKind = "http_status_error"
	// KindRetryStatus marks a response status found in the retry set.
	KindRetryStatus ErrorKind = "retry_status"
	// KindUnknown keeps the original error's type name.
	KindUnknown ErrorKind = "unknown"
)

var (
	errMissingURL = errors.New("request url is required")
	errBadMethod  = errors.New("unsupported http method")
)

// classify maps a transport error onto the taxonomy. Unrecognized errors
// map to KindUnknown; kindName renders those with their concrete type name.
func classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	// The url.Error wrapper hides proxy handshake failures behind its
	// message; unwrap first and keep the text for the proxyconnect check.
	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	if strings.Contains(msg, "proxyconnect") || strings.Contains(msg, "socks") {
		return KindProxy
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindConnection
	}
	var operr *net.OpError
	if errors.As(err, &operr) {
		return KindConnection
	}

	return KindUnknown
}

// kindName renders the kind for logs and the exhaustion error. Unknown
// errors keep their concrete type name, matching the taxonomy contract.
func kindName(kind ErrorKind, err error) string {
	if kind != KindUnknown || err == nil {
		return string(kind)
	}
	return fmt.Sprintf("%T", err)
}

// ExhaustedError reports a forwarding call whose entire retry budget failed.
// The message is the user-facing text of the original service.
type ExhaustedError struct {
	ProxySwitches int
	TotalAttempts int
	LastErrorType string
	LastErr       error
	LastStatus    int
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("请求失败,已尝试 %d 个代理,共 %d 次请求; 错误类型: %s; 错误信息: %v",
		e.ProxySwitches, e.TotalAttempts, e.LastErrorType, e.LastErr)
	if e.LastStatus != 0 {
		msg += fmt.Sprintf("; 最后状态码: %d", e.LastStatus)
	}
	return msg
}

// Unwrap exposes the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
