package result

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// ErrorCategory is why a resource was left remote.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryRedirectLoop      ErrorCategory = "redirect_loop"
	CategoryFilesystem        ErrorCategory = "filesystem"
	CategoryEncoding          ErrorCategory = "encoding"
	CategoryStructure         ErrorCategory = "structure"
	CategoryUnknown           ErrorCategory = "unknown"
)

var (
	// ErrEncoding marks content that could not be decoded as text.
	ErrEncoding = errors.New("undecodable content")
	// ErrStructure marks a document whose expected elements are missing.
	ErrStructure = errors.New("unexpected document structure")
)

// ClassifyStatus maps an HTTP status to a category. Statuses that are not
// errors map to CategoryUnknown.
func ClassifyStatus(code int) ErrorCategory {
	switch {
	case code >= 500:
		return Category5xx
	case code >= 400:
		return Category4xx
	default:
		return CategoryUnknown
	}
}

// ClassifyError picks the category for a failed fetch or save. A redirect
// loop wins over everything, then an error status, then the error itself.
func ClassifyError(err error, statusCode int, isRedirectLoop bool) ErrorCategory {
	if isRedirectLoop {
		return CategoryRedirectLoop
	}
	if cat := ClassifyStatus(statusCode); cat != CategoryUnknown {
		return cat
	}
	if err == nil {
		return CategoryUnknown
	}

	var (
		dnsErr  *net.DNSError
		pathErr *fs.PathError
	)
	switch {
	case errors.Is(err, ErrEncoding):
		return CategoryEncoding
	case errors.Is(err, ErrStructure):
		return CategoryStructure
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return CategoryTimeout
	case errors.As(err, &dnsErr):
		return CategoryDNSFailure
	case errors.Is(err, syscall.ECONNREFUSED):
		return CategoryConnectionRefused
	case isTimeout(err):
		return CategoryTimeout
	case errors.As(err, &pathErr):
		// local writes: permissions, full disk, names too long
		return CategoryFilesystem
	}
	return CategoryUnknown
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

var categoryLabels = map[ErrorCategory]string{
	CategoryTimeout:           "Timeouts",
	CategoryDNSFailure:        "DNS Failures",
	CategoryConnectionRefused: "Connection Refused",
	Category4xx:               "Client Errors (4xx)",
	Category5xx:               "Server Errors (5xx)",
	CategoryRedirectLoop:      "Redirect Loops",
	CategoryFilesystem:        "Filesystem Errors",
	CategoryEncoding:          "Encoding Errors",
	CategoryStructure:         "Unexpected Structure",
}

// FormatCategory returns the heading used for a category in summaries.
func FormatCategory(cat ErrorCategory) string {
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return "Other Errors"
}
