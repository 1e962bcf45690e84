package executor

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Categories reported as the status text of a request that got no response
const (
	CategoryTimeout           = "timeout"
	CategoryCancelled         = "cancelled"
	CategoryProxy             = "proxy error"
	CategoryDNS               = "dns lookup failed"
	CategoryConnectionRefused = "connection refused"
	CategoryConnectionReset   = "connection reset"
	CategoryUnreachable       = "network unreachable"
	CategoryTLS               = "tls error"
	CategoryRedirects         = "too many redirects"
	CategoryConnectionClosed  = "connection closed"
	CategoryNetwork           = "network error"
)

// categorizeError maps a client error to a short category
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	var unknownAuthority x509.UnknownAuthorityError
	var invalidCert x509.CertificateInvalidError
	var hostname x509.HostnameError
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalidCert) || errors.As(err, &hostname) {
		return CategoryTLS
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return CategoryConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CategoryConnectionReset
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return CategoryUnreachable
	}

	return categorizeMessage(err.Error())
}

// categorizeMessage falls back to matching the error text
func categorizeMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "deadline exceeded"),
		strings.Contains(errLower, "timeout"),
		strings.Contains(errLower, "timed out"):
		return CategoryTimeout
	case strings.Contains(errLower, "context canceled"):
		return CategoryCancelled
	// proxy errors often contain "connection refused" too
	case strings.Contains(errLower, "proxy"):
		return CategoryProxy
	case strings.Contains(errLower, "no such host"),
		strings.Contains(errLower, "dial tcp: lookup"):
		return CategoryDNS
	case strings.Contains(errLower, "connection refused"):
		return CategoryConnectionRefused
	case strings.Contains(errLower, "connection reset"):
		return CategoryConnectionReset
	case strings.Contains(errLower, "network is unreachable"),
		strings.Contains(errLower, "no route to host"):
		return CategoryUnreachable
	case strings.Contains(errLower, "tls"),
		strings.Contains(errLower, "x509"),
		strings.Contains(errLower, "certificate"):
		return CategoryTLS
	case strings.Contains(errLower, "stopped after") && strings.Contains(errLower, "redirect"):
		return CategoryRedirects
	case strings.Contains(errLower, "eof"):
		return CategoryConnectionClosed
	}

	return CategoryNetwork
}
