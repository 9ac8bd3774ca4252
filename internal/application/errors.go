package application

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsTransient reports whether err looks like a network hiccup rather than a
// real failure. It only affects log severity.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	message := err.Error()
	for _, marker := range []string{"EAI_AGAIN", "ECONNRESET", "timeout"} {
		if strings.Contains(message, marker) {
			return true
		}
	}

	return false
}
