package steam

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/bnema/repx/internal/domain"
)

// classifyCommentError maps the error text Steam returns for a rejected
// comment onto an outcome kind.
func classifyCommentError(message string) domain.Outcome {
	err := errors.New(message)
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "frequently") || strings.Contains(lower, "429"):
		return domain.Failed(domain.OutcomeRateLimited, err)
	case strings.Contains(lower, "allow you to add comments"):
		return domain.Failed(domain.OutcomeRestricted, err)
	default:
		return domain.Failed(domain.OutcomeFailed, err)
	}
}

func classifyTransportError(err error) domain.Outcome {
	if isNetworkError(err) {
		return domain.Failed(domain.OutcomeTransient, err)
	}
	return domain.Failed(domain.OutcomeFailed, err)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	message := err.Error()
	return strings.Contains(message, "EAI_AGAIN") || strings.Contains(message, "ECONNRESET")
}
