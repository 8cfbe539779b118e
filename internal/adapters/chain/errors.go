package chain

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/alejandrodnm/smartmoney/internal/domain"
)

var rateLimitMarkers = []string{
	"429", "too many requests", "rate limit", "rate-limit", "exceeded", "capacity", "throughput", "quota",
}

var transientMarkers = []string{
	"timeout", "timed out", "connection reset", "connection refused", "broken pipe", "eof",
	"502", "503", "504", "bad gateway", "service unavailable", "no such host", "header not found",
}

// classify reports whether err is a provider problem that justifies moving to the next endpoint.
func classify(err error) (domain.ProviderErrorKind, bool) {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return domain.ProviderRateLimited, true
		case httpErr.StatusCode >= 500,
			httpErr.StatusCode == http.StatusUnauthorized,
			httpErr.StatusCode == http.StatusForbidden:
			return domain.ProviderTransient, true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ProviderTransient, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ProviderTransient, true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rateLimitMarkers {
		if strings.Contains(msg, m) {
			return domain.ProviderRateLimited, true
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return domain.ProviderTransient, true
		}
	}
	return domain.ProviderTransient, false
}

// alreadyKnown reports whether a resubmitted transaction was already accepted.
func alreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
