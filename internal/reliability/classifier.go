package reliability

import "net/http"

// IsRetryableHTTPStatus classifies retryable HTTP status codes. The relay never
// retries on its own; the flag is surfaced to logs and metrics so callers can.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Class buckets an upstream status for log lines.
func Class(code int) string {
	switch {
	case code == 0:
		return "transport"
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth"
	case code == http.StatusTooManyRequests:
		return "rate_limited"
	case code >= 400 && code < 500:
		return "client"
	case code >= 500:
		return "upstream"
	default:
		return "ok"
	}
}
