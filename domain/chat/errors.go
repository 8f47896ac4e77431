package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredential is returned when the provider credential is not configured.
var ErrMissingCredential = errors.New("AI gateway API key is not configured")

// UpstreamStatusError carries a non-success provider status and its body.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("ai gateway error: status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether the provider rejected the call with 429.
func (e *UpstreamStatusError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsPaymentRequired reports whether the provider rejected the call with 402.
func (e *UpstreamStatusError) IsPaymentRequired() bool {
	return e.StatusCode == http.StatusPaymentRequired
}
