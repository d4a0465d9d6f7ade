package providers

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// statusPatterns maps substrings of SDK error messages to HTTP status codes,
// checked in order.
var statusPatterns = []struct {
	code   string
	status int
}{
	{"429", http.StatusTooManyRequests},
	{"500", http.StatusInternalServerError},
	{"502", http.StatusBadGateway},
	{"503", http.StatusServiceUnavailable},
	{"504", http.StatusGatewayTimeout},
	{"529", 529}, // Anthropic "overloaded"
	{"401", http.StatusUnauthorized},
	{"403", http.StatusForbidden},
	{"400", http.StatusBadRequest},
	{"402", http.StatusPaymentRequired},
}

// extractErrorMetadata extracts the HTTP status code and Retry-After value
// from an SDK error.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}

	var (
		httpStatus int
		retryAfter string
	)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		httpStatus = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		httpStatus = reqErr.HTTPStatusCode
	}

	errStr := err.Error()
	if httpStatus == 0 {
		for _, p := range statusPatterns {
			if strings.Contains(errStr, p.code) {
				httpStatus = p.status
				break
			}
		}
	}

	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				retryAfter = parts[0]
			}
			break
		}
	}

	return httpStatus, retryAfter
}
