package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// retryHintRe matches throttle messages like "Please retry in 2.5s".
var retryHintRe = regexp.MustCompile(`retry in (\d+\.?\d*)s`)

// parseAPIError translates a go-openai error into a classified
// domain.ProviderError. All wire-format knowledge lives here; retry policy
// upstream switches on Kind and RetryAfter only.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := string(reqErr.Body)
		if detail := extractDetail(reqErr.Body); detail != "" {
			msg = detail
		}
		return classifyAPIError(reqErr.HTTPStatusCode, msg)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if code, ok := apiErr.Code.(string); ok && code != "" {
			msg = code + ": " + msg
		}
		return classifyAPIError(apiErr.HTTPStatusCode, msg)
	}

	return domain.NewProviderError(domain.KindTransient, 0, err.Error())
}

func classifyAPIError(status int, message string) *domain.ProviderError {
	throttled := status == http.StatusTooManyRequests ||
		strings.Contains(message, "RESOURCE_EXHAUSTED")

	switch {
	case throttled:
		if hint, ok := retryHint(message); ok {
			pe := domain.NewProviderError(domain.KindRateLimited, status, message)
			pe.RetryAfter = hint
			return pe
		}
		// Throttling with no retry hint means the quota itself is spent.
		return domain.NewProviderError(domain.KindQuotaExhausted, status, message)
	case status >= http.StatusInternalServerError || status == 0:
		return domain.NewProviderError(domain.KindTransient, status, message)
	default:
		return domain.NewProviderError(domain.KindFatal, status, message)
	}
}

func retryHint(message string) (time.Duration, bool) {
	m := retryHintRe.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
