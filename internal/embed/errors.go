package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// statusError maps a non-2xx provider response to a structured error.
func statusError(id ProviderID, status int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 300 {
		body = body[:300]
	}
	msg := fmt.Sprintf("%s embeddings request failed with status %d", id, status)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return invalidCredentials(id, nil).WithDetail("status", fmt.Sprint(status))
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(body), "api key"):
		return invalidCredentials(id, nil).WithDetail("status", fmt.Sprint(status))
	case status == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrCodeRateLimited, msg, nil).
			WithDetail("provider", string(id))
	case status >= 500:
		return apperrors.New(apperrors.ErrCodeProviderUnavailable, msg, nil).
			WithDetail("provider", string(id)).
			WithDetail("body", body)
	default:
		return apperrors.New(apperrors.ErrCodeEmbeddingFailed, msg, nil).
			WithDetail("provider", string(id)).
			WithDetail("body", body)
	}
}

// transportError classifies a failed HTTP round trip. Cancellation of
// parent is returned as the bare context error.
func transportError(parent context.Context, id ProviderID, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.New(apperrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("%s embeddings request timed out", id), err)
	}
	return apperrors.NetworkError(fmt.Sprintf("cannot reach %s", id), err).
		WithSuggestion("check your network connection")
}

func invalidCredentials(id ProviderID, cause error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeInvalidCredentials,
		fmt.Sprintf("invalid API key for %s", id), cause).
		WithDetail("provider", string(id)).
		WithSuggestion("check the API key for this provider")
}

func malformed(id ProviderID, reason string, cause error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeMalformedResponse,
		fmt.Sprintf("%s returned a malformed response: %s", id, reason), cause).
		WithDetail("provider", string(id))
}

// MissingKeyError reports that a provider needs an API key and none was found.
func MissingKeyError(id ProviderID) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeMissingAPIKey,
		fmt.Sprintf("no API key configured for %s", id), nil).
		WithDetail("provider", string(id)).
		WithSuggestion(fmt.Sprintf("set %s or add the key to .labsearch.yaml", keyEnvVars[id][0]))
}

// UnsupportedError reports that a provider cannot produce embeddings.
func UnsupportedError(id ProviderID) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeEmbeddingsUnsupported,
		fmt.Sprintf("%s does not provide an embeddings API", id), nil).
		WithDetail("provider", string(id)).
		WithSuggestion("choose openai, gemini, ollama or static")
}

// IsSystemic reports whether err must abort a whole indexing run rather
// than fail a single item: bad or missing credentials, an unsupported
// provider, or cancellation.
func IsSystemic(err error) bool {
	if err == nil {
		return false
	}
	code := apperrors.GetCode(err)
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) && code != apperrors.ErrCodeNetworkTimeout {
		return true
	}
	switch code {
	case apperrors.ErrCodeInvalidCredentials,
		apperrors.ErrCodeMissingAPIKey,
		apperrors.ErrCodeEmbeddingsUnsupported:
		return true
	}
	return false
}
