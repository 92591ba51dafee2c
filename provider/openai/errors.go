package openai

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// wrapError wraps an OpenAI SDK error with gateway error categorization.
// It extracts status codes and Retry-After headers for proper retry handling.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		// Not an API error, return as-is (likely network error, handled by heuristics)
		return err
	}

	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	e := gateway.NewStatusError("openai request failed", apiErr.StatusCode, header, err)
	e.UpstreamCode = apiErr.Code
	return e
}
