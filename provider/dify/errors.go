package dify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	gateway "github.com/neocode24/dify-a2a-gateway"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// apiError is the error body Dify returns with non-2xx responses.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// statusError converts a non-2xx response into a categorized error.
// It reads and closes the body.
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := fmt.Sprintf("dify returned %d", resp.StatusCode)
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, apiErr.Message)
	} else if text := strings.TrimSpace(string(body)); text != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(text, 200))
	}

	e := gateway.NewStatusError(msg, resp.StatusCode, resp.Header, nil)
	e.UpstreamCode = apiErr.Code
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
