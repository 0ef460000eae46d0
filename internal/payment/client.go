package payment

import (
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// do sends req and returns the response body. Transport failures are wrapped
// in ErrProviderUnavailable so callers can surface them as retryable.
func do(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(ErrProviderUnavailable, err.Error())
	}
	return body, resp.StatusCode, nil
}
