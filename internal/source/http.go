package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jobsift/jobsift/internal/model"
)

// defaultTimeout bounds every outbound request. There is no cooperative
// cancellation beyond this; the retry layer decides when to stop.
const defaultTimeout = 15 * time.Second

// NewHTTPClient returns the http.Client adapters share.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or
// unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// doJSON performs req, decodes a JSON body into out, and wraps non-2xx
// responses in model.HTTPError so the retry layer can classify them.
func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s %s", req.Method, req.URL.Path),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Host, err)
	}
	return nil
}

// asHTTPNotFound reports whether err is an HTTP 404, populating target.
func asHTTPNotFound(err error, target **model.HTTPError) bool {
	return errors.As(err, target) && (*target).StatusCode == http.StatusNotFound
}
