// Package watch follows a job on a running server until it finishes.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amishk599/nutrilens/internal/model"
)

// Client polls the result endpoint of a nutrilens server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the server at baseURL. A nil httpClient
// uses a client with a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

// Result fetches the current view of job id. A failed job is returned as a
// view with status error, not as an error.
func (c *Client) Result(ctx context.Context, id string) (model.JobView, error) {
	endpoint := c.baseURL + "/result/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.JobView{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.JobView{}, fmt.Errorf("fetching result: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.JobView{}, fmt.Errorf("job %s: %w", id, model.ErrJobNotFound)
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusInternalServerError:
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return model.JobView{}, &model.HTTPError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	var view model.JobView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return model.JobView{}, fmt.Errorf("decoding result: %w", errors.Join(model.ErrMalformedResponse, err))
	}
	if view.Status == "" {
		return model.JobView{}, fmt.Errorf("decoding result: %w", model.ErrMalformedResponse)
	}
	return view, nil
}
