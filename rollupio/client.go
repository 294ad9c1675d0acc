package rollupio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Calindra/cartesi-drand/common/log"
)

// Client talks to a Cartesi rollup HTTP server: the real rollup host, which
// serves finish/report/notice, or the middleware, whose /finish has the same
// shape (the middleware serves no /report or /notice).
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     log.Logger
}

// NewClient builds a Client with a sane default timeout.
func NewClient(baseURL string, logger log.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Log:     logger,
	}
}

// Finish posts the given status to {BaseURL}/finish. A nil envelope with
// idle=true means the host had nothing for us (202 Accepted).
func (c *Client) Finish(ctx context.Context, status string) (env *Envelope, idle bool, err error) {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return nil, false, fmt.Errorf("encoding finish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/finish", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building finish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("contacting rollup host: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected finish status %d", resp.StatusCode)
	}

	var out Envelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decoding finish response: %w", err)
	}
	return &out, false, nil
}

// Report posts a report payload to {BaseURL}/report.
func (c *Client) Report(ctx context.Context, hexPayload string) error {
	return c.post(ctx, "/report", hexPayload)
}

// Notice posts a notice payload to {BaseURL}/notice.
func (c *Client) Notice(ctx context.Context, hexPayload string) error {
	return c.post(ctx, "/notice", hexPayload)
}

func (c *Client) post(ctx context.Context, path, hexPayload string) error {
	body, err := json.Marshal(map[string]string{"payload": hexPayload})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected %s status %d", path, resp.StatusCode)
	}
	return nil
}
