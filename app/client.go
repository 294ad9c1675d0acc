package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Calindra/cartesi-drand/config"
)

// ErrRandomnessNotReady is returned by MiddlewareClient.Random when the
// middleware has no beacon fresh enough yet for the requested timestamp.
// The action handlers return it like any other action error, so
// Handlers.Dispatch reports it to the rollup host and still accepts the
// input.
var ErrRandomnessNotReady = errors.New("randomness not ready yet")

// MiddlewareClient talks to the cartesi-drand middleware's own HTTP surface
// (as opposed to rollupio.Client, which talks to the rollup host).
type MiddlewareClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewMiddlewareClient builds a MiddlewareClient with a short timeout —
// requests to the middleware are local-network calls, never worth a long
// wait.
func NewMiddlewareClient(baseURL string) *MiddlewareClient {
	return &MiddlewareClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Random fetches the hex-encoded randomness for timestamp from the
// middleware's randomness gate.
func (c *MiddlewareClient) Random(ctx context.Context, timestamp uint64) (string, error) {
	uri := fmt.Sprintf("%s/random?timestamp=%s", c.BaseURL, strconv.FormatUint(timestamp, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("building random request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("contacting middleware: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading random response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return string(body), nil
	case http.StatusNotFound:
		return "", ErrRandomnessNotReady
	default:
		return "", fmt.Errorf("unexpected random status %d: %s", resp.StatusCode, body)
	}
}

// UpdateDrandConfig relays a drand config change to the middleware,
// impersonating the rollup input's original sender so the middleware's
// owner check applies to the dapp-level caller, not to the relay itself.
func (c *MiddlewareClient) UpdateDrandConfig(ctx context.Context, cfg config.AppConfig, sender string) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding drand config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/update_drand_config", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building update_drand_config request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Msg-Sender", sender)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("contacting middleware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update_drand_config failed with status %d: %s", resp.StatusCode, body)
	}
	return nil
}
