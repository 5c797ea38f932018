package reverse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/notebridge/marksync/pkg/types"
)

// TokenHeader carries the bridge token on the legacy HTTP endpoint.
const TokenHeader = "X-Project2Chrome-Token"

// EndpointPath is the reverse-sync path on the bridge.
const EndpointPath = "/reverse-sync"

const requestTimeout = 15 * time.Second

// Client posts reverse batches to the bridge's legacy HTTP endpoint,
// the fallback transport used while no WebSocket session is up.
type Client struct {
	http *http.Client
}

// NewClient builds a fallback client.
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: requestTimeout},
	}
}

// Endpoint derives the reverse-sync URL from a profile's bridge URL:
// same scheme and host, path replaced.
func Endpoint(bridgeURL string) (string, error) {
	if bridgeURL == "" {
		bridgeURL = types.DefaultBridgeHTTPURL
	}
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return "", fmt.Errorf("invalid bridge url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid bridge url: missing scheme or host")
	}
	u.Path = EndpointPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// NewBatch wraps queue items into one reverse batch with a fresh
// batch id and the current send timestamp.
func NewBatch(items []types.QueueItem) types.ReverseBatch {
	events := make([]types.ReverseEvent, 0, len(items))
	for _, item := range items {
		events = append(events, item.Event)
	}
	return types.ReverseBatch{
		BatchID: uuid.NewString(),
		Events:  events,
		SentAt:  types.NowISO(),
	}
}

// Send posts one batch and decodes the per-event results. Any non-2xx
// status or malformed response is a transport failure; the caller runs
// the retry bookkeeping.
func (c *Client) Send(profile *types.ClientProfile, batch types.ReverseBatch) (*types.BatchAckResponse, error) {
	endpoint, err := Endpoint(profile.URL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reverse batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build reverse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TokenHeader, profile.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("reverse request failed: status %d", resp.StatusCode)
	}

	var ack types.BatchAckResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode reverse response: %w", err)
	}
	if ack.BatchID == "" {
		ack.BatchID = batch.BatchID
	}
	return &ack, nil
}
