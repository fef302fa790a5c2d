package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RemoteTool runs a processing step out of process.
//
// It POSTs the current state as a JSON object to the configured
// endpoint and treats the JSON object in the reply as the partial
// update. This lets collaborators supply tool implementations behind
// any HTTP service without linking into this binary.
//
// Reply contract:
//   - 2xx with a JSON object body: the object is the partial update
//     (an empty object means "no change").
//   - Any other status: the invocation fails and the run errors.
//
// A reply may opt into the replace variant by sending the update under
// a "replace" wrapper:
//
//	{"replace": {"only": "these", "keys": "survive"}}
type RemoteTool struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// maxRemoteReply bounds how much of a reply body is read.
const maxRemoteReply = 4 << 20

// NewRemoteTool creates a RemoteTool for the given endpoint. Optional
// headers are sent with every invocation (e.g. authorization).
func NewRemoteTool(endpoint string, headers map[string]string) *RemoteTool {
	return &RemoteTool{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{},
	}
}

// Call implements the Tool interface.
func (t *RemoteTool) Call(ctx context.Context, state map[string]any) (Result, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return Result{}, fmt.Errorf("remote tool: encode state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("remote tool: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("remote tool: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteReply))
	if err != nil {
		return Result{}, fmt.Errorf("remote tool: read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("remote tool: endpoint returned %d: %s", resp.StatusCode, body)
	}

	var update map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &update); err != nil {
			return Result{}, fmt.Errorf("remote tool: decode reply: %w", err)
		}
	}

	// Unwrap the replace variant if the reply used it.
	if len(update) == 1 {
		if wrapped, ok := update["replace"].(map[string]any); ok {
			return Replace(wrapped), nil
		}
	}
	return Update(update), nil
}
