// Package functions invokes remote functions by name with a JSON body.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRemote marks a failed remote invocation.
var ErrRemote = errors.New("remote function failed")

const maxErrorBody = 512

// Invoker calls a remote function and decodes its JSON reply into out.
type Invoker interface {
	Invoke(ctx context.Context, name string, body, out interface{}) error
}

// HTTPInvoker posts to {baseURL}/functions/v1/{name}.
type HTTPInvoker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPInvoker(baseURL, apiKey string, timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPInvoker{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, name string, body, out interface{}) error {
	if h.baseURL == "" {
		return fmt.Errorf("%w: functions url is not configured", ErrRemote)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/functions/v1/"+name, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemote, name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrRemote, name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return fmt.Errorf("%w: %s: status %d: %s", ErrRemote, name, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: decode reply: %v", ErrRemote, name, err)
	}
	return nil
}
