package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"journal-relay/domain/chat"

	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of a failed response is read for logging
const maxErrorBody = 64 * 1024

// Provider opens streaming chat completions on an OpenAI-compatible gateway
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewProvider(apiKey, baseURL string) *Provider {
	// Streams may run for minutes, so only connection setup and headers are bounded
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    false,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
		},
	}
}

// OpenStream posts the request and hands back the event stream body on a 2xx status.
// The caller owns the returned body. Any other status is returned as *chat.UpstreamStatusError.
func (p *Provider) OpenStream(ctx context.Context, req *chat.UpstreamRequest) (io.ReadCloser, error) {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	// Message content goes out as the caller wrote it
	enc.SetEscapeHTML(false)
	if err := enc.Encode(chat.UpstreamRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	}); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", &payload)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
			"model":  req.Model,
		}).Debug("AI gateway rejected streaming request")
		return nil, &chat.UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}
