// Package relayclient talks to the relay and journal API over HTTP.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"journal-relay/application/mood"
	"journal-relay/domain/chat"
	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MessageStartFailed is shown when a conversation could not be started
const MessageStartFailed = "Nie udało się rozpocząć rozmowy"

// ErrStartFailed is returned when the relay refused a conversation for a
// reason the user cannot act on.
var ErrStartFailed error = &startError{}

type startError struct{}

func (*startError) Error() string { return "relay could not start the conversation" }

// UserMessage returns the text shown to the user
func (*startError) UserMessage() string { return MessageStartFailed }

// UserIDHeader carries the authenticated user id to the journal API
const UserIDHeader = "X-User-ID"

// APIError is a non-success answer carrying the server's error message
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// UserMessage returns the server's message, which is already meant for the user
func (e *APIError) UserMessage() string {
	return e.Message
}

// Config holds the client connection settings
type Config struct {
	BaseURL   string
	RelayPath string
	Token     string
	UserID    uuid.UUID
}

// Client is a relay and journal API client
type Client struct {
	baseURL    string
	relayPath  string
	token      string
	userID     uuid.UUID
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	relayPath := cfg.RelayPath
	if relayPath == "" {
		relayPath = "/chat"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		relayPath:  relayPath,
		token:      cfg.Token,
		userID:     cfg.UserID,
		httpClient: &http.Client{Transport: transport},
	}
}

// OpenChat starts a reply stream. 429 and 402 come back as *APIError with the
// server's message, any other failure as ErrStartFailed.
func (c *Client) OpenChat(ctx context.Context, messages []chat.Message) (io.ReadCloser, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	payload, err := json.Marshal(chat.Request{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.relayPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.WithError(err).Debug("Relay request failed")
		return nil, ErrStartFailed
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 && resp.Body != nil {
		return resp.Body, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return nil, ErrStartFailed
}

// CreateEntry starts a new journal entry
func (c *Client) CreateEntry(ctx context.Context) (*persistence.JournalEntry, error) {
	var entry persistence.JournalEntry
	if err := c.doJSON(ctx, http.MethodPost, "/entries", nil, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns the user's entries newest first
func (c *Client) ListEntries(ctx context.Context) ([]persistence.JournalEntry, error) {
	var entries []persistence.JournalEntry
	if err := c.doJSON(ctx, http.MethodGet, "/entries", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListEntriesSince returns entries created at or after since, oldest first
func (c *Client) ListEntriesSince(ctx context.Context, since time.Time) ([]persistence.JournalEntry, error) {
	query := url.Values{"since": {since.Format(time.RFC3339)}}
	var entries []persistence.JournalEntry
	if err := c.doJSON(ctx, http.MethodGet, "/entries", query, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListMessages returns an entry's conversation in order
func (c *Client) ListMessages(ctx context.Context, entryID uuid.UUID) ([]persistence.ConversationMessage, error) {
	var msgs []persistence.ConversationMessage
	if err := c.doJSON(ctx, http.MethodGet, "/entries/"+entryID.String()+"/messages", nil, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// AddMessages appends messages to an entry
func (c *Client) AddMessages(ctx context.Context, entryID uuid.UUID, messages []chat.Message) error {
	body := chat.Request{Messages: messages}
	return c.doJSON(ctx, http.MethodPost, "/entries/"+entryID.String()+"/messages", nil, body, nil)
}

// Mood returns the mood of an entry
func (c *Client) Mood(ctx context.Context, entryID uuid.UUID) (mood.Result, error) {
	var result mood.Result
	err := c.doJSON(ctx, http.MethodGet, "/entries/"+entryID.String()+"/mood", nil, nil, &result)
	return result, err
}

type summaryRequest struct {
	WeekStart time.Time `json:"week_start"`
	Content   string    `json:"content"`
}

// SaveSummary stores a weekly summary
func (c *Client) SaveSummary(ctx context.Context, weekStart time.Time, content string) (*persistence.WeeklySummary, error) {
	var summary persistence.WeeklySummary
	body := summaryRequest{WeekStart: weekStart, Content: content}
	if err := c.doJSON(ctx, http.MethodPost, "/summaries", nil, body, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSummaries returns the user's weekly summaries, latest first
func (c *Client) ListSummaries(ctx context.Context) ([]persistence.WeeklySummary, error) {
	var summaries []persistence.WeeklySummary
	if err := c.doJSON(ctx, http.MethodGet, "/summaries", nil, nil, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Export downloads the whole journal. It returns the file name suggested by
// the server and the file content.
func (c *Client) Export(ctx context.Context, format string) (string, []byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/export", url.Values{"format": {format}}, nil)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read export: %w", err)
	}

	filename := "dziennik." + format
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return filename, data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends a journal API request and turns any non-2xx status into *APIError
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(UserIDHeader, c.userID.String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	return resp, nil
}

func errorMessage(body io.Reader) string {
	var payload chat.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(body, 64*1024)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}
