package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"journal-relay/domain/chat"
	"journal-relay/domain/persistence"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, uuid.UUID) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	userID := uuid.New()
	return NewClient(Config{BaseURL: server.URL + "/", Token: "jwt-token", UserID: userID}), userID
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://relay.test/"})

	assert.Equal(t, "http://relay.test", c.baseURL)
	assert.Equal(t, "/chat", c.relayPath)
	assert.Zero(t, c.httpClient.Timeout)
}

func TestClient_OpenChat(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hej\"}}]}\n\ndata: [DONE]\n\n"

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		var body chat.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "Cześć", body.Messages[0].Content)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(stream))
	})

	body, err := c.OpenChat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "Cześć"}})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, stream, string(data))
}

func TestClient_OpenChat_WithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))

		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["messages"]))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	body, err := c.OpenChat(context.Background(), nil)
	require.NoError(t, err)
	body.Close()
}

func TestClient_OpenChat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":"Przekroczono limit zapytań, spróbuj ponownie później."}`,
			expected: &APIError{Status: 429, Message: "Przekroczono limit zapytań, spróbuj ponownie później."},
		},
		{
			name:     "payment required",
			status:   http.StatusPaymentRequired,
			body:     `{"error":"Brak środków"}`,
			expected: &APIError{Status: 402, Message: "Brak środków"},
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error":"AI gateway error"}`,
			expected: ErrStartFailed,
		},
		{
			name:     "bad gateway without body",
			status:   http.StatusBadGateway,
			expected: ErrStartFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			body, err := c.OpenChat(context.Background(), []chat.Message{{Role: chat.RoleUser, Content: "x"}})
			assert.Nil(t, body)
			assert.Equal(t, tt.expected, err)
		})
	}
}

func TestErrors_UserMessage(t *testing.T) {
	assert.Equal(t, "relay could not start the conversation", ErrStartFailed.Error())

	var uf interface{ UserMessage() string }
	require.ErrorAs(t, fmt.Errorf("open: %w", ErrStartFailed), &uf)
	assert.Equal(t, MessageStartFailed, uf.UserMessage())

	apiErr := &APIError{Status: 429, Message: "Limit zapytań przekroczony"}
	assert.Equal(t, "Limit zapytań przekroczony", apiErr.UserMessage())
	assert.Equal(t, "request failed with status 502", (&APIError{Status: 502}).Error())
}

func TestClient_OpenChat_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.OpenChat(context.Background(), []chat.Message{})
	assert.ErrorIs(t, err, ErrStartFailed)
}

func TestClient_OpenChat_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Config{BaseURL: server.URL})
	_, err := c.OpenChat(ctx, []chat.Message{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Entries(t *testing.T) {
	entryID := uuid.New()
	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	var userID uuid.UUID
	c, userID := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userID.String(), r.Header.Get(UserIDHeader))

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/entries":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(persistence.JournalEntry{ID: entryID, UserID: userID})
		case r.Method == http.MethodGet && r.URL.Path == "/entries":
			if r.URL.Query().Get("since") != "" {
				assert.Equal(t, "2025-03-10T00:00:00Z", r.URL.Query().Get("since"))
			}
			json.NewEncoder(w).Encode([]persistence.JournalEntry{{ID: entryID}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	entry, err := c.CreateEntry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entryID, entry.ID)

	entries, err := c.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = c.ListEntriesSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, entryID, entries[0].ID)
}

func TestClient_Messages(t *testing.T) {
	entryID := uuid.New()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entries/"+entryID.String()+"/messages", r.URL.Path)

		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body chat.Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []chat.Message{
				{Role: chat.RoleUser, Content: "Hej"},
				{Role: chat.RoleAssistant, Content: "Cześć"},
			}, body.Messages)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[]`))
			return
		}

		json.NewEncoder(w).Encode([]persistence.ConversationMessage{
			{EntryID: entryID, Role: "user", Content: "Hej"},
		})
	})

	err := c.AddMessages(context.Background(), entryID, []chat.Message{
		{Role: chat.RoleUser, Content: "Hej"},
		{Role: chat.RoleAssistant, Content: "Cześć"},
	})
	require.NoError(t, err)

	msgs, err := c.ListMessages(context.Background(), entryID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hej", msgs[0].Content)
}

func TestClient_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"entry not found"}`))
	})

	_, err := c.ListMessages(context.Background(), uuid.New())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "entry not found", apiErr.Error())
}

func TestClient_MoodAndSummaries(t *testing.T) {
	entryID := uuid.New()
	weekStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/entries/"+entryID.String()+"/mood":
			w.Write([]byte(`{"label":"pozytywny","score":2}`))
		case r.Method == http.MethodPost && r.URL.Path == "/summaries":
			var body summaryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.True(t, weekStart.Equal(body.WeekStart))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(persistence.WeeklySummary{WeekStart: body.WeekStart, Content: body.Content})
		case r.Method == http.MethodGet && r.URL.Path == "/summaries":
			json.NewEncoder(w).Encode([]persistence.WeeklySummary{{Content: "Spokojny tydzień."}})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	result, err := c.Mood(context.Background(), entryID)
	require.NoError(t, err)
	assert.Equal(t, "pozytywny", result.Label)
	assert.Equal(t, 2, result.Score)

	summary, err := c.SaveSummary(context.Background(), weekStart, "Spokojny tydzień.")
	require.NoError(t, err)
	assert.Equal(t, "Spokojny tydzień.", summary.Content)

	summaries, err := c.ListSummaries(context.Background())
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestClient_Export(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/export", r.URL.Path)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Header().Set("Content-Disposition", `attachment; filename="dziennik_2025-03-12.csv"`)
		w.Write([]byte("entry_id,created_at,role,content\n"))
	})

	filename, data, err := c.Export(context.Background(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "dziennik_2025-03-12.csv", filename)
	assert.Equal(t, "entry_id,created_at,role,content\n", string(data))
}
