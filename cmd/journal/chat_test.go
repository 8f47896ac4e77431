package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"journal-relay/application/conversation"
	"journal-relay/domain/chat"
	"journal-relay/domain/persistence"
	"journal-relay/infrastructure/relayclient"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves the journal API endpoints used by the chat command
type fakeServer struct {
	*httptest.Server
	entryID uuid.UUID

	mu    sync.Mutex
	saved []chat.Message
}

func newFakeServer(t *testing.T, replyParts ...string) *fakeServer {
	t.Helper()
	fs := &fakeServer{entryID: uuid.New()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /entries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(persistence.JournalEntry{ID: fs.entryID, CreatedAt: time.Now()})
	})
	mux.HandleFunc("GET /entries/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]persistence.ConversationMessage{
			{EntryID: fs.entryID, Role: string(chat.RoleUser), Content: "Wczoraj było źle"},
			{EntryID: fs.entryID, Role: string(chat.RoleAssistant), Content: "Przykro mi"},
		})
	})
	mux.HandleFunc("POST /entries/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.saved = append(fs.saved, req.Messages...)
		fs.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range replyParts {
			w.Write([]byte(`data: {"choices":[{"delta":{"content":"` + p + `"}}]}` + "\n\n"))
		}
		w.Write([]byte("data: [DONE]\n\n"))
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) client() *relayclient.Client {
	return relayclient.NewClient(relayclient.Config{BaseURL: fs.URL, UserID: uuid.New()})
}

func (fs *fakeServer) savedMessages() []chat.Message {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]chat.Message(nil), fs.saved...)
}

func TestRunChat_NewEntry(t *testing.T) {
	fs := newFakeServer(t, "Jest ", "super!")
	ctx := context.Background()

	var out, errOut bytes.Buffer
	printer := &replyPrinter{out: &out}
	session, err := openSession(ctx, fs.client(), "", printer, &errOut)
	require.NoError(t, err)
	assert.Equal(t, fs.entryID, session.EntryID())

	in := strings.NewReader("Czuję się dobrze\n/mood\n/quit\n")
	require.NoError(t, runChat(ctx, session, printer, in, &out))

	text := out.String()
	assert.Contains(t, text, "Wpis "+fs.entryID.String())
	assert.Contains(t, text, conversation.Greeting)
	assert.Contains(t, text, "Jest super!\n")
	assert.Contains(t, text, "Nastrój: pozytywny (+1)")
	assert.Empty(t, errOut.String())

	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "Czuję się dobrze"},
		{Role: chat.RoleAssistant, Content: "Jest super!"},
	}, fs.savedMessages())
}

func TestRunChat_ExistingEntry(t *testing.T) {
	fs := newFakeServer(t, "Rozumiem")
	ctx := context.Background()

	var out, errOut bytes.Buffer
	printer := &replyPrinter{out: &out}
	session, err := openSession(ctx, fs.client(), fs.entryID.String(), printer, &errOut)
	require.NoError(t, err)

	require.NoError(t, runChat(ctx, session, printer, strings.NewReader(""), &out))

	text := out.String()
	assert.Contains(t, text, "> Wczoraj było źle\n")
	assert.Contains(t, text, "Przykro mi\n")
	assert.NotContains(t, text, conversation.Greeting)
	assert.Equal(t, "negatywny", session.Mood().Label)
}

func TestOpenSession_InvalidEntry(t *testing.T) {
	fs := newFakeServer(t)

	_, err := openSession(context.Background(), fs.client(), "not-a-uuid", &replyPrinter{out: &bytes.Buffer{}}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestOpenSession_CreateFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := relayclient.NewClient(relayclient.Config{BaseURL: server.URL, UserID: uuid.New()})
	var errOut bytes.Buffer
	_, err := openSession(context.Background(), client, "", &replyPrinter{out: &bytes.Buffer{}}, &errOut)

	var apiErr *relayclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, errOut.String(), messageEntryFailed)
}

func TestReplyPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &replyPrinter{out: &out}

	p.OnDelta("Dzień ")
	p.OnDelta("Dzień dobry")
	p.Reset()
	p.OnDelta("Dzień ")
	p.OnDelta("Dzień dobry!")

	assert.Equal(t, "Dzień dobryDzień dobry!", out.String())
}

func TestConsoleNotifier(t *testing.T) {
	var out bytes.Buffer
	n := consoleNotifier{out: &out}

	n.Error("Wystąpił błąd")
	n.Success("Gotowe")

	assert.Equal(t, "✗ Wystąpił błąd\n✓ Gotowe\n", out.String())
}

func TestPrintEntries(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		printEntries(&out, nil)
		assert.Equal(t, "Brak wpisów\n", out.String())
	})

	t.Run("rows", func(t *testing.T) {
		id := uuid.New()
		var out bytes.Buffer
		printEntries(&out, []persistence.JournalEntry{
			{ID: id, MoodLabel: "pozytywny", CreatedAt: time.Now()},
			{ID: uuid.New(), CreatedAt: time.Now()},
		})

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "NASTRÓJ")
		assert.Contains(t, lines[1], id.String())
		assert.Contains(t, lines[1], "pozytywny")
		assert.True(t, strings.HasSuffix(lines[2], "-"))
	})
}

type stubExporter struct {
	filename string
	data     []byte
	err      error
}

func (s stubExporter) Export(ctx context.Context, format string) (string, []byte, error) {
	return s.filename, s.data, s.err
}

func TestExportJournal(t *testing.T) {
	dir := t.TempDir()

	path, err := exportJournal(context.Background(), stubExporter{
		filename: "../dziennik-2025-03-12.csv",
		data:     []byte("entry_id,role\n"),
	}, "csv", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dziennik-2025-03-12.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "entry_id,role\n", string(data))

	_, err = exportJournal(context.Background(), stubExporter{err: errors.New("boom")}, "json", dir)
	assert.EqualError(t, err, "boom")
}
