package chat

import "encoding/json"

// Core chat entities independent of frameworks and vendors

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a conversation as sent by the client and stored by the journal API.
type Request struct {
	Messages []Message `json:"messages"`
}

// RelayRequest is the body accepted by the relay. Messages are kept exactly as
// the caller sent them; a nil slice means the field was absent.
type RelayRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// UpstreamRequest is what the relay forwards to the completion provider.
type UpstreamRequest struct {
	Model    string            `json:"model"`
	Messages []json.RawMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

// Streaming chunk types (OpenAI-compatible). Only choices[0].delta.content is read.
type StreamDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

type StreamChunk struct {
	ID      string         `json:"id,omitempty"`
	Object  string         `json:"object,omitempty"`
	Created int64          `json:"created,omitempty"`
	Model   string         `json:"model,omitempty"`
	Choices []StreamChoice `json:"choices"`
}

// DeltaContent returns the incremental content of the first choice, if any.
func (c StreamChunk) DeltaContent() (string, bool) {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *c.Choices[0].Delta.Content, true
}

type ErrorResponse struct {
	Error string `json:"error"`
}
