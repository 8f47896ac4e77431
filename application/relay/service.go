package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"journal-relay/domain/chat"

	"github.com/sirupsen/logrus"
)

// Caller-visible error messages
const (
	MessageRateLimited     = "Limit zapytań przekroczony. Spróbuj ponownie za chwilę."
	MessagePaymentRequired = "Wymagana płatność. Dodaj środki do konta Lovable AI."
	MessageGatewayError    = "Błąd AI gateway"
	MessageUnknownError    = "Nieznany błąd"
)

// ErrMissingMessages is returned for a body without a messages field
var ErrMissingMessages = errors.New("messages is required")

// Config is built once at startup and passed in explicitly
type Config struct {
	APIKey       string
	Model        string
	SystemPrompt string
}

// Result is what the HTTP layer writes back. Body is set only for a 200 result
// and must be closed by the caller.
type Result struct {
	Status int
	Body   io.ReadCloser
	Error  string
}

// Service is a thin pass-through to the AI gateway. It never retries and writes no state.
type Service struct {
	upstream chat.UpstreamPort
	config   Config
}

func NewService(upstream chat.UpstreamPort, config Config) *Service {
	return &Service{
		upstream: upstream,
		config:   config,
	}
}

// Open forwards the conversation with the system instruction prepended and maps
// the gateway outcome to the response status and body.
func (s *Service) Open(ctx context.Context, req *chat.RelayRequest) *Result {
	if req == nil || req.Messages == nil {
		return failure(http.StatusInternalServerError, ErrMissingMessages)
	}

	if s.config.APIKey == "" {
		logrus.Error("AI gateway API key is not configured, refusing to contact the gateway")
		return failure(http.StatusInternalServerError, chat.ErrMissingCredential)
	}

	system, err := json.Marshal(chat.Message{Role: chat.RoleSystem, Content: s.config.SystemPrompt})
	if err != nil {
		return failure(http.StatusInternalServerError, fmt.Errorf("encode system prompt: %w", err))
	}
	messages := make([]json.RawMessage, 0, len(req.Messages)+1)
	messages = append(messages, system)
	messages = append(messages, req.Messages...)

	body, err := s.upstream.OpenStream(ctx, &chat.UpstreamRequest{
		Model:    s.config.Model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return s.mapError(err)
	}

	logrus.WithFields(logrus.Fields{
		"model":    s.config.Model,
		"messages": len(req.Messages),
	}).Debug("Relaying AI gateway stream")

	return &Result{Status: http.StatusOK, Body: body}
}

func (s *Service) mapError(err error) *Result {
	var statusErr *chat.UpstreamStatusError
	if !errors.As(err, &statusErr) {
		logrus.WithError(err).Error("Chat relay error")
		return failure(http.StatusInternalServerError, err)
	}

	switch {
	case statusErr.IsRateLimited():
		return &Result{Status: http.StatusTooManyRequests, Error: MessageRateLimited}
	case statusErr.IsPaymentRequired():
		return &Result{Status: http.StatusPaymentRequired, Error: MessagePaymentRequired}
	default:
		logrus.WithFields(logrus.Fields{
			"status": statusErr.StatusCode,
			"body":   statusErr.Body,
			"model":  s.config.Model,
		}).Error("AI gateway error")
		return &Result{Status: http.StatusInternalServerError, Error: MessageGatewayError}
	}
}

func failure(status int, err error) *Result {
	return &Result{Status: status, Error: ErrorMessage(err)}
}

// ErrorMessage converts an arbitrary failure into the error text sent to the caller
func ErrorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return MessageUnknownError
	}
	return err.Error()
}
