package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"journal-relay/domain/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockUpstream struct {
	mock.Mock
}

func (m *MockUpstream) OpenStream(ctx context.Context, req *chat.UpstreamRequest) (io.ReadCloser, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func testConfig() Config {
	return Config{
		APIKey:       "test-key",
		Model:        "google/gemini-2.5-flash",
		SystemPrompt: "Jesteś asystentem.",
	}
}

func userRequest() *chat.RelayRequest {
	return &chat.RelayRequest{Messages: []json.RawMessage{json.RawMessage(`{"role":"user","content":"Cześć"}`)}}
}

func TestService_Open_Success(t *testing.T) {
	upstream := &MockUpstream{}
	body := io.NopCloser(strings.NewReader("data: [DONE]\n"))

	upstream.On("OpenStream", mock.MatchedBy(func(req *chat.UpstreamRequest) bool {
		return req.Model == "google/gemini-2.5-flash" &&
			req.Stream &&
			len(req.Messages) == 2 &&
			string(req.Messages[0]) == `{"role":"system","content":"Jesteś asystentem."}` &&
			string(req.Messages[1]) == `{"role":"user","content":"Cześć"}`
	})).Return(body, nil)

	service := NewService(upstream, testConfig())
	result := service.Open(context.Background(), userRequest())

	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, body, result.Body)
	assert.Empty(t, result.Error)
	upstream.AssertExpectations(t)
}

func TestService_Open_ForwardsEmptyConversation(t *testing.T) {
	upstream := &MockUpstream{}
	upstream.On("OpenStream", mock.MatchedBy(func(req *chat.UpstreamRequest) bool {
		return len(req.Messages) == 1 && strings.Contains(string(req.Messages[0]), `"role":"system"`)
	})).Return(io.NopCloser(strings.NewReader("")), nil)

	service := NewService(upstream, testConfig())
	result := service.Open(context.Background(), &chat.RelayRequest{Messages: []json.RawMessage{}})

	assert.Equal(t, http.StatusOK, result.Status)
	upstream.AssertExpectations(t)
}

func TestService_Open_ForwardsMessagesUnchanged(t *testing.T) {
	multimodal := json.RawMessage(`{"role":"user","content":[{"type":"text","text":"hi"}],"name":"ala"}`)
	upstream := &MockUpstream{}
	upstream.On("OpenStream", mock.MatchedBy(func(req *chat.UpstreamRequest) bool {
		return len(req.Messages) == 2 && string(req.Messages[1]) == string(multimodal)
	})).Return(io.NopCloser(strings.NewReader("")), nil)

	service := NewService(upstream, testConfig())
	result := service.Open(context.Background(), &chat.RelayRequest{Messages: []json.RawMessage{multimodal}})

	assert.Equal(t, http.StatusOK, result.Status)
	upstream.AssertExpectations(t)
}

func TestService_Open_MissingCredential(t *testing.T) {
	upstream := &MockUpstream{}
	config := testConfig()
	config.APIKey = ""

	service := NewService(upstream, config)
	result := service.Open(context.Background(), userRequest())

	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Nil(t, result.Body)
	assert.Equal(t, chat.ErrMissingCredential.Error(), result.Error)
	upstream.AssertNotCalled(t, "OpenStream", mock.Anything)
}

func TestService_Open_MissingMessages(t *testing.T) {
	upstream := &MockUpstream{}
	service := NewService(upstream, testConfig())

	result := service.Open(context.Background(), &chat.RelayRequest{})
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Equal(t, ErrMissingMessages.Error(), result.Error)

	result = service.Open(context.Background(), nil)
	assert.Equal(t, http.StatusInternalServerError, result.Status)

	upstream.AssertNotCalled(t, "OpenStream", mock.Anything)
}

func TestService_Open_StatusMapping(t *testing.T) {
	tests := []struct {
		name           string
		upstreamStatus int
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "rate limited",
			upstreamStatus: http.StatusTooManyRequests,
			expectedStatus: http.StatusTooManyRequests,
			expectedError:  MessageRateLimited,
		},
		{
			name:           "payment required",
			upstreamStatus: http.StatusPaymentRequired,
			expectedStatus: http.StatusPaymentRequired,
			expectedError:  MessagePaymentRequired,
		},
		{
			name:           "gateway failure",
			upstreamStatus: http.StatusInternalServerError,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  MessageGatewayError,
		},
		{
			name:           "unauthorized upstream",
			upstreamStatus: http.StatusUnauthorized,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  MessageGatewayError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &MockUpstream{}
			upstream.On("OpenStream", mock.Anything).
				Return(nil, &chat.UpstreamStatusError{StatusCode: tt.upstreamStatus, Body: "secret upstream detail"}).
				Once()

			service := NewService(upstream, testConfig())
			result := service.Open(context.Background(), userRequest())

			assert.Equal(t, tt.expectedStatus, result.Status)
			assert.Equal(t, tt.expectedError, result.Error)
			assert.NotContains(t, result.Error, "secret upstream detail")
			assert.Nil(t, result.Body)
			upstream.AssertNumberOfCalls(t, "OpenStream", 1)
		})
	}
}

func TestService_Open_TransportError(t *testing.T) {
	upstream := &MockUpstream{}
	upstream.On("OpenStream", mock.Anything).Return(nil, errors.New("do: connection refused"))

	service := NewService(upstream, testConfig())
	result := service.Open(context.Background(), userRequest())

	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Equal(t, "do: connection refused", result.Error)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, MessageUnknownError, ErrorMessage(nil))
	assert.Equal(t, MessageUnknownError, ErrorMessage(errors.New("")))
	assert.Equal(t, "boom", ErrorMessage(errors.New("boom")))
}
