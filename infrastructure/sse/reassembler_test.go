package sse

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one chunk per Read call
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type recordingListener struct {
	updates []string
}

func (l *recordingListener) OnDelta(cumulative string) {
	l.updates = append(l.updates, cumulative)
}

func TestReassembler_Consume(t *testing.T) {
	r := NewReassembler(TrailingDrop)
	listener := &recordingListener{}

	reader := &chunkReader{chunks: []string{
		": comment\n",
		`data: {"choices":[{"delta":{"content":"He"}}]}` + "\n",
		`data: {"choices":[{"delta":{"con`,
		`tent":"llo"}}]}` + "\n",
		"data: [DONE]\n",
		frame("ignored after done"),
	}}

	content, err := r.Consume(context.Background(), reader, listener)

	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, []string{"He", "Hello"}, listener.updates)
	assert.Equal(t, StateIdle, r.State())
	assert.True(t, r.CanSend())
}

func TestReassembler_EndOfDataWithoutSentinel(t *testing.T) {
	r := NewReassembler(TrailingDrop)

	content, err := r.Consume(context.Background(), strings.NewReader(frame("Hello")), nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, StateIdle, r.State())
}

func TestReassembler_TrailingPolicy(t *testing.T) {
	stream := frame("Hello") + `data: {"choices":[{"delta":{"content":" wor`

	t.Run("drop keeps completed content", func(t *testing.T) {
		r := NewReassembler(TrailingDrop)
		content, err := r.Consume(context.Background(), strings.NewReader(stream), nil)
		require.NoError(t, err)
		assert.Equal(t, "Hello", content)
		assert.Equal(t, StateIdle, r.State())
	})

	t.Run("error reports truncation", func(t *testing.T) {
		r := NewReassembler(TrailingError)
		content, err := r.Consume(context.Background(), strings.NewReader(stream), nil)
		assert.ErrorIs(t, err, ErrTruncatedStream)
		assert.Equal(t, "Hello", content)
		assert.Equal(t, StateError, r.State())
		assert.ErrorIs(t, r.Err(), ErrTruncatedStream)
		assert.True(t, r.CanSend())
	})
}

func TestReassembler_DoneWithoutTrailingNewline(t *testing.T) {
	stream := frame("He") + `data: {"choices":[{"delta":{"content":"llo"}}]}` + "\n" + "data: [DONE]"

	for _, policy := range []TrailingPolicy{TrailingDrop, TrailingError} {
		r := NewReassembler(policy)
		listener := &recordingListener{}

		content, err := r.Consume(context.Background(), strings.NewReader(stream), listener)

		require.NoError(t, err)
		assert.Equal(t, "Hello", content)
		assert.Equal(t, []string{"He", "Hello"}, listener.updates)
		assert.Equal(t, StateIdle, r.State())
	}
}

func TestReassembler_LastFrameWithoutTrailingNewline(t *testing.T) {
	stream := frame("He") + `data: {"choices":[{"delta":{"content":"llo"}}]}`
	r := NewReassembler(TrailingError)
	listener := &recordingListener{}

	content, err := r.Consume(context.Background(), strings.NewReader(stream), listener)

	require.NoError(t, err)
	assert.Equal(t, "Hello", content)
	assert.Equal(t, []string{"He", "Hello"}, listener.updates)
}

func TestReassembler_ReadError(t *testing.T) {
	r := NewReassembler(TrailingDrop)
	reader := &chunkReader{chunks: []string{frame("partial")}, err: errors.New("connection reset")}

	content, err := r.Consume(context.Background(), reader, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "partial", content)
	assert.Equal(t, StateError, r.State())
}

func TestReassembler_CancelledContext(t *testing.T) {
	r := NewReassembler(TrailingDrop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Consume(ctx, strings.NewReader(frame("Hello")), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateError, r.State())
}

func TestReassembler_RejectsConcurrentStream(t *testing.T) {
	r := NewReassembler(TrailingDrop)
	pr, pw := io.Pipe()
	listener := &recordingListener{}

	done := make(chan string)
	go func() {
		content, _ := r.Consume(context.Background(), pr, ListenerFunc(listener.OnDelta))
		done <- content
	}()

	require.Eventually(t, func() bool { return r.State() == StateStreaming }, time.Second, time.Millisecond)
	assert.False(t, r.CanSend())

	_, err := r.Consume(context.Background(), strings.NewReader(frame("other")), nil)
	assert.ErrorIs(t, err, ErrBusy)

	_, err = pw.Write([]byte(frame("first") + "data: [DONE]\n"))
	require.NoError(t, err)
	pw.Close()

	assert.Equal(t, "first", <-done)
	assert.Equal(t, []string{"first"}, listener.updates)
	assert.True(t, r.CanSend())
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReassembler_Stream(t *testing.T) {
	t.Run("opens and closes body", func(t *testing.T) {
		r := NewReassembler(TrailingDrop)
		body := &closeTracker{Reader: strings.NewReader(frame("Hi") + "data: [DONE]\n")}

		content, err := r.Stream(context.Background(), func(ctx context.Context) (io.ReadCloser, error) {
			assert.Equal(t, StateStreaming, r.State())
			return body, nil
		}, nil)

		require.NoError(t, err)
		assert.Equal(t, "Hi", content)
		assert.True(t, body.closed)
		assert.Equal(t, StateIdle, r.State())
	})

	t.Run("open failure", func(t *testing.T) {
		r := NewReassembler(TrailingDrop)
		openErr := errors.New("rate limited")

		content, err := r.Stream(context.Background(), func(ctx context.Context) (io.ReadCloser, error) {
			return nil, openErr
		}, nil)

		assert.ErrorIs(t, err, openErr)
		assert.Empty(t, content)
		assert.Equal(t, StateError, r.State())
		assert.ErrorIs(t, r.Err(), openErr)
		assert.True(t, r.CanSend())

		r.Reset()
		assert.Equal(t, StateIdle, r.State())
		assert.NoError(t, r.Err())
	})
}

func TestRequestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", RequestState(9).String())
}
