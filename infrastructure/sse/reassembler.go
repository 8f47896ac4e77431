package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a reply is already being streamed.
var ErrBusy = errors.New("a reply is already streaming")

const readSize = 4096

// Listener receives the full reply accumulated so far after every delta,
// so a view can replace one growing message instead of appending fragments.
type Listener interface {
	OnDelta(cumulative string)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(cumulative string)

func (f ListenerFunc) OnDelta(cumulative string) { f(cumulative) }

// OpenFunc starts a request and returns the event stream body once the
// response headers have arrived.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// RequestState is the lifecycle of the reassembler.
type RequestState int

const (
	StateIdle RequestState = iota
	StateStreaming
	StateError
)

func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Reassembler owns the single in-flight reply stream: idle -> streaming -> {idle, error}.
type Reassembler struct {
	policy TrailingPolicy

	mu      sync.Mutex
	state   RequestState
	lastErr error
}

// NewReassembler creates a reassembler applying policy to trailing fragments.
func NewReassembler(policy TrailingPolicy) *Reassembler {
	return &Reassembler{policy: policy}
}

// CanSend reports whether a new reply stream may be started.
func (r *Reassembler) CanSend() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != StateStreaming
}

// State returns the current request state.
func (r *Reassembler) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the error that moved the reassembler into StateError, if any.
func (r *Reassembler) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Reset clears a previous error. It has no effect while streaming.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateError {
		r.state = StateIdle
		r.lastErr = nil
	}
}

// Stream opens a reply and consumes it to completion. The busy state covers
// both the wait for response headers and the body reads.
func (r *Reassembler) Stream(ctx context.Context, open OpenFunc, l Listener) (string, error) {
	if err := r.begin(); err != nil {
		return "", err
	}

	body, err := open(ctx)
	if err != nil {
		r.end(err)
		return "", err
	}
	defer body.Close()

	content, err := r.consume(ctx, body, l)
	r.end(err)
	return content, err
}

// Consume reads an already opened event stream. On failure the content
// accumulated before the error is returned together with it.
func (r *Reassembler) Consume(ctx context.Context, body io.Reader, l Listener) (string, error) {
	if err := r.begin(); err != nil {
		return "", err
	}
	content, err := r.consume(ctx, body, l)
	r.end(err)
	return content, err
}

func (r *Reassembler) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateStreaming {
		return ErrBusy
	}
	r.state = StateStreaming
	r.lastErr = nil
	return nil
}

func (r *Reassembler) end(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = StateError
		r.lastErr = err
		return
	}
	r.state = StateIdle
}

func (r *Reassembler) consume(ctx context.Context, body io.Reader, l Listener) (string, error) {
	var st State
	buf := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return st.Content(), err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			var deltas []Delta
			st, deltas = Parse(st, buf[:n])
			for _, d := range deltas {
				if l != nil {
					l.OnDelta(d.Cumulative)
				}
			}
			if st.Done() {
				break
			}
		}

		if readErr == io.EOF {
			var deltas []Delta
			var err error
			st, deltas, err = Finish(st, r.policy)
			for _, d := range deltas {
				if l != nil {
					l.OnDelta(d.Cumulative)
				}
			}
			if err != nil {
				return st.Content(), err
			}
			break
		}
		if readErr != nil {
			return st.Content(), fmt.Errorf("stream read: %w", readErr)
		}
	}

	if st.Dropped() > 0 {
		logrus.WithField("dropped", st.Dropped()).Warn("Discarded malformed stream fragments")
	}
	return st.Content(), nil
}
