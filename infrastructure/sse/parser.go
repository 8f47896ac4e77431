// Package sse decodes the chat completion event stream relayed to the client
// and rebuilds the assistant reply from its content deltas.
//
// Parse is a pure function of the previous State and the next chunk of bytes,
// so the line buffering can be tested without any network or UI harness.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"

	"journal-relay/domain/chat"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"

	// maxHeldFragment bounds a payload waiting for its continuation line
	maxHeldFragment = 64 * 1024
)

// ErrTruncatedStream is returned by Finish under TrailingError when the stream
// ended with an incomplete line or an unparsed fragment.
var ErrTruncatedStream = errors.New("event stream ended with an incomplete fragment")

// TrailingPolicy decides what Finish does with data left over at end of stream.
type TrailingPolicy int

const (
	// TrailingDrop silently discards leftover data
	TrailingDrop TrailingPolicy = iota
	// TrailingError reports leftover data as ErrTruncatedStream
	TrailingError
)

// ParseTrailingPolicy maps a config value ("drop" or "error") to a policy.
func ParseTrailingPolicy(s string) (TrailingPolicy, error) {
	switch s {
	case "", "drop":
		return TrailingDrop, nil
	case "error":
		return TrailingError, nil
	default:
		return TrailingDrop, errors.New("unknown trailing policy: " + s)
	}
}

// Delta is one content fragment together with the reply accumulated so far.
type Delta struct {
	Content    string
	Cumulative string
}

// State is the parser state carried between reads. The zero value is ready to use.
type State struct {
	buffer  []byte
	held    []byte
	content string
	done    bool
	dropped int
}

// Content returns the concatenation of every delta seen so far.
func (s State) Content() string { return s.content }

// Done reports whether the [DONE] sentinel was observed.
func (s State) Done() bool { return s.done }

// Dropped counts fragments that were discarded without producing content.
func (s State) Dropped() int { return s.dropped }

// Pending reports whether undelivered bytes remain in the state.
func (s State) Pending() bool {
	return len(bytes.TrimSpace(s.buffer)) > 0 || len(s.held) > 0
}

// Parse appends chunk to the line buffer and processes every complete line.
// The input state is never modified.
func Parse(st State, chunk []byte) (State, []Delta) {
	if st.done {
		return st, nil
	}

	next := st
	buf := make([]byte, 0, len(st.buffer)+len(chunk))
	buf = append(buf, st.buffer...)
	buf = append(buf, chunk...)

	var deltas []Delta
	for !next.done {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := buf[:idx]
		buf = buf[idx+1:]

		if d, ok := next.processLine(line); ok {
			deltas = append(deltas, d)
		}
	}

	if next.done {
		next.buffer = nil
		next.held = nil
	} else {
		next.buffer = bytes.Clone(buf)
	}
	return next, deltas
}

// Finish runs once the underlying stream reports end of data. An unterminated
// last line is processed like any other line; only a fragment that is still
// unparsed afterwards is subject to policy.
func Finish(st State, policy TrailingPolicy) (State, []Delta, error) {
	var deltas []Delta
	if !st.done && len(bytes.TrimSpace(st.buffer)) > 0 {
		last := st.buffer
		st.buffer = nil
		if d, ok := st.processLine(last); ok {
			deltas = append(deltas, d)
		}
	}
	st.buffer = nil

	if st.done || len(st.held) == 0 {
		st.held = nil
		return st, deltas, nil
	}
	if policy == TrailingError {
		return st, deltas, ErrTruncatedStream
	}
	st.held = nil
	st.dropped++
	return st, deltas, nil
}

func (s *State) processLine(raw []byte) (Delta, bool) {
	line := bytes.ToValidUTF8(bytes.TrimSuffix(raw, []byte("\r")), []byte("\uFFFD"))

	if len(s.held) > 0 {
		return s.continueHeld(line)
	}

	payload, ok := framePayload(line)
	if !ok {
		return Delta{}, false
	}
	if string(payload) == doneSentinel {
		s.done = true
		return Delta{}, false
	}
	if !json.Valid(payload) {
		s.held = bytes.Clone(payload)
		return Delta{}, false
	}
	return s.apply(payload)
}

// continueHeld joins the next line onto a fragment that failed to parse,
// reinstating the newline that split them.
func (s *State) continueHeld(line []byte) (Delta, bool) {
	joined := make([]byte, 0, len(s.held)+1+len(line))
	joined = append(joined, s.held...)
	joined = append(joined, '\n')
	joined = append(joined, line...)

	if json.Valid(bytes.TrimSpace(joined)) {
		s.held = nil
		return s.apply(bytes.TrimSpace(joined))
	}

	// A well-formed frame means the held fragment will never complete
	if payload, ok := framePayload(line); ok && (string(payload) == doneSentinel || json.Valid(payload)) {
		s.held = nil
		s.dropped++
		return s.processLine(line)
	}

	if isSkippable(line) {
		return Delta{}, false
	}
	if len(joined) > maxHeldFragment {
		s.held = nil
		s.dropped++
		return Delta{}, false
	}
	s.held = joined
	return Delta{}, false
}

func (s *State) apply(payload []byte) (Delta, bool) {
	var chunk chat.StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		// Valid JSON of another shape carries no content
		return Delta{}, false
	}
	content, ok := chunk.DeltaContent()
	if !ok || content == "" {
		return Delta{}, false
	}
	s.content += content
	return Delta{Content: content, Cumulative: s.content}, true
}

func isSkippable(line []byte) bool {
	return len(bytes.TrimSpace(line)) == 0 || bytes.HasPrefix(line, []byte(":"))
}

// framePayload returns the trimmed text after the data field prefix.
func framePayload(line []byte) ([]byte, bool) {
	if isSkippable(line) || !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return nil, false
	}
	return bytes.TrimSpace(line[len(dataPrefix):]), true
}
