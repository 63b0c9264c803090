// Package chatcore implements the chat streaming core: an agent loop
// that composes conversation history and available tools, drives a
// provider's streaming API, interleaves tool calls against the MCP
// service, and emits an ordered event stream onto the bus.
package chatcore

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionState is the StreamSession.active field per spec.md §3.
type sessionState int32

const (
	stateIdle sessionState = iota
	stateStreaming
)

// StreamSession is the singleton-per-service streaming guard: at most one
// stream may be in flight at a time.
type StreamSession struct {
	active     int32 // sessionState, accessed atomically
	mu         sync.Mutex
	currentID  uuid.UUID
	cancelled  int32
}

// NewStreamSession returns an idle StreamSession.
func NewStreamSession() *StreamSession {
	return &StreamSession{}
}

// TryStart attempts the idle→streaming transition atomically, returning
// false if a stream is already in progress.
func (s *StreamSession) TryStart(conversationID uuid.UUID) bool {
	if !atomic.CompareAndSwapInt32(&s.active, int32(stateIdle), int32(stateStreaming)) {
		return false
	}
	s.mu.Lock()
	s.currentID = conversationID
	s.mu.Unlock()
	atomic.StoreInt32(&s.cancelled, 0)
	return true
}

// Finish returns the session to idle. Called on completion, error, or
// cancellation.
func (s *StreamSession) Finish() {
	atomic.StoreInt32(&s.active, int32(stateIdle))
}

// IsStreaming reports whether a stream is currently in progress.
func (s *StreamSession) IsStreaming() bool {
	return atomic.LoadInt32(&s.active) == int32(stateStreaming)
}

// CurrentConversation returns the conversation id of the in-flight
// stream, if any.
func (s *StreamSession) CurrentConversation() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsStreaming() {
		return uuid.UUID{}, false
	}
	return s.currentID, true
}

// Cancel flips the cancellation flag; the agent loop checks it between
// stream events and before dispatching a tool call. It does not itself
// transition the session back to idle — the loop does that as it
// emits StreamCancelled.
func (s *StreamSession) Cancel() {
	atomic.StoreInt32(&s.cancelled, 1)
}

// Cancelled reports whether Cancel has been called for the current run.
func (s *StreamSession) Cancelled() bool {
	return atomic.LoadInt32(&s.cancelled) == 1
}
