package relay

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sweetlink/sweetlink/internal/codename"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// Bridge protocol defaults.
const (
	DefaultPort = 4455
	BridgePath  = "/bridge"

	HeartbeatInterval  = 15 * time.Second
	HeartbeatTolerance = 45 * time.Second

	// MaxInFlight bounds outstanding commands per session; the protocol
	// itself imposes no backpressure, so excess commands are rejected
	// rather than queued.
	MaxInFlight = 32

	DefaultCommandTimeout = 15 * time.Second
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session id already registered")
	ErrSessionNotLive  = errors.New("session is not live")
	ErrTooManyInFlight = errors.New("too many in-flight commands for session")
)

// sendFunc delivers one envelope to a session's socket. The registry never
// holds the socket itself; the socket layer owns writes and the registry
// reaches it only through this function, keyed by session id.
type sendFunc func(protocol.Envelope) error

type session struct {
	meta        protocol.SessionMeta
	codename    string
	createdAt   time.Time
	lastSeenAt  time.Time
	socketState protocol.SocketState

	consoleEvents int
	consoleErrors int

	send     sendFunc
	inflight *semaphore.Weighted
	pending  map[string]chan *protocol.CommandResult
}

// Registry tracks every connected session: metadata, heartbeat recency,
// and in-flight commands correlated by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	names    *codename.Generator
	clock    func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		names:    codename.New(),
		clock:    time.Now,
	}
}

// Register creates a session record after token verification has passed,
// assigns a codename avoiding those in use, and returns it.
func (r *Registry) Register(meta protocol.SessionMeta, send sendFunc) (string, error) {
	if meta.SessionID == "" {
		return "", fmt.Errorf("registration without a session id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A replayed registration must not evict the live session holding this
	// id; the new leg is refused instead.
	if _, exists := r.sessions[meta.SessionID]; exists {
		return "", ErrSessionExists
	}

	inUse := make(map[string]bool, len(r.sessions))
	for _, s := range r.sessions {
		inUse[s.codename] = true
	}
	name, err := r.names.Generate(inUse)
	if err != nil {
		return "", fmt.Errorf("failed to generate codename: %w", err)
	}

	now := r.clock()
	r.sessions[meta.SessionID] = &session{
		meta:        meta,
		codename:    name,
		createdAt:   now,
		lastSeenAt:  now,
		socketState: protocol.SocketOpen,
		send:        send,
		inflight:    semaphore.NewWeighted(MaxInFlight),
		pending:     make(map[string]chan *protocol.CommandResult),
	}
	return name, nil
}

// Touch refreshes a session's liveness on heartbeats and traffic.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.lastSeenAt = r.clock()
	}
}

// RecordConsole accounts an unsolicited console batch against a session.
func (r *Registry) RecordConsole(sessionID string, events []protocol.ConsoleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.lastSeenAt = r.clock()
	for _, ev := range events {
		s.consoleEvents++
		if ev.Level == protocol.ConsoleError {
			s.consoleErrors++
		}
	}
}

// Enqueue forwards a command to a session's socket and returns a channel
// that receives the single correlated result. The caller is responsible
// for racing the channel against its own timeout.
func (r *Registry) Enqueue(sessionID string, cmd *protocol.Command) (<-chan *protocol.CommandResult, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	now := r.clock()
	if s.socketState != protocol.SocketOpen || now.Sub(s.lastSeenAt) > HeartbeatTolerance {
		r.mu.Unlock()
		return nil, ErrSessionNotLive
	}
	if !s.inflight.TryAcquire(1) {
		r.mu.Unlock()
		return nil, ErrTooManyInFlight
	}

	ch := make(chan *protocol.CommandResult, 1)
	s.pending[cmd.ID] = ch
	send := s.send
	r.mu.Unlock()

	if err := send(protocol.Envelope{Type: protocol.MessageCommand, Command: cmd}); err != nil {
		r.mu.Lock()
		if still, ok := r.sessions[sessionID]; ok {
			delete(still.pending, cmd.ID)
			still.inflight.Release(1)
		}
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to forward command: %w", err)
	}
	return ch, nil
}

// Resolve delivers a result to the waiter tracking its id. Results for
// unknown or already-resolved ids are dropped and logged.
func (r *Registry) Resolve(sessionID string, result *protocol.CommandResult) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		log.Printf("dropping result %s for unknown session %s", result.ID, sessionID)
		return
	}
	s.lastSeenAt = r.clock()
	ch, ok := s.pending[result.ID]
	if !ok {
		r.mu.Unlock()
		log.Printf("dropping result for unknown or resolved command %s (session %s)", result.ID, sessionID)
		return
	}
	delete(s.pending, result.ID)
	s.inflight.Release(1)
	r.mu.Unlock()

	ch <- result
	close(ch)
}

// SetState updates a session's socket state.
func (r *Registry) SetState(sessionID string, state protocol.SocketState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.socketState = state
	}
}

// Close removes a session and abandons its pending commands; waiting
// callers time out locally.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.socketState = protocol.SocketClosed
	delete(r.sessions, sessionID)
}

// Lookup returns one session summary.
func (r *Registry) Lookup(sessionID string) (protocol.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return protocol.SessionSummary{}, ErrSessionNotFound
	}
	return r.summarize(s), nil
}

// Summaries lists all tracked sessions.
func (r *Registry) Summaries() []protocol.SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, r.summarize(s))
	}
	return out
}

// summarize snapshots one session. Liveness is judged against a single
// clock read; callers hold at least a read lock.
func (r *Registry) summarize(s *session) protocol.SessionSummary {
	now := r.clock()
	return protocol.SessionSummary{
		SessionID:       s.meta.SessionID,
		Codename:        s.codename,
		URL:             s.meta.URL,
		Title:           s.meta.Title,
		TopOrigin:       s.meta.TopOrigin,
		UserAgent:       s.meta.UserAgent,
		CreatedAt:       s.createdAt,
		LastSeenAt:      s.lastSeenAt,
		SocketState:     s.socketState,
		ConsoleEvents:   s.consoleEvents,
		ConsoleErrors:   s.consoleErrors,
		PendingCommands: len(s.pending),
		Live:            s.socketState == protocol.SocketOpen && now.Sub(s.lastSeenAt) <= HeartbeatTolerance,
	}
}
