package relay

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sweetlink/sweetlink/internal/token"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// socket serializes writes to one websocket connection. gorilla conns do
// not allow concurrent writers.
type socket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socket) writeJSON(env protocol.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

// HandleBridge upgrades a connection on /bridge and runs it as either the
// browser leg or the CLI leg, depending on the first frame.
func (s *Server) HandleBridge(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade bridge connection: %v", err)
		return
	}
	sock := &socket{conn: conn}
	defer conn.Close()

	var first protocol.Envelope
	if err := conn.ReadJSON(&first); err != nil {
		return
	}

	switch first.Type {
	case protocol.MessageRegister:
		s.runSessionLeg(sock, first)
	case protocol.MessageHello:
		s.runCLILeg(sock, first)
	default:
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "expected register or hello"})
	}
}

// runSessionLeg authenticates and registers a browser session, then pumps
// its heartbeat, result, and console traffic into the registry. The loop
// holds only the session id; all state lives in the registry.
func (s *Server) runSessionLeg(sock *socket, first protocol.Envelope) {
	payload, err := token.Verify(s.secret, first.Token, token.ScopeSession)
	if err != nil {
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "authentication failed: " + err.Error()})
		return
	}
	if first.Session == nil || first.Session.SessionID == "" {
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "registration failed: missing session metadata"})
		return
	}
	if payload.SessionID != "" && payload.SessionID != first.Session.SessionID {
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "registration failed: token not bound to this session"})
		return
	}

	meta := *first.Session
	name, err := s.registry.Register(meta, sock.writeJSON)
	if err != nil {
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "registration failed: " + err.Error()})
		return
	}
	sessionID := meta.SessionID
	defer s.registry.Close(sessionID)

	if err := sock.writeJSON(protocol.Envelope{Type: protocol.MessageMetadata, Codename: name}); err != nil {
		return
	}
	log.Printf("session %s registered as %q (%s)", sessionID, name, meta.URL)

	for {
		var msg protocol.Envelope
		if err := sock.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s socket error: %v", sessionID, err)
			}
			return
		}

		switch msg.Type {
		case protocol.MessageHeartbeat:
			s.registry.Touch(sessionID)
		case protocol.MessageCommandResult:
			if msg.Result != nil {
				s.registry.Resolve(sessionID, msg.Result)
			}
		case protocol.MessageConsole:
			s.registry.RecordConsole(sessionID, msg.Events)
		default:
			log.Printf("session %s sent unexpected %q message", sessionID, msg.Type)
		}
	}
}

// runCLILeg authenticates an operator connection and relays its command
// envelopes to target sessions, writing each correlated result back.
func (s *Server) runCLILeg(sock *socket, first protocol.Envelope) {
	payload, err := token.Verify(s.secret, first.Token, token.ScopeCLI)
	if err != nil {
		sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "authentication failed: " + err.Error()})
		return
	}
	subject := payload.Sub

	for {
		var msg protocol.Envelope
		if err := sock.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != protocol.MessageCommand || msg.Command == nil {
			sock.writeJSON(protocol.Envelope{Type: protocol.MessageDisconnect, Reason: "expected command"})
			return
		}

		cmd := msg.Command
		targetID := msg.SessionID
		ch, err := s.registry.Enqueue(targetID, cmd)
		if err != nil {
			sock.writeJSON(protocol.Envelope{
				Type:      protocol.MessageCommandResult,
				SessionID: targetID,
				Result:    &protocol.CommandResult{ID: cmd.ID, OK: false, Error: err.Error()},
			})
			continue
		}
		log.Printf("cli %s -> session %s: %s %s", subject, targetID, cmd.Type, cmd.ID)

		go func(targetID, id string, ch <-chan *protocol.CommandResult) {
			result, ok := <-ch
			if !ok {
				// Session disconnected; the caller times out locally.
				return
			}
			if err := sock.writeJSON(protocol.Envelope{
				Type:      protocol.MessageCommandResult,
				SessionID: targetID,
				Result:    result,
			}); err != nil {
				log.Printf("failed to deliver result %s: %v", id, err)
			}
		}(targetID, cmd.ID, ch)
	}
}
