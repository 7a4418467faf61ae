package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sweetlink/sweetlink/internal/relay"
	"github.com/sweetlink/sweetlink/internal/token"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// Client is the browser leg of the bridge: it registers the tab as a
// session, heartbeats, streams unsolicited console traffic, and feeds
// incoming commands to the executor.
type Client struct {
	bridgeURL string
	secret    string
	page      Page
	executor  *Executor

	sessionID string
	codename  string

	mu   sync.Mutex
	conn *websocket.Conn

	consoleMu  sync.Mutex
	consoleBuf []protocol.ConsoleEvent
}

// NewClient prepares a bridge client for one tab. bridgeURL is the ws://
// address of the relay's bridge endpoint.
func NewClient(bridgeURL, secret string, page Page) *Client {
	return &Client{
		bridgeURL: bridgeURL,
		secret:    secret,
		page:      page,
		executor:  NewExecutor(page),
		sessionID: uuid.New().String(),
	}
}

// SessionID returns the id this client registers under.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Run connects, registers, and serves commands until the context is
// cancelled or the socket fails.
func (c *Client) Run(ctx context.Context) error {
	meta, err := c.page.Meta(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page metadata: %w", err)
	}
	meta.SessionID = c.sessionID

	tok, err := token.Sign(c.secret, token.ScopeSession, meta.TopOrigin, token.SessionTokenTTL, c.sessionID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial relay: %w", err)
	}
	c.conn = conn
	defer conn.Close()

	// The read loop only unblocks on a socket error, so cancellation has
	// to tear the socket down.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := c.writeJSON(protocol.Envelope{
		Type:    protocol.MessageRegister,
		Token:   tok,
		Session: &meta,
	}); err != nil {
		return err
	}

	var reply protocol.Envelope
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("registration failed: socket closed before a session was created: %w", err)
	}
	switch reply.Type {
	case protocol.MessageMetadata:
		c.codename = reply.Codename
		log.Printf("registered session %s as %q", c.sessionID, c.codename)
	case protocol.MessageDisconnect:
		return fmt.Errorf("relay refused registration: %s", reply.Reason)
	default:
		return fmt.Errorf("unexpected reply to registration: %q", reply.Type)
	}

	// Unsolicited console stream, outside any command's own capture.
	release := c.page.SubscribeConsole(func(ev protocol.ConsoleEvent) {
		c.consoleMu.Lock()
		c.consoleBuf = append(c.consoleBuf, ev)
		c.consoleMu.Unlock()
	})
	defer release()

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go c.heartbeatLoop(heartbeatCtx)

	for {
		var msg protocol.Envelope
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bridge socket closed: %w", err)
		}

		switch msg.Type {
		case protocol.MessageCommand:
			if msg.Command == nil {
				continue
			}
			go c.serve(ctx, msg.Command)
		case protocol.MessageDisconnect:
			return fmt.Errorf("relay disconnected: %s", msg.Reason)
		default:
			log.Printf("ignoring unexpected %q message from relay", msg.Type)
		}
	}
}

func (c *Client) serve(ctx context.Context, cmd *protocol.Command) {
	result := c.executor.Execute(ctx, cmd)
	if err := c.writeJSON(protocol.Envelope{
		Type:   protocol.MessageCommandResult,
		Result: result,
	}); err != nil {
		log.Printf("failed to send result for command %s: %v", cmd.ID, err)
	}
}

// heartbeatLoop sends a heartbeat every interval and flushes any buffered
// console events alongside it.
func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(relay.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeJSON(protocol.Envelope{Type: protocol.MessageHeartbeat}); err != nil {
				return
			}
			if events := c.drainConsole(); len(events) > 0 {
				if err := c.writeJSON(protocol.Envelope{Type: protocol.MessageConsole, Events: events}); err != nil {
					return
				}
			}
		}
	}
}

func (c *Client) drainConsole() []protocol.ConsoleEvent {
	c.consoleMu.Lock()
	defer c.consoleMu.Unlock()
	events := c.consoleBuf
	c.consoleBuf = nil
	return events
}

func (c *Client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
