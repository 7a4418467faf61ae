// Package client is the operator-side relay client used by the CLI: it
// lists sessions, resolves human-entered session hints, and drives single
// commands over the bridge socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweetlink/sweetlink/internal/relay"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// DefaultTimeout is the caller-side wait for a command result.
const DefaultTimeout = relay.DefaultCommandTimeout

// ErrResultTimeout distinguishes a local timeout from an execution error
// reported by the session.
var ErrResultTimeout = fmt.Errorf("timed out waiting for command result")

// Client talks to one relay with one cli-scoped token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client. baseURL is the relay's HTTP address, e.g.
// http://localhost:4455.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Sessions fetches current session summaries.
func (c *Client) Sessions(ctx context.Context) ([]protocol.SessionSummary, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/sessions", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay returned %s", resp.Status)
	}

	var summaries []protocol.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		return nil, fmt.Errorf("unreadable session list: %w", err)
	}
	return summaries, nil
}

// ResolveSession turns a human-entered hint (full id, codename, or a
// unique prefix of either) into an exact session id.
func (c *Client) ResolveSession(ctx context.Context, hint string) (string, error) {
	summaries, err := c.Sessions(ctx)
	if err != nil {
		return "", err
	}
	return resolveHint(hint, summaries)
}

func resolveHint(hint string, summaries []protocol.SessionSummary) (string, error) {
	if hint == "" {
		if len(summaries) == 1 {
			return summaries[0].SessionID, nil
		}
		return "", fmt.Errorf("no session hint given and %d sessions connected", len(summaries))
	}

	for _, s := range summaries {
		if s.SessionID == hint || s.Codename == hint {
			return s.SessionID, nil
		}
	}

	var matches []string
	for _, s := range summaries {
		if strings.HasPrefix(s.SessionID, hint) || strings.HasPrefix(s.Codename, hint) {
			matches = append(matches, s.SessionID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no session matches %q", hint)
	default:
		return "", fmt.Errorf("session hint %q is ambiguous (%d matches)", hint, len(matches))
	}
}

// Send opens the bridge socket, sends one command to the target session,
// and waits up to timeout for its correlated result.
func (c *Client) Send(ctx context.Context, sessionID string, cmd *protocol.Command, timeout time.Duration) (*protocol.CommandResult, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	wsBase := "ws" + strings.TrimPrefix(c.baseURL, "http")
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsBase+relay.BridgePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay bridge: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.Envelope{Type: protocol.MessageHello, Token: c.token}); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(protocol.Envelope{
		Type:      protocol.MessageCommand,
		SessionID: sessionID,
		Command:   cmd,
	}); err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		var reply protocol.Envelope
		if err := conn.ReadJSON(&reply); err != nil {
			if isTimeout(err) {
				return nil, ErrResultTimeout
			}
			return nil, fmt.Errorf("bridge socket closed: %w", err)
		}
		switch reply.Type {
		case protocol.MessageCommandResult:
			if reply.Result != nil && reply.Result.ID == cmd.ID {
				return reply.Result, nil
			}
		case protocol.MessageDisconnect:
			return nil, fmt.Errorf("relay disconnected: %s", reply.Reason)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// TokenCache memoizes a minted token until shortly before its expiry.
// It replaces ambient module-level caching with an explicit, injected
// object whose invalidation rule is expiry-based.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	skew      time.Duration
}

// NewTokenCache builds a cache that re-mints skew before actual expiry.
func NewTokenCache(skew time.Duration) *TokenCache {
	return &TokenCache{skew: skew}
}

// Get returns the cached token, or mints and caches a fresh one.
func (tc *TokenCache) Get(mint func() (string, time.Time, error)) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && time.Now().Before(tc.expiresAt.Add(-tc.skew)) {
		return tc.token, nil
	}
	tok, expiresAt, err := mint()
	if err != nil {
		return "", err
	}
	tc.token = tok
	tc.expiresAt = expiresAt
	return tok, nil
}

// ExchangeCLIToken trades an admin key for a short-lived cli token via
// the relay's admin endpoint.
func ExchangeCLIToken(ctx context.Context, baseURL, adminKey, subject string) (string, time.Time, error) {
	body := strings.NewReader(fmt.Sprintf(`{"subject":%q}`, subject))
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(baseURL, "/")+"/api/admin/sweetlink/cli-token", body)
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", adminKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token exchange returned %s", resp.Status)
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, err
	}
	return out.Token, time.Now().Add(time.Duration(out.ExpiresIn) * time.Second), nil
}
