package protocol

import "time"

// MessageType tags every frame on the bridge socket.
type MessageType string

// Relay → client messages.
const (
	MessageCommand    MessageType = "command"
	MessageMetadata   MessageType = "metadata"
	MessageDisconnect MessageType = "disconnect"
)

// Client → relay messages.
const (
	MessageRegister      MessageType = "register"
	MessageHello         MessageType = "hello"
	MessageHeartbeat     MessageType = "heartbeat"
	MessageCommandResult MessageType = "commandResult"
	MessageConsole       MessageType = "console"
)

// SocketState mirrors the readiness of a session's bridge socket.
type SocketState string

const (
	SocketConnecting SocketState = "connecting"
	SocketOpen       SocketState = "open"
	SocketClosing    SocketState = "closing"
	SocketClosed     SocketState = "closed"
	SocketUnknown    SocketState = "unknown"
)

// SessionMeta is the page metadata a browser leg supplies at registration.
type SessionMeta struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	TopOrigin string `json:"topOrigin"`
	UserAgent string `json:"userAgent"`
}

// SessionSummary is what the relay reports for one connected session.
type SessionSummary struct {
	SessionID       string      `json:"sessionId"`
	Codename        string      `json:"codename"`
	URL             string      `json:"url"`
	Title           string      `json:"title"`
	TopOrigin       string      `json:"topOrigin"`
	UserAgent       string      `json:"userAgent"`
	CreatedAt       time.Time   `json:"createdAt"`
	LastSeenAt      time.Time   `json:"lastSeenAt"`
	SocketState     SocketState `json:"socketState"`
	ConsoleEvents   int         `json:"consoleEvents"`
	ConsoleErrors   int         `json:"consoleErrors"`
	PendingCommands int         `json:"pendingCommands"`
	Live            bool        `json:"live"`
}

// Envelope is one bridge frame. Type selects which optional fields are
// meaningful; unused fields are omitted on the wire.
type Envelope struct {
	Type MessageType `json:"type"`

	// register / hello
	Token   string       `json:"token,omitempty"`
	Session *SessionMeta `json:"session,omitempty"`

	// metadata push
	Codename string `json:"codename,omitempty"`

	// disconnect
	Reason string `json:"reason,omitempty"`

	// command traffic; SessionID targets a session on the CLI leg
	SessionID string         `json:"sessionId,omitempty"`
	Command   *Command       `json:"command,omitempty"`
	Result    *CommandResult `json:"result,omitempty"`

	// unsolicited console stream
	Events []ConsoleEvent `json:"events,omitempty"`
}
