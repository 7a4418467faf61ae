package protocol

import "github.com/google/uuid"

// CommandType discriminates the units of work a CLI can send to a session.
type CommandType string

const (
	CommandRunScript         CommandType = "runScript"
	CommandGetDom            CommandType = "getDom"
	CommandNavigate          CommandType = "navigate"
	CommandPing              CommandType = "ping"
	CommandScreenshot        CommandType = "screenshot"
	CommandDiscoverSelectors CommandType = "discoverSelectors"
)

// CommandTypes is the closed set of supported command variants.
var CommandTypes = []CommandType{
	CommandRunScript,
	CommandGetDom,
	CommandNavigate,
	CommandPing,
	CommandScreenshot,
	CommandDiscoverSelectors,
}

// Command is one unit of remote work. Exactly one payload field matching
// Type is set; the id correlates the command to its single result.
type Command struct {
	ID   string      `json:"id"`
	Type CommandType `json:"type"`

	RunScript         *RunScriptPayload         `json:"runScript,omitempty"`
	GetDom            *GetDomPayload            `json:"getDom,omitempty"`
	Navigate          *NavigatePayload          `json:"navigate,omitempty"`
	Screenshot        *ScreenshotPayload        `json:"screenshot,omitempty"`
	DiscoverSelectors *DiscoverSelectorsPayload `json:"discoverSelectors,omitempty"`
}

// NewCommandID returns a fresh globally-unique command id.
func NewCommandID() string {
	return uuid.New().String()
}

// RunScriptPayload carries script source to execute in the page.
type RunScriptPayload struct {
	Source         string `json:"source"`
	TimeoutMs      int    `json:"timeoutMs,omitempty"`
	CaptureConsole bool   `json:"captureConsole,omitempty"`
}

// GetDomPayload requests outer markup of the document root, or of the
// first element matching Selector when set.
type GetDomPayload struct {
	Selector string `json:"selector,omitempty"`
}

// NavigatePayload requests a fire-and-forget location change.
type NavigatePayload struct {
	URL string `json:"url"`
}

// CaptureMode selects what region of the page a screenshot covers.
type CaptureMode string

const (
	CaptureViewport CaptureMode = "viewport"
	CaptureFullPage CaptureMode = "fullPage"
	CaptureElement  CaptureMode = "element"
)

// CaptureHookType identifies a pre-capture hook.
type CaptureHookType string

const (
	HookScrollIntoView    CaptureHookType = "scrollIntoView"
	HookWaitForSelector   CaptureHookType = "waitForSelector"
	HookWaitForIdleFrames CaptureHookType = "waitForIdleFrames"
	HookDelay             CaptureHookType = "delay"
	HookScript            CaptureHookType = "script"
)

// CaptureHook is one ordered pre-capture step applied before a screenshot.
type CaptureHook struct {
	Type      CaptureHookType `json:"type"`
	Selector  string          `json:"selector,omitempty"`
	Frames    int             `json:"frames,omitempty"`
	DelayMs   int             `json:"delayMs,omitempty"`
	Source    string          `json:"source,omitempty"`
	TimeoutMs int             `json:"timeoutMs,omitempty"`
}

// ScreenshotPayload configures a capture: what to shoot, at what quality,
// with which renderer, after which hooks.
type ScreenshotPayload struct {
	Mode     CaptureMode   `json:"mode,omitempty"`
	Selector string        `json:"selector,omitempty"`
	Quality  int           `json:"quality,omitempty"`
	Renderer string        `json:"renderer,omitempty"`
	Hooks    []CaptureHook `json:"hooks,omitempty"`
}

// DiscoverSelectorsPayload scopes and bounds a selector discovery scan.
type DiscoverSelectorsPayload struct {
	Scope         string `json:"scope,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	IncludeHidden bool   `json:"includeHidden,omitempty"`
}

// CommandResult is the single correlated outcome of a command.
type CommandResult struct {
	ID         string         `json:"id"`
	OK         bool           `json:"ok"`
	DurationMs float64        `json:"durationMs"`
	Data       any            `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Stack      string         `json:"stack,omitempty"`
	Console    []ConsoleEvent `json:"console,omitempty"`
}

// ConsoleLevel is one of the five intercepted console methods.
type ConsoleLevel string

const (
	ConsoleLog   ConsoleLevel = "log"
	ConsoleInfo  ConsoleLevel = "info"
	ConsoleWarn  ConsoleLevel = "warn"
	ConsoleError ConsoleLevel = "error"
	ConsoleDebug ConsoleLevel = "debug"
)

// ConsoleEvent is a sanitized snapshot of one console call.
type ConsoleEvent struct {
	ID        string       `json:"id"`
	Timestamp int64        `json:"timestamp"`
	Level     ConsoleLevel `json:"level"`
	Args      []any        `json:"args"`
}

// ScreenshotData is the data payload of a successful screenshot result.
type ScreenshotData struct {
	MimeType string `json:"mimeType"`
	Base64   string `json:"base64"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Renderer string `json:"renderer"`
}

// SelectorHook classifies why a selector candidate was chosen.
type SelectorHook string

const (
	HookDataTarget SelectorHook = "data-attribute"
	HookElementID  SelectorHook = "id"
	HookTestID     SelectorHook = "test-id"
	HookAria       SelectorHook = "aria"
	HookRole       SelectorHook = "role"
	HookStructural SelectorHook = "structural"
)

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SelectorCandidate is one scored selector suggestion for an element.
type SelectorCandidate struct {
	Selector    string       `json:"selector"`
	TagName     string       `json:"tagName"`
	Hook        SelectorHook `json:"hook"`
	TextSnippet string       `json:"textSnippet,omitempty"`
	Score       int          `json:"score"`
	Visible     bool         `json:"visible"`
	Box         *BoundingBox `json:"box,omitempty"`
	Path        string       `json:"path"`
}
