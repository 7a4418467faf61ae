// Package agent implements the browser-side leg of the bridge: the
// command executor, console capture, result sanitization, screenshot
// renderers, and selector discovery, all running against one tab.
package agent

import (
	"context"
	"time"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// ElementInfo is a snapshot of one DOM element, collected in a single
// pass so scoring and screenshots work from consistent layout data.
type ElementInfo struct {
	TagName string
	Attrs   map[string]string
	Text    string
	Visible bool
	Box     *protocol.BoundingBox
	// Path is a human-readable DOM path for operator disambiguation.
	Path string
	// CSSPath is a structural selector that uniquely matches the element.
	CSSPath string
}

// Page is the surface the executor needs from a browser tab. The chromedp
// implementation lives in the cdp subpackage; tests use a fake.
type Page interface {
	// Meta reports the tab's current url, title, origin, and user agent.
	Meta(ctx context.Context) (protocol.SessionMeta, error)

	// Eval evaluates a JavaScript expression in the page, awaiting any
	// returned promise, and returns the JSON-decoded value.
	Eval(ctx context.Context, expr string) (any, error)

	// Navigate issues a fire-and-forget location change.
	Navigate(ctx context.Context, url string) error

	// OuterHTML returns the markup of the document root, or of the first
	// element matching selector when non-empty; found reports a match.
	OuterHTML(ctx context.Context, selector string) (html string, found bool, err error)

	// Elements snapshots candidate elements under scope ("" = document).
	Elements(ctx context.Context, scope string) ([]ElementInfo, error)

	ScrollIntoView(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	ElementBox(ctx context.Context, selector string) (*protocol.BoundingBox, error)
	SetAttribute(ctx context.Context, selector, name, value string) error
	RemoveAttribute(ctx context.Context, selector, name string) error

	// CaptureClip rasterizes the given region (nil = viewport) to JPEG.
	// fullPage extends the capture beyond the viewport to the whole
	// scrollable document.
	CaptureClip(ctx context.Context, box *protocol.BoundingBox, fullPage bool, quality int) ([]byte, error)

	// RenderElementDataURL serializes the first match of selector to a
	// JPEG data URL at the given quality, inside the page.
	RenderElementDataURL(ctx context.Context, selector string, quality int) (string, error)

	// SubscribeConsole registers a console event handler and returns a
	// release function safe to call more than once.
	SubscribeConsole(fn func(protocol.ConsoleEvent)) (release func())
}
