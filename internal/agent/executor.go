package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// Executor dispatches incoming commands to their handlers. Every command
// yields exactly one result stamped with its id and measured duration;
// handler failures and panics are converted to error-shaped results and
// never cross the executor boundary.
type Executor struct {
	page      Page
	renderers []Renderer
}

// NewExecutor builds an executor over a page with the default renderer
// chain.
func NewExecutor(page Page) *Executor {
	return &Executor{page: page, renderers: DefaultRenderers()}
}

// NewExecutorWithRenderers overrides the renderer chain.
func NewExecutorWithRenderers(page Page, renderers []Renderer) *Executor {
	return &Executor{page: page, renderers: renderers}
}

// Execute runs one command and returns its single result.
func (e *Executor) Execute(ctx context.Context, cmd *protocol.Command) (result *protocol.CommandResult) {
	start := time.Now()
	result = &protocol.CommandResult{ID: cmd.ID, OK: true}
	defer func() {
		if r := recover(); r != nil {
			result.OK = false
			result.Data = nil
			result.Error = fmt.Sprintf("command handler panicked: %v", r)
		}
		result.DurationMs = float64(time.Since(start)) / float64(time.Millisecond)
	}()

	var (
		data any
		err  error
	)
	switch cmd.Type {
	case protocol.CommandRunScript:
		data, err = e.runScript(ctx, cmd, result)
	case protocol.CommandGetDom:
		data, err = e.getDom(ctx, cmd.GetDom)
	case protocol.CommandNavigate:
		data, err = e.navigate(ctx, cmd.Navigate)
	case protocol.CommandPing:
		data = map[string]any{"time": time.Now().UnixMilli()}
	case protocol.CommandScreenshot:
		data, err = e.screenshot(ctx, cmd.Screenshot)
	case protocol.CommandDiscoverSelectors:
		data, err = e.discoverSelectors(ctx, cmd.DiscoverSelectors)
	default:
		err = fmt.Errorf("unsupported command type %q", cmd.Type)
	}

	if err != nil {
		result.OK = false
		result.Error = err.Error()
		return result
	}
	result.Data = Sanitize(data)
	return result
}

func (e *Executor) runScript(ctx context.Context, cmd *protocol.Command, result *protocol.CommandResult) (any, error) {
	p := cmd.RunScript
	if p == nil || p.Source == "" {
		return nil, fmt.Errorf("runScript requires source")
	}
	if p.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	if p.CaptureConsole {
		capture := newConsoleCapture(e.page)
		defer func() {
			capture.Release()
			result.Console = capture.Events()
		}()
	}

	value, err := e.page.Eval(ctx, wrapScript(p.Source))
	if err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}
	return value, nil
}

// wrapScript loads the source as the body of an async function module on
// a short-lived in-memory URL, so it runs with module scoping rather than
// in the page's (or anyone else's) ambient scope.
func wrapScript(source string) string {
	quoted, _ := json.Marshal("export default async (window, document, console) => {\n" + source + "\n};")
	return fmt.Sprintf(`(async () => {
  const url = URL.createObjectURL(new Blob([%s], { type: 'text/javascript' }));
  try {
    const mod = await import(url);
    return await mod.default(window, document, console);
  } finally {
    URL.revokeObjectURL(url);
  }
})()`, quoted)
}

func (e *Executor) getDom(ctx context.Context, p *protocol.GetDomPayload) (any, error) {
	selector := ""
	if p != nil {
		selector = p.Selector
	}
	html, found, err := e.page.OuterHTML(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return html, nil
}

// navigate is fire-and-forget: the execution context may be torn down by
// the navigation itself, so it only records the target URL.
func (e *Executor) navigate(ctx context.Context, p *protocol.NavigatePayload) (any, error) {
	if p == nil || p.URL == "" {
		return nil, fmt.Errorf("navigate requires a url")
	}
	if err := e.page.Navigate(ctx, p.URL); err != nil {
		return nil, err
	}
	return map[string]any{"url": p.URL}, nil
}

func (e *Executor) screenshot(ctx context.Context, p *protocol.ScreenshotPayload) (any, error) {
	if p == nil {
		p = &protocol.ScreenshotPayload{}
	}
	return e.capture(ctx, p)
}

func (e *Executor) discoverSelectors(ctx context.Context, p *protocol.DiscoverSelectorsPayload) (any, error) {
	if p == nil {
		p = &protocol.DiscoverSelectorsPayload{}
	}
	limit := p.Limit
	if limit < 1 {
		limit = DefaultSelectorLimit
	}
	elements, err := e.page.Elements(ctx, p.Scope)
	if err != nil {
		return nil, err
	}
	return DiscoverSelectors(elements, limit, p.IncludeHidden), nil
}
