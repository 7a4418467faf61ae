package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/sweetlink/sweetlink/internal/agent"
	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// Page implements agent.Page on a chromedp tab context.
type Page struct {
	tab context.Context

	consoleMu sync.Mutex
	handlers  map[int]func(protocol.ConsoleEvent)
	nextID    int
}

var _ agent.Page = (*Page)(nil)

func newPage(tab context.Context) *Page {
	p := &Page{
		tab:      tab,
		handlers: make(map[int]func(protocol.ConsoleEvent)),
	}

	// One permanent target listener fans console events out to whoever is
	// currently subscribed; subscriptions come and go per command.
	chromedp.ListenTarget(tab, func(ev any) {
		call, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		event := consoleEvent(call)
		p.consoleMu.Lock()
		for _, fn := range p.handlers {
			fn(event)
		}
		p.consoleMu.Unlock()
	})
	return p
}

// run executes chromedp actions on the tab, honoring the caller's
// deadline via a derived context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	tab := p.tab
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		tab, cancel = context.WithDeadline(tab, deadline)
		defer cancel()
	}
	return chromedp.Run(tab, actions...)
}

func (p *Page) Meta(ctx context.Context) (protocol.SessionMeta, error) {
	var meta protocol.SessionMeta
	err := p.run(ctx, chromedp.Evaluate(`({
  url: location.href,
  title: document.title,
  topOrigin: location.origin,
  userAgent: navigator.userAgent,
})`, &meta))
	if err != nil {
		return protocol.SessionMeta{}, err
	}
	return meta, nil
}

func (p *Page) Eval(ctx context.Context, expr string) (any, error) {
	var raw json.RawMessage
	err := p.run(ctx, chromedp.Evaluate(expr, &raw,
		func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
			return params.WithAwaitPromise(true).WithReturnByValue(true)
		}))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw), nil
	}
	return value, nil
}

// Navigate changes location without waiting for the load to finish; the
// current execution context may be torn down by the navigation.
func (p *Page) Navigate(ctx context.Context, url string) error {
	quoted, _ := json.Marshal(url)
	var raw json.RawMessage
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.location.assign(%s); true", quoted), &raw))
}

func (p *Page) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	quoted, _ := json.Marshal(selector)
	value, err := p.Eval(ctx, fmt.Sprintf(`(() => {
  const sel = %s;
  const el = sel ? document.querySelector(sel) : document.documentElement;
  return el ? el.outerHTML : null;
})()`, quoted))
	if err != nil {
		return "", false, err
	}
	html, ok := value.(string)
	if !ok {
		return "", false, nil
	}
	return html, true, nil
}

func (p *Page) Elements(ctx context.Context, scope string) ([]agent.ElementInfo, error) {
	quoted, _ := json.Marshal(scope)
	value, err := p.Eval(ctx, fmt.Sprintf(collectElementsScript, quoted))
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		TagName string                `json:"tagName"`
		Attrs   map[string]string     `json:"attrs"`
		Text    string                `json:"text"`
		Visible bool                  `json:"visible"`
		Box     *protocol.BoundingBox `json:"box"`
		Path    string                `json:"path"`
		CSSPath string                `json:"cssPath"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected element snapshot shape: %w", err)
	}
	out := make([]agent.ElementInfo, len(rows))
	for i, r := range rows {
		out[i] = agent.ElementInfo{
			TagName: r.TagName,
			Attrs:   r.Attrs,
			Text:    r.Text,
			Visible: r.Visible,
			Box:     r.Box,
			Path:    r.Path,
			CSSPath: r.CSSPath,
		}
	}
	return out, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) ElementBox(ctx context.Context, selector string) (*protocol.BoundingBox, error) {
	quoted, _ := json.Marshal(selector)
	value, err := p.Eval(ctx, fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return null;
  const r = el.getBoundingClientRect();
  return { x: r.x, y: r.y, width: r.width, height: r.height };
})()`, quoted))
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	raw, _ := json.Marshal(value)
	var box protocol.BoundingBox
	if err := json.Unmarshal(raw, &box); err != nil {
		return nil, err
	}
	return &box, nil
}

func (p *Page) SetAttribute(ctx context.Context, selector, name, value string) error {
	return p.run(ctx, chromedp.SetAttributeValue(selector, name, value, chromedp.ByQuery))
}

func (p *Page) RemoveAttribute(ctx context.Context, selector, name string) error {
	return p.run(ctx, chromedp.RemoveAttribute(selector, name, chromedp.ByQuery))
}

func (p *Page) CaptureClip(ctx context.Context, box *protocol.BoundingBox, fullPage bool, quality int) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality))
		if fullPage {
			params = params.WithCaptureBeyondViewport(true)
		}
		if box != nil {
			params = params.WithClip(&page.Viewport{
				X:      box.X,
				Y:      box.Y,
				Width:  box.Width,
				Height: box.Height,
				Scale:  1,
			})
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	return buf, err
}

func (p *Page) RenderElementDataURL(ctx context.Context, selector string, quality int) (string, error) {
	quoted, _ := json.Marshal(selector)
	value, err := p.Eval(ctx, fmt.Sprintf(renderElementScript, quoted, quality))
	if err != nil {
		return "", err
	}
	dataURL, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("element %q could not be rendered", selector)
	}
	return dataURL, nil
}

func (p *Page) SubscribeConsole(fn func(protocol.ConsoleEvent)) func() {
	p.consoleMu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = fn
	p.consoleMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.consoleMu.Lock()
			delete(p.handlers, id)
			p.consoleMu.Unlock()
		})
	}
}

func consoleEvent(call *runtime.EventConsoleAPICalled) protocol.ConsoleEvent {
	level := protocol.ConsoleLog
	switch call.Type {
	case runtime.APITypeInfo:
		level = protocol.ConsoleInfo
	case runtime.APITypeWarning:
		level = protocol.ConsoleWarn
	case runtime.APITypeError:
		level = protocol.ConsoleError
	case runtime.APITypeDebug:
		level = protocol.ConsoleDebug
	}

	args := make([]any, 0, len(call.Args))
	for _, arg := range call.Args {
		args = append(args, remoteValue(arg))
	}
	return protocol.ConsoleEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Args:      args,
	}
}

// remoteValue reduces a remote object to a JSON-friendly snapshot.
func remoteValue(obj *runtime.RemoteObject) any {
	if obj == nil {
		return nil
	}
	if len(obj.Value) > 0 {
		var v any
		if err := json.Unmarshal(obj.Value, &v); err == nil {
			return agent.Sanitize(v)
		}
	}
	if obj.Description != "" {
		return obj.Description
	}
	return string(obj.Type)
}

// collectElementsScript snapshots interactable elements under a scope in
// one pass: tag, attributes, text, visibility, box, and both a readable
// and a structural path.
const collectElementsScript = `(() => {
  const scopeSel = %s;
  const root = scopeSel ? document.querySelector(scopeSel) : document;
  if (!root) return [];
  const picked = root.querySelectorAll(
    'a, button, input, select, textarea, label, [role], [tabindex], [data-target], [data-testid], [data-test-id], [data-test], [aria-label], [onclick]'
  );
  const cssPath = (el) => {
    const parts = [];
    for (let cur = el; cur && cur.nodeType === 1 && cur !== document.documentElement; cur = cur.parentElement) {
      let i = 1;
      for (let sib = cur.previousElementSibling; sib; sib = sib.previousElementSibling) {
        if (sib.tagName === cur.tagName) i++;
      }
      parts.unshift(cur.tagName.toLowerCase() + ':nth-of-type(' + i + ')');
    }
    return 'html > ' + parts.join(' > ');
  };
  const readablePath = (el) => {
    const parts = [];
    for (let cur = el; cur && cur.nodeType === 1; cur = cur.parentElement) {
      let part = cur.tagName.toLowerCase();
      if (cur.id) part += '#' + cur.id;
      else if (cur.classList.length) part += '.' + cur.classList[0];
      parts.unshift(part);
    }
    return parts.join(' > ');
  };
  return Array.from(picked).map((el) => {
    const r = el.getBoundingClientRect();
    const style = getComputedStyle(el);
    const attrs = {};
    for (const a of el.attributes) attrs[a.name] = a.value;
    return {
      tagName: el.tagName.toLowerCase(),
      attrs,
      text: (el.innerText || el.value || '').slice(0, 200),
      visible: r.width > 0 && r.height > 0 && style.visibility !== 'hidden' && style.display !== 'none',
      box: { x: r.x, y: r.y, width: r.width, height: r.height },
      path: readablePath(el),
      cssPath: cssPath(el),
    };
  });
})()`

// renderElementScript serializes an element to a JPEG data URL inside the
// page via SVG foreignObject rasterization.
const renderElementScript = `(async () => {
  const el = document.querySelector(%s);
  if (!el) throw new Error('no element to render');
  const r = el.getBoundingClientRect();
  const width = Math.max(1, Math.ceil(r.width));
  const height = Math.max(1, Math.ceil(r.height));
  const clone = el.cloneNode(true);
  clone.setAttribute('xmlns', 'http://www.w3.org/1999/xhtml');
  const svg = '<svg xmlns="http://www.w3.org/2000/svg" width="' + width + '" height="' + height + '">' +
    '<foreignObject width="100%%" height="100%%">' + new XMLSerializer().serializeToString(clone) + '</foreignObject></svg>';
  const img = new Image();
  await new Promise((resolve, reject) => {
    img.onload = resolve;
    img.onerror = () => reject(new Error('failed to rasterize element'));
    img.src = 'data:image/svg+xml;charset=utf-8,' + encodeURIComponent(svg);
  });
  const canvas = document.createElement('canvas');
  canvas.width = width;
  canvas.height = height;
  const cx = canvas.getContext('2d');
  cx.fillStyle = '#ffffff';
  cx.fillRect(0, 0, width, height);
  cx.drawImage(img, 0, 0);
  return canvas.toDataURL('image/jpeg', %d / 100);
})()`
