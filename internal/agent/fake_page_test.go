package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// fakePage is an in-memory Page used by executor and renderer tests.
type fakePage struct {
	mu sync.Mutex

	meta     protocol.SessionMeta
	html     string
	elements []ElementInfo

	// evalFn intercepts Eval; when nil, evals return evalResult.
	evalFn     func(expr string) (any, error)
	evalResult any

	navigatedTo string
	attrs       map[string]string // selector+name -> value

	captureClip      func(ctx context.Context) ([]byte, error)
	capturedFullPage bool
	renderDataURL    func() (string, error)
	boxErr           error

	handlers map[int]func(protocol.ConsoleEvent)
	nextSub  int
}

func newFakePage() *fakePage {
	return &fakePage{
		attrs:    make(map[string]string),
		handlers: make(map[int]func(protocol.ConsoleEvent)),
	}
}

func (f *fakePage) Meta(ctx context.Context) (protocol.SessionMeta, error) {
	return f.meta, nil
}

func (f *fakePage) Eval(ctx context.Context, expr string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.evalFn != nil {
		return f.evalFn(expr)
	}
	return f.evalResult, nil
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigatedTo = url
	return nil
}

func (f *fakePage) OuterHTML(ctx context.Context, selector string) (string, bool, error) {
	if selector != "" && !strings.Contains(f.html, "<"+strings.Trim(selector, "#.")) {
		return "", false, nil
	}
	return f.html, f.html != "", nil
}

func (f *fakePage) Elements(ctx context.Context, scope string) ([]ElementInfo, error) {
	return f.elements, nil
}

func (f *fakePage) ScrollIntoView(ctx context.Context, selector string) error { return nil }

func (f *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (f *fakePage) ElementBox(ctx context.Context, selector string) (*protocol.BoundingBox, error) {
	if f.boxErr != nil {
		return nil, f.boxErr
	}
	return &protocol.BoundingBox{X: 1, Y: 2, Width: 30, Height: 40}, nil
}

func (f *fakePage) SetAttribute(ctx context.Context, selector, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[selector+"|"+name] = value
	return nil
}

func (f *fakePage) RemoveAttribute(ctx context.Context, selector, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attrs, selector+"|"+name)
	return nil
}

func (f *fakePage) markerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for key := range f.attrs {
		if strings.HasSuffix(key, "|"+markerAttr) {
			n++
		}
	}
	return n
}

func (f *fakePage) CaptureClip(ctx context.Context, box *protocol.BoundingBox, fullPage bool, quality int) ([]byte, error) {
	f.mu.Lock()
	f.capturedFullPage = fullPage
	f.mu.Unlock()
	if f.captureClip != nil {
		return f.captureClip(ctx)
	}
	return nil, fmt.Errorf("no capture configured")
}

func (f *fakePage) RenderElementDataURL(ctx context.Context, selector string, quality int) (string, error) {
	if f.renderDataURL != nil {
		return f.renderDataURL()
	}
	return "", fmt.Errorf("no render configured")
}

func (f *fakePage) SubscribeConsole(fn func(protocol.ConsoleEvent)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.handlers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}
}

// emitConsole delivers an event to current subscribers and reports how
// many received it.
func (f *fakePage) emitConsole(level protocol.ConsoleLevel, args ...any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := protocol.ConsoleEvent{
		ID:        fmt.Sprintf("ev-%d", time.Now().UnixNano()),
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Args:      args,
	}
	for _, fn := range f.handlers {
		fn(ev)
	}
	return len(f.handlers)
}

func (f *fakePage) subscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
