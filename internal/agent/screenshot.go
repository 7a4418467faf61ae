package agent

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// RenderTimeout bounds a single renderer attempt so a hung renderer
// cannot block the command indefinitely.
const RenderTimeout = 6 * time.Second

const defaultQuality = 80

// markerAttr tags the capture root so the raster renderer can re-resolve
// it inside cloned or shifted layouts. Always removed after capture.
const markerAttr = "data-sweetlink-capture"

// CaptureTarget names what a renderer should shoot.
type CaptureTarget struct {
	Mode     protocol.CaptureMode
	Selector string
}

// Renderer is one pluggable screenshot backend. Exactly one of
// {success-with-image, error} results from Capture.
type Renderer interface {
	Name() string
	Capture(ctx context.Context, page Page, target CaptureTarget, quality int) (*protocol.ScreenshotData, error)
}

// DefaultRenderers returns the standard chain, preferred order first.
func DefaultRenderers() []Renderer {
	return []Renderer{&cdpClipRenderer{}, &domImageRenderer{}}
}

// capture applies pre-capture hooks, re-resolves element targets (layout
// may have shifted after hooks ran), and walks the renderer chain.
func (e *Executor) capture(ctx context.Context, p *protocol.ScreenshotPayload) (*protocol.ScreenshotData, error) {
	target := CaptureTarget{Mode: p.Mode, Selector: p.Selector}
	if target.Mode == "" {
		if target.Selector != "" {
			target.Mode = protocol.CaptureElement
		} else {
			target.Mode = protocol.CaptureViewport
		}
	}
	quality := p.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultQuality
	}

	if err := e.applyHooks(ctx, p.Hooks); err != nil {
		return nil, err
	}
	if target.Mode == protocol.CaptureElement {
		if _, err := e.page.ElementBox(ctx, target.Selector); err != nil {
			return nil, fmt.Errorf("screenshot target %q not found after hooks: %w", target.Selector, err)
		}
	}

	var failures []string
	for _, r := range e.orderedRenderers(p.Renderer) {
		data, err := r.Capture(ctx, e.page, target, quality)
		if err == nil {
			return data, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", r.Name(), err))
	}
	return nil, fmt.Errorf("all renderers failed: %s", strings.Join(failures, "; "))
}

// orderedRenderers moves a preferred renderer to the front; the rest of
// the chain still applies as fallback.
func (e *Executor) orderedRenderers(preferred string) []Renderer {
	if preferred == "" {
		return e.renderers
	}
	out := make([]Renderer, 0, len(e.renderers))
	for _, r := range e.renderers {
		if r.Name() == preferred {
			out = append(out, r)
		}
	}
	for _, r := range e.renderers {
		if r.Name() != preferred {
			out = append(out, r)
		}
	}
	return out
}

func (e *Executor) applyHooks(ctx context.Context, hooks []protocol.CaptureHook) error {
	for _, h := range hooks {
		if err := e.applyHook(ctx, h); err != nil {
			return fmt.Errorf("pre-capture hook %s failed: %w", h.Type, err)
		}
	}
	return nil
}

func (e *Executor) applyHook(ctx context.Context, h protocol.CaptureHook) error {
	switch h.Type {
	case protocol.HookScrollIntoView:
		return e.page.ScrollIntoView(ctx, h.Selector)
	case protocol.HookWaitForSelector:
		timeout := time.Duration(h.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		return e.page.WaitVisible(ctx, h.Selector, timeout)
	case protocol.HookWaitForIdleFrames:
		frames := h.Frames
		if frames <= 0 {
			frames = 2
		}
		_, err := e.page.Eval(ctx, waitFramesScript(frames))
		return err
	case protocol.HookDelay:
		select {
		case <-time.After(time.Duration(h.DelayMs) * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case protocol.HookScript:
		_, err := e.page.Eval(ctx, wrapScript(h.Source))
		return err
	default:
		return fmt.Errorf("unknown hook type %q", h.Type)
	}
}

func waitFramesScript(frames int) string {
	return fmt.Sprintf(`new Promise((resolve) => {
  let left = %d;
  const tick = () => { if (--left <= 0) { resolve(true); } else { requestAnimationFrame(tick); } };
  requestAnimationFrame(tick);
})`, frames)
}

// cdpClipRenderer rasterizes via the protocol-native screenshot, clipped
// to the target element's box when shooting a specific element. It marks
// the capture root with a throwaway attribute, neutralizes unsupported
// CSS color functions for the duration of the capture, and races the
// render against RenderTimeout.
type cdpClipRenderer struct{}

func (r *cdpClipRenderer) Name() string { return "cdp-clip" }

func (r *cdpClipRenderer) Capture(ctx context.Context, page Page, target CaptureTarget, quality int) (*protocol.ScreenshotData, error) {
	rootSelector := target.Selector
	if target.Mode != protocol.CaptureElement {
		rootSelector = "body"
	}

	marker := uuid.New().String()[:8]
	if err := page.SetAttribute(ctx, rootSelector, markerAttr, marker); err != nil {
		return nil, fmt.Errorf("failed to mark capture root: %w", err)
	}
	defer page.RemoveAttribute(context.WithoutCancel(ctx), rootSelector, markerAttr)

	if _, err := page.Eval(ctx, neutralizeColorsScript(marker)); err != nil {
		return nil, fmt.Errorf("failed to neutralize styles: %w", err)
	}
	defer page.Eval(context.WithoutCancel(ctx), restoreColorsScript(marker))

	var box *protocol.BoundingBox
	if target.Mode == protocol.CaptureElement {
		var err error
		box, err = page.ElementBox(ctx, fmt.Sprintf("[%s=%q]", markerAttr, marker))
		if err != nil {
			return nil, fmt.Errorf("capture root vanished: %w", err)
		}
	}

	fullPage := target.Mode == protocol.CaptureFullPage
	raw, err := raceCapture(ctx, r.Name(), func(ctx context.Context) ([]byte, error) {
		return page.CaptureClip(ctx, box, fullPage, quality)
	})
	if err != nil {
		return nil, err
	}

	width, height, err := jpegDimensions(raw)
	if err != nil {
		return nil, fmt.Errorf("unreadable capture output: %w", err)
	}
	return &protocol.ScreenshotData{
		MimeType: "image/jpeg",
		Base64:   base64.StdEncoding.EncodeToString(raw),
		Width:    width,
		Height:   height,
		Renderer: r.Name(),
	}, nil
}

// domImageRenderer asks the page itself to serialize the target element
// to a JPEG data URL. The data URL does not carry dimensions, so they are
// recovered separately by decoding the image header.
type domImageRenderer struct{}

func (r *domImageRenderer) Name() string { return "dom-image" }

func (r *domImageRenderer) Capture(ctx context.Context, page Page, target CaptureTarget, quality int) (*protocol.ScreenshotData, error) {
	selector := target.Selector
	if target.Mode != protocol.CaptureElement {
		selector = "html"
	}

	dataURL, err := func() (string, error) {
		ctx, cancel := context.WithTimeout(ctx, RenderTimeout)
		defer cancel()
		return page.RenderElementDataURL(ctx, selector, quality)
	}()
	if err != nil {
		return nil, fmt.Errorf("%s render failed: %w", r.Name(), err)
	}

	b64, ok := strings.CutPrefix(dataURL, "data:image/jpeg;base64,")
	if !ok {
		return nil, fmt.Errorf("%s returned an unexpected data url prefix", r.Name())
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%s returned undecodable image data: %w", r.Name(), err)
	}
	width, height, err := jpegDimensions(raw)
	if err != nil {
		return nil, fmt.Errorf("%s produced an unreadable image: %w", r.Name(), err)
	}
	return &protocol.ScreenshotData{
		MimeType: "image/jpeg",
		Base64:   b64,
		Width:    width,
		Height:   height,
		Renderer: r.Name(),
	}, nil
}

// raceCapture runs fn against RenderTimeout. The loser of the race is
// abandoned, not killed; renderer cleanup happens in the callers' defers
// so a still-running render cannot corrupt subsequent captures.
func raceCapture(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, RenderTimeout)
	defer cancel()

	type outcome struct {
		raw []byte
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		raw, err := fn(ctx)
		done <- outcome{raw, err}
	}()

	select {
	case o := <-done:
		return o.raw, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%s renderer timed out after %s", name, RenderTimeout)
	}
}

func jpegDimensions(raw []byte) (int, int, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// neutralizeColorsScript rewrites inline styles under the marked root
// that use color functions the rasterizer cannot parse, stashing the
// originals on the element for restoration.
func neutralizeColorsScript(marker string) string {
	return fmt.Sprintf(`(() => {
  const root = document.querySelector('[%s="%s"]') || document.body;
  let patched = 0;
  for (const el of [root, ...root.querySelectorAll('*')]) {
    const style = el.getAttribute('style');
    if (style && (style.includes('oklch(') || style.includes('oklab(') || style.includes('color-mix('))) {
      el.dataset.sweetlinkStyle = style;
      el.setAttribute('style', style.replace(/(oklch|oklab|color-mix)\([^)]*\)/g, 'inherit'));
      patched++;
    }
  }
  return patched;
})()`, markerAttr, marker)
}

func restoreColorsScript(marker string) string {
	return fmt.Sprintf(`(() => {
  const root = document.querySelector('[%s="%s"]') || document.body;
  for (const el of [root, ...root.querySelectorAll('*')]) {
    if (el.dataset.sweetlinkStyle !== undefined) {
      el.setAttribute('style', el.dataset.sweetlinkStyle);
      delete el.dataset.sweetlinkStyle;
    }
  }
  return true;
})()`, markerAttr, marker)
}
