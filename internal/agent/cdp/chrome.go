// Package cdp attaches the agent to a running Chrome tab over the
// DevTools protocol and implements the agent's Page surface on it.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Attach connects to Chrome's debug endpoint (e.g. http://localhost:9222)
// and binds to the first visible page target. The returned cancel tears
// down the chromedp contexts.
func Attach(ctx context.Context, debugURL string) (*Page, context.CancelFunc, error) {
	wsURL, err := browserWSURL(debugURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chrome debug endpoint not available: %w", err)
	}

	// Discover the page target over the HTTP debug API rather than a
	// throwaway chromedp session; cancelling temporary sessions can leave
	// stale state that breaks later protocol calls.
	targetID, err := findPageTarget(debugURL)
	if err != nil {
		return nil, nil, fmt.Errorf("no page target found: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, wsURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(targetID))
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to attach to page: %w", err)
	}

	return newPage(tabCtx), cancel, nil
}

func browserWSURL(debugURL string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(debugURL + "/json/version")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var data struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return data.WebSocketDebuggerURL, nil
}

func findPageTarget(debugURL string) (target.ID, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(debugURL + "/json/list")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var targets []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return "", err
	}
	for _, t := range targets {
		if t.Type == "page" {
			return target.ID(t.ID), nil
		}
	}
	return "", fmt.Errorf("no page targets among %d targets", len(targets))
}
