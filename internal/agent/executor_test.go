package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

func TestExecutePing(t *testing.T) {
	e := NewExecutor(newFakePage())
	result := e.Execute(context.Background(), &protocol.Command{ID: "c1", Type: protocol.CommandPing})

	require.True(t, result.OK)
	assert.Equal(t, "c1", result.ID)
	assert.GreaterOrEqual(t, result.DurationMs, float64(0))
	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "time")
}

func TestExecuteGetDom(t *testing.T) {
	page := newFakePage()
	page.html = "<main>hello</main>"
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:     "c2",
		Type:   protocol.CommandGetDom,
		GetDom: &protocol.GetDomPayload{},
	})
	require.True(t, result.OK)
	assert.Equal(t, "<main>hello</main>", result.Data)
}

func TestExecuteGetDomNoMatchReturnsNull(t *testing.T) {
	page := newFakePage()
	page.html = "<main>hello</main>"
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:     "c3",
		Type:   protocol.CommandGetDom,
		GetDom: &protocol.GetDomPayload{Selector: "#missing"},
	})
	require.True(t, result.OK)
	assert.Nil(t, result.Data)
}

func TestExecuteNavigateFireAndForget(t *testing.T) {
	page := newFakePage()
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:       "c4",
		Type:     protocol.CommandNavigate,
		Navigate: &protocol.NavigatePayload{URL: "https://example.com/next"},
	})
	require.True(t, result.OK)
	assert.Equal(t, "https://example.com/next", page.navigatedTo)
	data := result.Data.(map[string]any)
	assert.Equal(t, "https://example.com/next", data["url"])
}

func TestExecuteUnsupportedType(t *testing.T) {
	e := NewExecutor(newFakePage())
	result := e.Execute(context.Background(), &protocol.Command{ID: "c5", Type: "teleport"})

	require.False(t, result.OK)
	assert.Equal(t, "c5", result.ID)
	assert.Contains(t, result.Error, "unsupported command type")
}

func TestExecuteConvertsPanicToErrorResult(t *testing.T) {
	page := newFakePage()
	page.evalFn = func(string) (any, error) { panic("boom") }
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:        "c6",
		Type:      protocol.CommandRunScript,
		RunScript: &protocol.RunScriptPayload{Source: "1"},
	})
	require.False(t, result.OK)
	assert.Contains(t, result.Error, "boom")
	assert.GreaterOrEqual(t, result.DurationMs, float64(0))
}

func TestRunScriptResultIsSanitized(t *testing.T) {
	page := newFakePage()
	page.evalResult = map[string]any{"n": 1.0, "s": "ok"}
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:        "c7",
		Type:      protocol.CommandRunScript,
		RunScript: &protocol.RunScriptPayload{Source: "return {n: 1, s: 'ok'}"},
	})
	require.True(t, result.OK)
	assert.Equal(t, map[string]any{"n": 1.0, "s": "ok"}, result.Data)
}

func TestRunScriptCaptureConsoleOnFailure(t *testing.T) {
	page := newFakePage()
	page.evalFn = func(string) (any, error) {
		// Script logs three lines, then throws.
		page.emitConsole(protocol.ConsoleLog, "one")
		page.emitConsole(protocol.ConsoleWarn, "two")
		page.emitConsole(protocol.ConsoleError, "three")
		return nil, errors.New("ReferenceError: nope is not defined")
	}
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:        "c8",
		Type:      protocol.CommandRunScript,
		RunScript: &protocol.RunScriptPayload{Source: "nope()", CaptureConsole: true},
	})

	require.False(t, result.OK)
	assert.Contains(t, result.Error, "nope is not defined")
	require.Len(t, result.Console, 3)
	assert.Equal(t, protocol.ConsoleLog, result.Console[0].Level)
	assert.Equal(t, protocol.ConsoleWarn, result.Console[1].Level)
	assert.Equal(t, protocol.ConsoleError, result.Console[2].Level)

	// Interception must be fully released after the command.
	assert.Equal(t, 0, page.subscriberCount())
	assert.Equal(t, 0, page.emitConsole(protocol.ConsoleLog, "after"))
}

func TestRunScriptWithoutCaptureLeavesConsoleAlone(t *testing.T) {
	page := newFakePage()
	page.evalResult = "done"
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:        "c9",
		Type:      protocol.CommandRunScript,
		RunScript: &protocol.RunScriptPayload{Source: "1"},
	})
	require.True(t, result.OK)
	assert.Empty(t, result.Console)
	assert.Equal(t, 0, page.subscriberCount())
}

func TestConsoleCaptureReleaseIsIdempotent(t *testing.T) {
	page := newFakePage()
	c := newConsoleCapture(page)
	assert.Equal(t, 1, page.subscriberCount())
	c.Release()
	c.Release()
	assert.Equal(t, 0, page.subscriberCount())
}

func TestWrapScriptEmbedsSourceAsModule(t *testing.T) {
	wrapped := wrapScript(`console.log("hi"); return 42;`)
	assert.Contains(t, wrapped, "createObjectURL")
	assert.Contains(t, wrapped, "revokeObjectURL")
	assert.Contains(t, wrapped, `export default async (window, document, console)`)
	// Source text must survive quoting.
	assert.Contains(t, wrapped, `console.log(\"hi\"); return 42;`)
}

func TestDiscoverSelectorsCommand(t *testing.T) {
	page := newFakePage()
	page.elements = sampleElements()
	e := NewExecutor(page)

	run := func() *protocol.CommandResult {
		return e.Execute(context.Background(), &protocol.Command{
			ID:                fmt.Sprintf("c-%d", 1),
			Type:              protocol.CommandDiscoverSelectors,
			DiscoverSelectors: &protocol.DiscoverSelectorsPayload{Limit: 3},
		})
	}

	first := run()
	second := run()
	require.True(t, first.OK)
	require.True(t, second.OK)
	// Idempotent over a stable DOM: identical ordering and scores.
	assert.Equal(t, first.Data, second.Data)
}

func TestDiscoverSelectorsClampsLimit(t *testing.T) {
	page := newFakePage()
	page.elements = sampleElements()
	e := NewExecutor(page)

	result := e.Execute(context.Background(), &protocol.Command{
		ID:                "c10",
		Type:              protocol.CommandDiscoverSelectors,
		DiscoverSelectors: &protocol.DiscoverSelectorsPayload{Limit: -5},
	})
	require.True(t, result.OK)
	candidates := result.Data.([]any)
	assert.LessOrEqual(t, len(candidates), DefaultSelectorLimit)
	assert.NotEmpty(t, candidates)
}
