package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sweetlink/sweetlink/pkg/protocol"
)

// DefaultSelectorLimit caps discovery results when the command does not
// specify one.
const DefaultSelectorLimit = 20

const textSnippetLen = 60

// Fixed precedence of identification signals.
const (
	scoreDataTarget = 100
	scoreID         = 90
	scoreTestID     = 80
	scoreAria       = 70
	scoreRole       = 60
	scoreStructural = 10
)

var testIDAttrs = []string{"data-testid", "data-test-id", "data-test"}

// DiscoverSelectors scores a snapshot of elements and returns up to limit
// candidates, best first. Hidden elements are excluded unless requested.
// Scoring is pure over the snapshot, so a stable DOM yields identical
// results on repeated runs.
func DiscoverSelectors(elements []ElementInfo, limit int, includeHidden bool) []protocol.SelectorCandidate {
	if limit < 1 {
		limit = DefaultSelectorLimit
	}

	candidates := make([]protocol.SelectorCandidate, 0, len(elements))
	for _, el := range elements {
		if !el.Visible && !includeHidden {
			continue
		}
		candidates = append(candidates, scoreElement(el))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Path < candidates[j].Path
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func scoreElement(el ElementInfo) protocol.SelectorCandidate {
	selector, hook, score := classify(el)
	return protocol.SelectorCandidate{
		Selector:    selector,
		TagName:     el.TagName,
		Hook:        hook,
		TextSnippet: snippet(el.Text),
		Score:       score,
		Visible:     el.Visible,
		Box:         el.Box,
		Path:        el.Path,
	}
}

func classify(el ElementInfo) (string, protocol.SelectorHook, int) {
	tag := strings.ToLower(el.TagName)

	if v := el.Attrs["data-target"]; v != "" {
		return fmt.Sprintf("[data-target=%q]", v), protocol.HookDataTarget, scoreDataTarget
	}
	if v := el.Attrs["id"]; v != "" {
		return "#" + v, protocol.HookElementID, scoreID
	}
	for _, attr := range testIDAttrs {
		if v := el.Attrs[attr]; v != "" {
			return fmt.Sprintf("[%s=%q]", attr, v), protocol.HookTestID, scoreTestID
		}
	}
	if v := el.Attrs["aria-label"]; v != "" {
		return fmt.Sprintf("%s[aria-label=%q]", tag, v), protocol.HookAria, scoreAria
	}
	if v := el.Attrs["aria-labelledby"]; v != "" {
		return fmt.Sprintf("%s[aria-labelledby=%q]", tag, v), protocol.HookAria, scoreAria
	}
	if v := el.Attrs["role"]; v != "" {
		return fmt.Sprintf("%s[role=%q]", tag, v), protocol.HookRole, scoreRole
	}
	return el.CSSPath, protocol.HookStructural, scoreStructural
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= textSnippetLen {
		return text
	}
	return text[:textSnippetLen] + "..."
}
