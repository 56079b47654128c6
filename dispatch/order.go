package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quailyquaily/plugbot/plugin"
)

type depNode struct {
	count int
	adj   []string
}

// Order sorts message handlers so every handler comes after the handlers it
// names in After. Independent handlers are taken from a stack, so ties do
// not keep declaration order. Handlers that can never be placed fail the
// whole order.
func Order(handlers []plugin.Message) ([]plugin.Message, error) {
	byName := make(map[string]plugin.Message, len(handlers))
	graph := make(map[string]*depNode, len(handlers))
	node := func(name string) *depNode {
		n := graph[name]
		if n == nil {
			n = &depNode{}
			graph[name] = n
		}
		return n
	}

	var stack []string
	for _, h := range handlers {
		if _, dup := byName[h.Name]; dup {
			return nil, fmt.Errorf("%w: message handler %s", ErrDuplicate, h.Name)
		}
		byName[h.Name] = h
		n := node(h.Name)
		n.count = len(h.After)
		if n.count == 0 {
			stack = append(stack, h.Name)
		}
		for _, pre := range h.After {
			p := node(pre)
			p.adj = append(p.adj, h.Name)
		}
	}

	out := make([]plugin.Message, 0, len(handlers))
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, byName[cur])
		for _, next := range graph[cur].adj {
			n := graph[next]
			n.count--
			if n.count == 0 {
				stack = append(stack, next)
			}
		}
	}

	if len(out) == len(handlers) {
		return out, nil
	}
	placed := make(map[string]struct{}, len(out))
	for _, h := range out {
		placed[h.Name] = struct{}{}
	}
	var stuck []string
	for _, h := range handlers {
		if _, ok := placed[h.Name]; ok {
			continue
		}
		var missing []string
		for _, pre := range h.After {
			if _, known := byName[pre]; !known {
				missing = append(missing, pre)
			}
		}
		if len(missing) > 0 {
			stuck = append(stuck, fmt.Sprintf("%s (unknown %s)", h.Name, strings.Join(missing, ", ")))
		} else {
			stuck = append(stuck, h.Name)
		}
	}
	sort.Strings(stuck)
	return nil, fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(stuck, "; "))
}
