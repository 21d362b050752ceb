package parser

import (
	"sort"
	"strings"
	"time"
)

// ByKind returns the responses of kind k.
func ByKind(rs []Response, k Kind) []Response {
	return filter(rs, func(r Response) bool { return r.Kind == k })
}

// ByContent returns responses whose content contains substr.
func ByContent(rs []Response, substr string) []Response {
	return filter(rs, func(r Response) bool { return strings.Contains(r.Content, substr) })
}

// ByTool returns responses that invoked the named tool.
func ByTool(rs []Response, name string) []Response {
	return filter(rs, func(r Response) bool {
		for _, c := range r.ToolCalls {
			if c.Name == name {
				return true
			}
		}
		return false
	})
}

// ByTimeRange returns responses whose content carries a timestamp within
// [start, end]. Responses without a timestamp are dropped.
func ByTimeRange(rs []Response, start, end time.Time) []Response {
	return filter(rs, func(r Response) bool {
		ts, ok := ParseTimestamp(r.Content)
		return ok && !ts.Before(start) && !ts.After(end)
	})
}

// FirstError returns the first failed response.
func FirstError(rs []Response) (Response, bool) {
	for _, r := range rs {
		if !r.Success && r.Error != "" {
			return r, true
		}
	}
	return Response{}, false
}

// CountByKind counts responses per kind.
func CountByKind(rs []Response) map[Kind]int {
	counts := make(map[Kind]int)
	for _, r := range rs {
		counts[r.Kind]++
	}
	return counts
}

// CountByTool counts tool invocations per tool name.
func CountByTool(rs []Response) map[string]int {
	counts := make(map[string]int)
	for _, r := range rs {
		for _, c := range r.ToolCalls {
			counts[c.Name]++
		}
	}
	return counts
}

// ToolNames returns the distinct tool names used, sorted.
func ToolNames(rs []Response) []string {
	counts := CountByTool(rs)
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func filter(rs []Response, keep func(Response) bool) []Response {
	out := []Response{}
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
