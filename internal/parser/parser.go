// Package parser classifies agent output read from capture logs.
//
// Output is cut into segments at lines that open an error, a completion
// marker or a tool invocation. Each segment is then offered to an ordered
// list of classifiers; the first that matches decides its Kind. Anything
// unmatched is a plain message.
package parser

import (
	"strings"
)

// Kind is the classification of one output segment.
type Kind string

const (
	KindError      Kind = "error"
	KindToolCall   Kind = "tool_call"
	KindCompletion Kind = "completion"
	KindMessage    Kind = "message"
)

// ToolCall is a tool invocation an agent announced in its output.
type ToolCall struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Response is one classified output segment.
type Response struct {
	Kind      Kind       `json:"kind"`
	Success   bool       `json:"success"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Error holds the error lines for KindError segments.
	Error string `json:"error,omitempty"`
}

// Classifier recognizes one kind of segment.
type Classifier interface {
	Kind() Kind
	// Match reports whether segment is of this kind.
	Match(segment string) bool
	// Build produces the Response for a matched segment.
	Build(segment string) Response
}

// Registry tries classifiers in order.
type Registry struct {
	classifiers []Classifier
}

// NewRegistry returns the default order: errors win over tool calls, tool
// calls over completions.
func NewRegistry() *Registry {
	return &Registry{classifiers: []Classifier{
		errorClassifier{},
		toolCallClassifier{},
		completionClassifier{},
	}}
}

// Classify returns the Response for a single segment.
func (r *Registry) Classify(segment string) Response {
	for _, c := range r.classifiers {
		if c.Match(segment) {
			return c.Build(segment)
		}
	}
	return Response{Kind: KindMessage, Success: true, Content: strings.TrimSpace(segment)}
}

// ClassifyAll splits output into segments and classifies each.
func (r *Registry) ClassifyAll(output string) []Response {
	segments := Segments(output)
	out := make([]Response, 0, len(segments))
	for _, s := range segments {
		out = append(out, r.Classify(s))
	}
	return out
}

var defaultRegistry = NewRegistry()

// Parse classifies output as one segment with the default registry.
func Parse(output string) Response {
	return defaultRegistry.Classify(output)
}

// ParseAll segments and classifies output with the default registry.
func ParseAll(output string) []Response {
	return defaultRegistry.ClassifyAll(output)
}

// Segments cuts output before every line that opens an error, a completion
// or a tool invocation. Each segment keeps its trailing newlines.
func Segments(output string) []string {
	var (
		segments []string
		current  strings.Builder
	)
	for _, line := range strings.SplitAfter(output, "\n") {
		if line == "" {
			continue
		}
		if startsSegment(line) && current.Len() > 0 {
			segments = append(segments, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

func startsSegment(line string) bool {
	return strings.Contains(line, "<error>") ||
		strings.Contains(line, "<complete>") ||
		strings.Contains(line, "Running:")
}

// --- classifiers ---

type errorClassifier struct{}

func (errorClassifier) Kind() Kind { return KindError }

func (errorClassifier) Match(s string) bool {
	return strings.Contains(s, "<error>") || isErrorLine(s)
}

func (errorClassifier) Build(s string) Response {
	var body, errs []string
	for _, line := range lines(stripTags(s, "error")) {
		if isErrorLine(line) {
			errs = append(errs, line)
		} else {
			body = append(body, line)
		}
	}
	return Response{
		Kind:    KindError,
		Success: false,
		Content: strings.TrimSpace(strings.Join(body, "\n")),
		Error:   strings.TrimSpace(strings.Join(errs, "\n")),
	}
}

type toolCallClassifier struct{}

func (toolCallClassifier) Kind() Kind { return KindToolCall }

func (toolCallClassifier) Match(s string) bool {
	return strings.Contains(s, "Running:") || strings.Contains(s, "<tool_call>")
}

func (toolCallClassifier) Build(s string) Response {
	var body []string
	for _, line := range lines(s) {
		if strings.HasPrefix(line, "Running:") || strings.HasPrefix(line, "<tool_call>") {
			continue
		}
		body = append(body, line)
	}
	return Response{
		Kind:      KindToolCall,
		Success:   true,
		Content:   strings.TrimSpace(strings.Join(body, "\n")),
		ToolCalls: ExtractToolCalls(s),
	}
}

type completionClassifier struct{}

var completionMarkers = []string{"<complete>", "I'll complete", "Done."}

func (completionClassifier) Kind() Kind { return KindCompletion }

func (completionClassifier) Match(s string) bool {
	for _, m := range completionMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func (completionClassifier) Build(s string) Response {
	var body []string
	for _, line := range lines(stripTags(s, "complete")) {
		if strings.Contains(line, "I'll complete") || strings.Contains(line, "Done.") {
			continue
		}
		body = append(body, line)
	}
	return Response{
		Kind:    KindCompletion,
		Success: true,
		Content: strings.TrimSpace(strings.Join(body, "\n")),
	}
}

// --- helpers ---

func isErrorLine(line string) bool {
	return strings.Contains(line, "Error:") || strings.Contains(line, "error:")
}

func stripTags(s, tag string) string {
	s = strings.ReplaceAll(s, "<"+tag+">", "")
	return strings.ReplaceAll(s, "</"+tag+">", "")
}

func lines(s string) []string {
	out := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range out {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}
