package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CodeBlock is a fenced ``` block. Lang is the info string, possibly empty.
type CodeBlock struct {
	Lang    string `json:"lang"`
	Content string `json:"content"`
}

// ExtractErrors returns every line mentioning an error, with <error> tags
// removed.
func ExtractErrors(output string) []string {
	var errs []string
	for _, line := range lines(output) {
		if strings.Contains(line, "<error>") || isErrorLine(line) {
			errs = append(errs, strings.TrimSpace(stripTags(line, "error")))
		}
	}
	return errs
}

// ExtractToolCalls finds "Running: <cmd> <args...>" lines and inline
// <tool_call>name key=value</tool_call> markers.
func ExtractToolCalls(output string) []ToolCall {
	var calls []ToolCall
	for _, line := range lines(output) {
		if rest, ok := strings.CutPrefix(line, "Running: "); ok {
			if name, args, ok := SplitCommand(rest); ok {
				calls = append(calls, ToolCall{
					Name: name,
					Args: map[string]string{
						"command":  rest,
						"raw_args": strings.Join(args, " "),
					},
				})
			}
		}
		if call, ok := parseInlineToolCall(line); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func parseInlineToolCall(line string) (ToolCall, bool) {
	start := strings.Index(line, "<tool_call>")
	if start < 0 {
		return ToolCall{}, false
	}
	body := line[start+len("<tool_call>"):]
	end := strings.Index(body, "</tool_call>")
	if end < 0 {
		return ToolCall{}, false
	}
	fields := strings.Fields(body[:end])
	if len(fields) == 0 {
		return ToolCall{}, false
	}
	call := ToolCall{Name: fields[0], Args: map[string]string{}}
	for _, f := range fields[1:] {
		if k, v, ok := strings.Cut(f, "="); ok {
			call.Args[k] = strings.Trim(v, `"`)
		}
	}
	return call, true
}

// SplitCommand splits a command line on whitespace into name and args.
func SplitCommand(cmd string) (string, []string, bool) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}

// ExtractCodeBlocks returns fenced code blocks in order. An unterminated
// fence at the end of output is dropped.
func ExtractCodeBlocks(output string) []CodeBlock {
	var (
		blocks []CodeBlock
		inside bool
		lang   string
		body   strings.Builder
	)
	for _, line := range lines(output) {
		rest, isFence := strings.CutPrefix(line, "```")
		switch {
		case isFence && inside:
			blocks = append(blocks, CodeBlock{Lang: lang, Content: strings.TrimSpace(body.String())})
			body.Reset()
			inside = false
		case isFence:
			inside = true
			lang = strings.TrimSpace(rest)
		case inside:
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	return blocks
}

// ExtractJSONBlocks returns brace-balanced regions that start on a line
// beginning with "{". Fenced ```json blocks are returned without the fence.
func ExtractJSONBlocks(output string) []string {
	var (
		blocks []string
		inside bool
		depth  int
		body   strings.Builder
	)
	for _, line := range lines(output) {
		trimmed := strings.TrimSpace(line)
		if !inside {
			if !strings.HasPrefix(trimmed, "{") {
				continue
			}
			inside = true
			depth = 0
			body.Reset()
		}
		body.WriteString(line)
		body.WriteByte('\n')
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth <= 0 {
			blocks = append(blocks, strings.TrimSpace(body.String()))
			inside = false
		}
	}
	return blocks
}

var (
	bracketDateTime = regexp.MustCompile(`\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\]`)
	bracketMillis   = regexp.MustCompile(`\[(\d{13})\]`)
	bracketUnix     = regexp.MustCompile(`\[(\d{10})\]`)
	isoUnix         = regexp.MustCompile(`T(\d{10})`)
)

// ParseTimestamp finds the first recognized timestamp in line:
// [YYYY-MM-DD HH:MM:SS] (UTC), [unix seconds], [unix millis] or T<unix>.
func ParseTimestamp(line string) (time.Time, bool) {
	if m := bracketDateTime.FindStringSubmatch(line); m != nil {
		if t, err := time.Parse(time.DateTime, m[1]); err == nil {
			return t.UTC(), true
		}
	}
	if m := bracketMillis.FindStringSubmatch(line); m != nil {
		if ms, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	for _, re := range []*regexp.Regexp{bracketUnix, isoUnix} {
		if m := re.FindStringSubmatch(line); m != nil {
			if s, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return time.Unix(s, 0).UTC(), true
			}
		}
	}
	return time.Time{}, false
}
