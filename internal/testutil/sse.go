package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// Frame is one parsed frame of the data-only SSE stream the chat endpoint
// emits. Type is the "type" field inside the JSON payload; Data is the
// decoded payload.
type Frame struct {
	Type string
	Data map[string]any
	Raw  string
}

// ParseFrames parses a data-only SSE body (`data: <json>` frames
// separated by blank lines) into structured frames.
func ParseFrames(t *testing.T, body string) []Frame {
	t.Helper()

	var frames []Frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			raw := strings.TrimPrefix(line, "data: ")
			var data map[string]any
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				t.Fatalf("SSE parse error at line %d: bad JSON payload %q: %v", lineNum, raw, err)
			}
			typ, _ := data["type"].(string)
			if typ == "" {
				t.Fatalf("SSE parse error at line %d: payload without type: %q", lineNum, raw)
			}
			frames = append(frames, Frame{Type: typ, Data: data, Raw: raw})

		case line == "":
			// frame separator

		default:
			// SSE allows comments starting with ":"
			if !strings.HasPrefix(line, ":") {
				t.Fatalf("SSE parse error at line %d: unexpected SSE line: %q", lineNum, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	return frames
}

// FindFrame finds the first frame of the given type. Returns nil if not
// found.
func FindFrame(frames []Frame, frameType string) *Frame {
	for i := range frames {
		if frames[i].Type == frameType {
			return &frames[i]
		}
	}
	return nil
}

// FindAllFrames finds all frames of a given type.
func FindAllFrames(frames []Frame, frameType string) []Frame {
	var found []Frame
	for _, f := range frames {
		if f.Type == frameType {
			found = append(found, f)
		}
	}
	return found
}
