package openai

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// sseReader reads server-sent events from a response body.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(body io.Reader) *sseReader {
	s := bufio.NewScanner(body)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseReader{scanner: s}
}

// Next returns the next event, or io.EOF when the stream ends.
func (r *sseReader) Next() (*sseEvent, error) {
	var event sseEvent
	var hasData bool

	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Blank line ends an event.
		if line == "" {
			if hasData {
				return &event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := parseSSELine(line)
		switch field {
		case "data":
			if hasData {
				event.Data += "\n" + value
			} else {
				event.Data = value
				hasData = true
			}
		case "event":
			event.Event = value
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if hasData {
		return &event, nil
	}
	return nil, io.EOF
}

func parseSSELine(line string) (field, value string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
