package agent

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// streamEvent is one line of the agent's stream-json output. Only the
// fields the runner cares about are decoded; everything else is ignored.
type streamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Event   *struct {
		Type  string `json:"type"`
		Delta *struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"delta,omitempty"`
	} `json:"event,omitempty"`
}

// streamOutcome summarizes the terminal event of a stream.
type streamOutcome struct {
	// sawResult is true once a terminal result event arrived.
	sawResult bool

	// failed is true when the terminal event reported an error.
	failed bool

	// text is the accumulated content text.
	text strings.Builder
}

// parseStream reads newline-delimited JSON events from r, forwards
// content chunks to sink as they arrive, and records the terminal
// success/failure event. Lines that do not parse as events are passed
// through verbatim so plain-text agents still stream.
func parseStream(r io.Reader, sink io.Writer) (*streamOutcome, error) {
	outcome := &streamOutcome{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 1MB max line size
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			outcome.emit(line+"\n", sink)
			continue
		}

		switch ev.Type {
		case "stream_event":
			if ev.Event != nil && ev.Event.Delta != nil && ev.Event.Delta.Text != "" {
				outcome.emit(ev.Event.Delta.Text, sink)
			}
		case "result":
			outcome.sawResult = true
			outcome.failed = ev.IsError || ev.Subtype == "error"
			if ev.Result != "" && outcome.text.Len() == 0 {
				outcome.emit(ev.Result, sink)
			}
		case "assistant":
			// Older stream format: full text arrives on the result
			// event; nothing to forward here.
		}
	}

	if err := scanner.Err(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (o *streamOutcome) emit(text string, sink io.Writer) {
	o.text.WriteString(text)
	if sink != nil {
		_, _ = io.WriteString(sink, text)
	}
}
