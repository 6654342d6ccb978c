package responses

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	codeact "github.com/nevindra/codeact"
)

// StreamSSE reads a Responses API event stream from body, forwards the
// incremental events to ch and returns the terminal response. ch is closed
// on return.
//
// A stream that ends without response.completed (or response.incomplete)
// yields a zero Response and a nil error; the caller decides whether that is
// a protocol violation. response.failed is returned as *codeact.ErrLLM.
//
// SSE format expected:
//
//	event: response.output_text.delta
//	data: {"type":"response.output_text.delta","item_id":"msg_1","delta":"Hi"}
//
// Only data lines are read; the event type comes from the payload.
func StreamSSE(ctx context.Context, name string, body io.Reader, ch chan<- codeact.ProviderEvent) (codeact.Response, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Completed events carry the whole response.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	send := func(ev codeact.ProviderEvent) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var data strings.Builder
	dispatch := func() (*codeact.Response, error) {
		payload := data.String()
		data.Reset()
		if payload == "" || payload == "[DONE]" {
			return nil, nil
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// Skip malformed events.
			return nil, nil
		}
		switch ev.Type {
		case eventTextDelta:
			return nil, send(codeact.ProviderEvent{Type: codeact.ProviderTextDelta, Delta: ev.Delta, ItemID: ev.ItemID})
		case eventArgumentsDelta:
			return nil, send(codeact.ProviderEvent{Type: codeact.ProviderArgumentsDelta, Delta: ev.Delta, ItemID: ev.ItemID})
		case eventItemAdded:
			var item codeact.Message
			if err := json.Unmarshal(ev.Item, &item); err != nil {
				return nil, nil
			}
			return nil, send(codeact.ProviderEvent{Type: codeact.ProviderItemAdded, ItemID: item.ID, Item: &item})
		case eventError:
			msg := ev.Message
			if msg == "" {
				msg = ev.Code
			}
			return nil, send(codeact.ProviderEvent{Type: codeact.ProviderError, Message: msg})
		case eventCompleted, eventIncomplete:
			if ev.Response == nil {
				return nil, nil
			}
			return &codeact.Response{ID: ev.Response.ID, Output: ev.Response.Output}, nil
		case eventFailed:
			msg := "response failed"
			if ev.Response != nil && ev.Response.Error != nil {
				msg = ev.Response.Error.Message
			}
			return nil, &codeact.ErrLLM{Provider: name, Message: msg}
		}
		return nil, nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			resp, err := dispatch()
			if err != nil {
				return codeact.Response{}, err
			}
			if resp != nil {
				return *resp, nil
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(payload, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return codeact.Response{}, err
	}
	// Final event without a trailing blank line.
	resp, err := dispatch()
	if err != nil {
		return codeact.Response{}, err
	}
	if resp != nil {
		return *resp, nil
	}
	return codeact.Response{}, nil
}
