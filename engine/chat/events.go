package chat

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates the frames a chat stream can carry.
type EventType string

const (
	EventSources EventType = "sources"
	EventContent EventType = "content"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Source is one cited transcript, represented by its best passage.
type Source struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Timestamp  string  `json:"timestamp"`
	SourceRef  string  `json:"sourceRef"`
	Similarity float64 `json:"similarity"`
}

// Event is one item of a session stream. Only the field matching Type is used.
type Event struct {
	Type    EventType
	Items   []Source
	Text    string
	Message string
}

type sourcesFrame struct {
	Type  EventType `json:"type"`
	Items []Source  `json:"items"`
}

type contentFrame struct {
	Type EventType `json:"type"`
	Text string    `json:"text"`
}

type doneFrame struct {
	Type EventType `json:"type"`
}

type errorFrame struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// Encode renders ev as a server-sent events frame: "data: <json>\n\n".
func Encode(ev Event) ([]byte, error) {
	var payload any
	switch ev.Type {
	case EventSources:
		items := ev.Items
		if items == nil {
			items = []Source{}
		}
		payload = sourcesFrame{Type: ev.Type, Items: items}
	case EventContent:
		payload = contentFrame{Type: ev.Type, Text: ev.Text}
	case EventDone:
		payload = doneFrame{Type: ev.Type}
	case EventError:
		payload = errorFrame{Type: ev.Type, Message: ev.Message}
	default:
		return nil, fmt.Errorf("chat: unknown event type %q", ev.Type)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("chat: encode %s event: %w", ev.Type, err)
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
