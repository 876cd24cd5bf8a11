package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("Should frame each event type as server-sent data", func(t *testing.T) {
		cases := []struct {
			event Event
			want  string
		}{
			{
				Event{Type: EventSources, Items: []Source{{
					DocumentID: "ep-1", Title: "Weekly", Timestamp: "00:01:00", SourceRef: "s3://b/ep-1", Similarity: 0.9,
				}}},
				`data: {"type":"sources","items":[{"documentId":"ep-1","title":"Weekly",` +
					`"timestamp":"00:01:00","sourceRef":"s3://b/ep-1","similarity":0.9}]}` + "\n\n",
			},
			{Event{Type: EventContent, Text: "Hello \"there\""}, `data: {"type":"content","text":"Hello \"there\""}` + "\n\n"},
			{Event{Type: EventDone}, `data: {"type":"done"}` + "\n\n"},
			{Event{Type: EventError, Message: GenerationFailedMessage}, `data: {"type":"error","message":"generation failed"}` + "\n\n"},
		}
		for _, tc := range cases {
			frame, err := Encode(tc.event)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(frame))
		}
	})

	t.Run("Should encode empty sources as an empty list", func(t *testing.T) {
		frame, err := Encode(Event{Type: EventSources})
		require.NoError(t, err)
		assert.Equal(t, `data: {"type":"sources","items":[]}`+"\n\n", string(frame))
	})

	t.Run("Should reject unknown event types", func(t *testing.T) {
		_, err := Encode(Event{Type: "progress"})
		assert.Error(t, err)
	})
}
